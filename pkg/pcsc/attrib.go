package pcsc

import (
	"fmt"
	"sort"
)

// Reader attribute identifiers, SCARD_ATTR_VALUE(class, tag) = class<<16 | tag.
const (
	attrClassVendorInfo    = 0x0001
	attrClassCommunication = 0x0002
	attrClassIfdProtocol   = 0x0008
	attrClassIccState      = 0x0009
	attrClassSystem        = 0x7FFF
)

// Attrib identifies a reader attribute queried with GetAttrib.
type Attrib uint32

func attrValue(class, tag uint32) Attrib {
	return Attrib(class<<16 | tag)
}

var (
	AttrVendorName          = attrValue(attrClassVendorInfo, 0x0100)
	AttrVendorIfdType       = attrValue(attrClassVendorInfo, 0x0101)
	AttrVendorIfdVersion    = attrValue(attrClassVendorInfo, 0x0102)
	AttrVendorIfdSerialNo   = attrValue(attrClassVendorInfo, 0x0103)
	AttrChannelID           = attrValue(attrClassCommunication, 0x0110)
	AttrCurrentProtocolType = attrValue(attrClassIfdProtocol, 0x0201)
	AttrATRString           = attrValue(attrClassIccState, 0x0303)
	AttrDeviceFriendlyName  = attrValue(attrClassSystem, 0x0003)
	AttrDeviceSystemName    = attrValue(attrClassSystem, 0x0004)
)

var attribNames = map[Attrib]string{
	AttrVendorName:          "vendor-name",
	AttrVendorIfdType:       "vendor-ifd-type",
	AttrVendorIfdVersion:    "vendor-ifd-version",
	AttrVendorIfdSerialNo:   "vendor-ifd-serial",
	AttrChannelID:           "channel-id",
	AttrCurrentProtocolType: "current-protocol",
	AttrATRString:           "atr",
	AttrDeviceFriendlyName:  "friendly-name",
	AttrDeviceSystemName:    "system-name",
}

func (a Attrib) String() string {
	if name, ok := attribNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Attrib(0x%08X)", uint32(a))
}

// ParseAttrib resolves a name from AttribNames.
func ParseAttrib(name string) (Attrib, error) {
	for a, n := range attribNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute %q", name)
}

// AttribNames lists the attribute names understood by ParseAttrib, sorted.
func AttribNames() []string {
	names := make([]string, 0, len(attribNames))
	for _, n := range attribNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
