package pcsc

import (
	"fmt"
	"unsafe"
)

// PROTOCOL CONTROL INFORMATION (PCI):
// SCardTransmit takes a SCARD_IO_REQUEST header naming the active protocol
// and the length of the header itself:
//
//	typedef struct {
//	    DWORD dwProtocol;   // unsigned long on pcsc-lite (Linux, BSD)
//	    DWORD cbPciLength;  // uint32_t on macOS, DWORD on Windows
//	} SCARD_IO_REQUEST;
//
// Protocol-specific data may follow the header, but for T=0, T=1 and raw
// transfers the header alone is sent, so the control block length is the
// platform size of that struct.

// IoControlDescriptor describes the protocol control block handed to the
// driver with each transmission.
//
// The protocol and the control block length are always derived together;
// there is no way to set one without the other.
type IoControlDescriptor struct {
	protocol Protocol
	length   uint32
}

// NewIoControlDescriptor builds the descriptor for p. Anything that is not a
// single transmission protocol (Undefined, Any, unknown values) yields the
// Undefined descriptor with a zero-length control block.
func NewIoControlDescriptor(p Protocol) IoControlDescriptor {
	if !p.IsTransmission() {
		return IoControlDescriptor{}
	}
	return IoControlDescriptor{
		protocol: p,
		length:   uint32(unsafe.Sizeof(ioRequest{})),
	}
}

// WithProtocol returns the descriptor for another protocol, re-deriving the
// control block length.
func (d IoControlDescriptor) WithProtocol(p Protocol) IoControlDescriptor {
	return NewIoControlDescriptor(p)
}

// Protocol returns the transmission protocol, ProtocolUndefined if none.
func (d IoControlDescriptor) Protocol() Protocol {
	return d.protocol
}

// ControlBlockLength returns the size in bytes of the protocol control block.
func (d IoControlDescriptor) ControlBlockLength() uint32 {
	return d.length
}

// IsDefined reports whether the descriptor names a real protocol.
func (d IoControlDescriptor) IsDefined() bool {
	return d.protocol != ProtocolUndefined
}

func (d IoControlDescriptor) String() string {
	return fmt.Sprintf("PCI %s (%d bytes)", d.protocol, d.length)
}
