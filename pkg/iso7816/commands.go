package iso7816

import (
	"fmt"

	"github.com/gregLibert/cardchannel/pkg/bits"
)

// SELECT (INS 'A4'):
//   P1  selection method (by file id, by DF name/AID, by path...)
//   P2  b4-b3 what to return (FCI, FCP, FMD, nothing), b2-b1 which occurrence

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID          SelectionMethod = 0x00
	SelectChildDF           SelectionMethod = 0x01
	SelectEFUnderCurrentDF  SelectionMethod = 0x02
	SelectParentDF          SelectionMethod = 0x03
	SelectByDFName          SelectionMethod = 0x04 // by AID
	SelectPathFromMF        SelectionMethod = 0x08
	SelectPathFromCurrentDF SelectionMethod = 0x09
)

// FileOccurrence selects among files sharing a name (P2 b2-b1).
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = iota
	LastOccurrence
	NextOccurrence
	PreviousOccurrence
)

// SelectionControl defines what the card returns (P2 b4-b3).
type SelectionControl byte

const (
	ReturnFCI SelectionControl = iota
	ReturnFCP
	ReturnFMD
	ReturnNoData
)

// NewSelectCommand builds a SELECT on the logical channel of cla.
//
// When data is sent no Le is added: T=0 cannot carry Lc and Le together, so
// the card answers 61XX and Client fetches the rest. Without data the maximum
// short Le is requested unless ctrl asks for no data.
func NewSelectCommand(cla Class, method SelectionMethod, occurrence FileOccurrence, ctrl SelectionControl, data []byte) (CommandAPDU, error) {
	p2 := bits.SetRange(0, 4, 3, byte(ctrl))
	p2 = bits.SetRange(p2, 2, 1, byte(occurrence))

	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}

	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(method), p2, data, ne)
}

// SelectByAID selects an application by DF name and asks for its FCI.
func SelectByAID(cla Class, aid []byte) (CommandAPDU, error) {
	if len(aid) == 0 || len(aid) > 16 {
		return CommandAPDU{}, fmt.Errorf("AID must be 1 to 16 bytes, got %d", len(aid))
	}
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectMF selects the master file.
func SelectMF(cla Class) (CommandAPDU, error) {
	return NewSelectCommand(cla, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil)
}

// GetResponse builds GET RESPONSE (INS 'C0') for ne bytes. The class keeps
// the logical channel and secure messaging of cla with chaining cleared.
func GetResponse(cla Class, ne int) (CommandAPDU, error) {
	if ne <= 0 {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla.WithChaining(false), MustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, ne)
}

// READ RECORD (INS 'B2'):
//   P1  record number, or record identifier
//   P2  b8-b4 short EF identifier (0 = current EF), b3-b1 RecordMode

// RecordMode tells how P1 is interpreted and which records are read.
type RecordMode byte

const (
	// P1 is a record identifier
	RecordIDFirst    RecordMode = 0b000
	RecordIDLast     RecordMode = 0b001
	RecordIDNext     RecordMode = 0b010
	RecordIDPrevious RecordMode = 0b011

	// P1 is a record number
	RecordNumber        RecordMode = 0b100
	RecordsFromNumber   RecordMode = 0b101
	RecordsFromLastToP1 RecordMode = 0b110
)

// MaxSFI is the largest short EF identifier.
const MaxSFI = 30

// NewReadRecordCommand builds READ RECORD asking for up to 256 bytes.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode RecordMode) (CommandAPDU, error) {
	if sfi > MaxSFI {
		return CommandAPDU{}, fmt.Errorf("short EF identifier %d out of range 0-%d", sfi, MaxSFI)
	}
	if mode > RecordsFromLastToP1 {
		return CommandAPDU{}, fmt.Errorf("invalid record mode %03b", byte(mode))
	}
	p2 := bits.SetRange(0, 8, 4, sfi)
	p2 = bits.SetRange(p2, 3, 1, byte(mode))

	return NewCommandAPDU(cla, MustInstruction(INS_READ_RECORD), p1, p2, nil, MaxShortLe)
}

// ReadRecord reads record number n of the EF with the given SFI.
func ReadRecord(cla Class, sfi, n byte) (CommandAPDU, error) {
	return NewReadRecordCommand(cla, sfi, n, RecordNumber)
}
