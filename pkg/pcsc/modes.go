package pcsc

import "fmt"

// ShareMode tells the resource manager whether other applications may open
// the same card while this session is connected.
type ShareMode uint32

const (
	ShareExclusive ShareMode = 0x0001
	ShareShared    ShareMode = 0x0002
	// ShareDirect connects to the reader itself, even without a card.
	ShareDirect ShareMode = 0x0003
)

func (m ShareMode) String() string {
	switch m {
	case ShareExclusive:
		return "Exclusive"
	case ShareShared:
		return "Shared"
	case ShareDirect:
		return "Direct"
	default:
		return fmt.Sprintf("ShareMode(%d)", uint32(m))
	}
}

// ParseShareMode maps "exclusive", "shared" and "direct" to a ShareMode.
func ParseShareMode(s string) (ShareMode, error) {
	switch s {
	case "exclusive":
		return ShareExclusive, nil
	case "shared", "":
		return ShareShared, nil
	case "direct":
		return ShareDirect, nil
	default:
		return 0, fmt.Errorf("unknown share mode %q", s)
	}
}

// Disposition is the action applied to the card when a session is released,
// or the initialization performed on Reconnect.
type Disposition uint32

const (
	LeaveCard   Disposition = 0x0000
	ResetCard   Disposition = 0x0001
	UnpowerCard Disposition = 0x0002
	EjectCard   Disposition = 0x0003
)

func (d Disposition) String() string {
	switch d {
	case LeaveCard:
		return "Leave"
	case ResetCard:
		return "Reset"
	case UnpowerCard:
		return "Unpower"
	case EjectCard:
		return "Eject"
	default:
		return fmt.Sprintf("Disposition(%d)", uint32(d))
	}
}

// ParseDisposition maps "leave", "reset", "unpower" and "eject".
func ParseDisposition(s string) (Disposition, error) {
	switch s {
	case "leave", "":
		return LeaveCard, nil
	case "reset":
		return ResetCard, nil
	case "unpower":
		return UnpowerCard, nil
	case "eject":
		return EjectCard, nil
	default:
		return 0, fmt.Errorf("unknown disposition %q", s)
	}
}
