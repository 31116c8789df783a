package pcsc

import "fmt"

// CardState classifies the card in a reader, as seen by the resource manager.
// The values from Absent to Specific follow the SCardStatus progression; Mute
// and Unresponsive are reported when the card is there but does not answer.
type CardState int

const (
	StateUnknown CardState = iota
	StateAbsent
	StatePresent
	StateSwallowed
	StatePowered
	StateNegotiable
	StateSpecific
	StateMute
	StateUnresponsive
)

// IsPresent reports whether a card sits in the reader, whatever its power or
// protocol state.
func (s CardState) IsPresent() bool {
	return s >= StatePresent
}

// IsReady reports whether the card can exchange APDUs right away.
func (s CardState) IsReady() bool {
	return s == StateSpecific || s == StateNegotiable
}

func (s CardState) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateAbsent:
		return "Absent"
	case StatePresent:
		return "Present"
	case StateSwallowed:
		return "Swallowed"
	case StatePowered:
		return "Powered"
	case StateNegotiable:
		return "Negotiable"
	case StateSpecific:
		return "Specific"
	case StateMute:
		return "Mute"
	case StateUnresponsive:
		return "Unresponsive"
	default:
		return fmt.Sprintf("CardState(%d)", int(s))
	}
}

// StateFromCode folds a failed status query into a classification: a card
// that is gone reads as Absent, a card that does not answer as Unresponsive.
func StateFromCode(code ErrorCode) CardState {
	switch code {
	case NoSmartcard, RemovedCard:
		return StateAbsent
	case UnresponsiveCard:
		return StateUnresponsive
	case UnsupportedCard:
		return StateMute
	case UnpoweredCard:
		return StatePresent
	default:
		return StateUnknown
	}
}
