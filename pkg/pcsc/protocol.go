/*
Package pcsc holds the vocabulary shared by card channels and the platform
resource-manager drivers behind them.

A driver establishes a Session with the local resource manager (pcscd,
WinSCard, or a simulator). Every card operation on a session is keyed by the
reader name; the session itself plays the role of the PC/SC context. Channels
never own a session, they borrow it (see package channel).

# Transmission protocols

The numbering of Protocol follows PC/SC-lite:

  - T0 (0x01): character oriented, half duplex.
  - T1 (0x02): block oriented, half duplex.
  - Raw (0x04): raw transfer, reader specific.
  - T15 (0x08): the PTS "protocol" used to negotiate speed.

Any (T0|T1) is only a negotiation mask passed to Connect/Reconnect; the card
always settles on a single protocol.
*/
package pcsc

import "fmt"

// Protocol identifies a card transmission protocol.
type Protocol uint32

const (
	ProtocolUndefined Protocol = 0x0000
	ProtocolT0        Protocol = 0x0001
	ProtocolT1        Protocol = 0x0002
	ProtocolRaw       Protocol = 0x0004
	ProtocolT15       Protocol = 0x0008

	// ProtocolAny lets the resource manager pick between T=0 and T=1.
	ProtocolAny = ProtocolT0 | ProtocolT1
)

// IsTransmission reports whether p names exactly one protocol data can be
// exchanged with. Masks such as ProtocolAny and unknown values return false.
func (p Protocol) IsTransmission() bool {
	switch p {
	case ProtocolT0, ProtocolT1, ProtocolRaw, ProtocolT15:
		return true
	default:
		return false
	}
}

func (p Protocol) String() string {
	switch p {
	case ProtocolUndefined:
		return "Undefined"
	case ProtocolT0:
		return "T=0"
	case ProtocolT1:
		return "T=1"
	case ProtocolRaw:
		return "Raw"
	case ProtocolT15:
		return "T=15"
	case ProtocolAny:
		return "T=0|T=1"
	default:
		return fmt.Sprintf("Protocol(0x%04X)", uint32(p))
	}
}

// ParseProtocol maps the names accepted on the command line and in config
// files ("t0", "t1", "any", "raw", "t15") to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "t0", "T0", "T=0":
		return ProtocolT0, nil
	case "t1", "T1", "T=1":
		return ProtocolT1, nil
	case "any", "ANY", "":
		return ProtocolAny, nil
	case "raw", "RAW":
		return ProtocolRaw, nil
	case "t15", "T15", "T=15":
		return ProtocolT15, nil
	default:
		return ProtocolUndefined, fmt.Errorf("unknown protocol %q", s)
	}
}
