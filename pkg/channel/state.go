package channel

import "fmt"

// State is the lifecycle position of a CardChannel.
type State int

const (
	Unattached State = iota
	Attached
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// legal lists the states each operation may start from.
var legal = map[string][]State{
	opAttach:     {Unattached, Disconnected},
	opDetach:     {Attached, Disconnected},
	opConnect:    {Attached},
	opReconnect:  {Connected},
	opDisconnect: {Connected},
	opTransmit:   {Connected},
	opGetAttrib:  {Connected},
	opGetStatus:  {Connected},
}

const (
	opAttach     = "attach"
	opDetach     = "detach"
	opConnect    = "connect"
	opReconnect  = "reconnect"
	opDisconnect = "disconnect"
	opTransmit   = "transmit"
	opGetAttrib  = "get attrib"
	opGetStatus  = "get status"
)

func allowed(op string, s State) bool {
	for _, from := range legal[op] {
		if from == s {
			return true
		}
	}
	return false
}
