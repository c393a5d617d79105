package xotalk

import "fmt"

// State is the connection state of a Client. States are ordered: a state
// compares greater than every state it can only be reached through.
type State int32

const (
	// StateInactive is the state after Deactivate and before Activate.
	StateInactive State = iota
	// StateIdle means the client is active but disconnected after a period
	// without user activity.
	StateIdle
	// StateConnecting waits for the next connection attempt.
	StateConnecting
	// StateReconnecting is a connection attempt requested by Reconnect.
	StateReconnecting
	// StateRegistering registers a fresh identity with the relay.
	StateRegistering
	// StateLogin authenticates the identity.
	StateLogin
	// StateSyncing reconciles contacts with the relay.
	StateSyncing
	// StateActive is fully connected.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateRegistering:
		return "REGISTERING"
	case StateLogin:
		return "LOGIN"
	case StateSyncing:
		return "SYNCING"
	case StateActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StateListener is called on the client's executor with every new state.
type StateListener func(state State)

// AlertListener receives alertUser messages from the relay.
type AlertListener func(message string)
