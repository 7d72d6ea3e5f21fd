package client

// State is the protocol state of a Controller.
//
//	Disconnected → Connecting → AwaitingPlayerID → AwaitingWorldSize → Streaming
//	Streaming → Disconnected            (user disconnect, remote close)
//	Streaming → Faulted → Disconnected  (I/O failure)
type State int32

const (
	StateDisconnected      State = iota // no socket
	StateConnecting                     // dialing, sending player name
	StateAwaitingPlayerID               // name sent, waiting for first integer
	StateAwaitingWorldSize              // player ID known, waiting for second integer
	StateStreaming                      // World exists, entity records flowing
	StateFaulted                        // transport failed, teardown in progress
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingPlayerID:
		return "AWAITING_PLAYER_ID"
	case StateAwaitingWorldSize:
		return "AWAITING_WORLD_SIZE"
	case StateStreaming:
		return "STREAMING"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}
