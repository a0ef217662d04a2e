package capture

// State is the capture state machine's current state.
type State string

// Unit states.
const (
	StateIdle       State = "idle"       // Device open, no format committed
	StateConfigured State = "configured" // Format committed, buffers mapped
	StateStreaming  State = "streaming"  // Device actively capturing
)

// Stats holds running counters for a unit.
type Stats struct {
	Frames        uint64 // Frames delivered to the handler
	Dropped       uint64 // Frames lost to automatic stream restarts
	Restarts      uint64 // Successful automatic restarts
	HandlerErrors uint64 // OnFrame calls that returned an error
	WouldBlock    uint64 // ProduceOne calls that found nothing ready
}
