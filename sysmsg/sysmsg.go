package sysmsg

// SystemMessage is implemented by every event the runtime itself may deliver
// to a behavior or to a supervisor's failure observer.
type SystemMessage interface {
	systemMessage()
}

// Reason describes why an actor cell left the Running state.
type Reason struct {
	Type    string
	Details interface{}
}

const (
	// Panic reason when the behavior panicked while processing a message
	Panic = "panic"
	// Error reason when the behavior returned a non-nil error
	Error = "error"
	// Timeout reason when a processing deadline elapsed before the behavior finished
	Timeout = "timeout"
	// Shutdown reason when the actor was stopped on purpose
	Shutdown = "shutdown"
	// StartFailure reason when the start hook of a fresh cell errored
	StartFailure = "start_failure"
	// MaxRestarts reason when a child exhausted its supervisor's restart budget
	MaxRestarts = "max_restarts_reached"
)
