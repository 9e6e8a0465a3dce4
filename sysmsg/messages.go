package sysmsg

import (
	"time"
)

// Failure is handed to a supervisor's failure observer when a child is
// terminally stopped: either its restart budget ran out or its policy said
// to stop/escalate on the first failure.
type Failure struct {
	// ID of the failed actor cell
	ID string
	// Name the actor was spawned under
	Name string
	// Reason behind the last transition to the failed state
	Reason Reason
	// Restarts performed within the supervisor's window before giving up
	Restarts int
	// At is the time the supervisor gave up
	At time.Time
}

func (f Failure) systemMessage() {}

// StreamItem wraps one item pulled from a stream subscription. It is
// delivered through the actor's regular receive path, one item at a time.
type StreamItem struct {
	SubscriptionID string
	Item           interface{}
}

func (s StreamItem) systemMessage() {}

// StreamTimeout notifies the actor exactly once that an item of the
// subscription missed its per-item deadline. No further items follow.
type StreamTimeout struct {
	SubscriptionID string
}

func (s StreamTimeout) systemMessage() {}

// StreamCompleted notifies the actor that the subscription's source has been
// exhausted.
type StreamCompleted struct {
	SubscriptionID string
}

func (s StreamCompleted) systemMessage() {}
