// Package sync ties the replication engine together: the lifecycle
// state machine, the realtime feed wiring, reconciliation kickoff and
// offline queue flushing.
package sync

import (
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/sync/reconcile"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Event is a typed engine notification. Collaborators consume the
// coordinator's event channel instead of a global event bus.
type Event interface {
	event()
}

// StateChanged reports a lifecycle transition.
type StateChanged struct {
	Old State
	New State
}

// SyncCompleted reports a finished reconciliation pass with its
// upload/download/delete and error counts. FirstSync passes get a
// distinct notice in the UI.
type SyncCompleted struct {
	Summary *reconcile.Summary
}

// QueueWarning reports an offline mutation abandoned after its retry
// budget. This must reach the user; it is never swallowed.
type QueueWarning struct {
	Op *models.PendingOperation
}

// TableError reports one table's reconciliation failure. Primary
// content tables carry user data the user is actively looking at, so
// their failures are flagged for distinct presentation.
type TableError struct {
	Table   models.Table
	Primary bool
	Err     error
}

func (StateChanged) event()  {}
func (SyncCompleted) event() {}
func (QueueWarning) event()  {}
func (TableError) event()    {}
