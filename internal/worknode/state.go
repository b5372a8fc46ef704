// Package worknode implements the per-node lifecycle state machine of
// spec §4.4: one instance drives a single logical node from its first
// bid through a struck deal, a launched task, and eventual completion
// or retry, driven purely by MarketAPI responses and elapsed time.
package worknode

import "github.com/marketfleet/supervisor/internal/config"

// State is one of the 13 lifecycle states of §4.4.
type State string

const (
	StateStart            State = "START"
	StateCreateOrder       State = "CREATE_ORDER"
	StatePlacingOrder      State = "PLACING_ORDER"
	StateAwaitingDeal      State = "AWAITING_DEAL"
	StateDealOpened        State = "DEAL_OPENED"
	StateDealDisappeared   State = "DEAL_DISAPPEARED"
	StateStartingTask      State = "STARTING_TASK"
	StateTaskRunning       State = "TASK_RUNNING"
	StateTaskFailed        State = "TASK_FAILED"
	StateTaskFailedToStart State = "TASK_FAILED_TO_START"
	StateTaskBroken        State = "TASK_BROKEN"
	StateTaskFinished      State = "TASK_FINISHED"
	StateWorkCompleted     State = "WORK_COMPLETED"
)

// hasDeal is true for every state the §8 invariant #1 requires dealId to
// be set in.
func (s State) hasDeal() bool {
	switch s {
	case StateDealOpened, StateStartingTask, StateTaskRunning, StateTaskFailed,
		StateTaskFailedToStart, StateTaskBroken, StateTaskFinished:
		return true
	default:
		return false
	}
}

// clearsIdentifiers is true for the states that reset dealId/orderId/
// taskId/taskUptime on entry (§3 invariants, §4.4 DEAL_DISAPPEARED step).
func (s State) clearsIdentifiers() bool {
	switch s {
	case StateCreateOrder, StateWorkCompleted, StateDealDisappeared:
		return true
	default:
		return false
	}
}

// Snapshot is an immutable, point-in-time copy of a WorkNodeState for
// display (fleet printer) or test assertions — taking one never races
// with the owning WorkNode's own mutations (§5).
type Snapshot struct {
	Tag        string
	Status     State
	OrderID    string
	DealID     string
	TaskID     string
	Price      string
	TaskUptime int
}

// WorkNodeState is a node's in-memory record (§3). It is only ever
// mutated by its own WorkNode's goroutine.
type WorkNodeState struct {
	Tag        string
	Status     State
	OrderID    string
	DealID     string
	TaskID     string
	Price      string // display form, e.g. "0.1234"
	TaskUptime int
	Config     config.NodeConfig
}

// NewFreshState builds a WorkNodeState for a node that hasn't touched the
// marketplace yet (§3 "(a) freshly from config").
func NewFreshState(cfg config.NodeConfig) WorkNodeState {
	return WorkNodeState{
		Tag:    cfg.Tag,
		Status: StateStart,
		Config: cfg,
	}
}

// transitionTo moves the state to next, applying the identifier-clearing
// invariant where it applies. Callers are responsible for having already
// set any ids this tick needs (e.g. DealID before moving to DEAL_OPENED);
// transitionTo only ever clears, never sets, identifiers.
func (s *WorkNodeState) transitionTo(next State) {
	s.Status = next
	if next.clearsIdentifiers() {
		s.DealID = ""
		s.OrderID = ""
		s.TaskID = ""
		s.TaskUptime = 0
	}
}

// Snapshot copies the state for safe concurrent reads.
func (s WorkNodeState) Snapshot() Snapshot {
	return Snapshot{
		Tag:        s.Tag,
		Status:     s.Status,
		OrderID:    s.OrderID,
		DealID:     s.DealID,
		TaskID:     s.TaskID,
		Price:      s.Price,
		TaskUptime: s.TaskUptime,
	}
}
