package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Async handles
// ---------------------------------------------------------------------------

// HandleID identifies an async operation. Zero is never a valid id.
type HandleID int

// HandleState is the lifecycle state of a handle. Transitions are one-way:
// Pending -> Resolved | Rejected | Cancelled.
type HandleState uint8

const (
	HandlePending HandleState = iota
	HandleResolved
	HandleRejected
	HandleCancelled
)

func (s HandleState) String() string {
	switch s {
	case HandlePending:
		return "pending"
	case HandleResolved:
		return "resolved"
	case HandleRejected:
		return "rejected"
	case HandleCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("HandleState(%d)", s)
}

// Handle is the result cell of one async host operation.
type Handle struct {
	ID     HandleID
	State  HandleState
	Result Value
	Err    *ErrorValue

	owner   FiberID // 0 once the creating fiber has terminated
	waiters []FiberID
}

// Done reports whether the handle reached a terminal state.
func (h *Handle) Done() bool {
	return h.State != HandlePending
}

// Waiters returns the fibers parked on the handle.
func (h *Handle) Waiters() []FiberID {
	return append([]FiberID(nil), h.waiters...)
}

func (h *Handle) addWaiter(id FiberID) {
	for _, w := range h.waiters {
		if w == id {
			return
		}
	}
	h.waiters = append(h.waiters, id)
}

func (h *Handle) removeWaiter(id FiberID) {
	for i, w := range h.waiters {
		if w == id {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// HandleTable owns every outstanding handle of one scheduler. It is the
// only path by which async results re-enter the VM. Like the rest of the
// VM it is driven from a single goroutine; hosts completing work on other
// goroutines hand the completion over with Scheduler.Post.
type HandleTable struct {
	handles map[HandleID]*Handle
	nextID  HandleID
	max     int

	// onCompleted fires after every terminal transition.
	onCompleted func(h *Handle)
}

// NewHandleTable returns an empty table allowing at most max outstanding
// handles. max <= 0 means DefaultLimits().MaxHandles.
func NewHandleTable(max int) *HandleTable {
	if max <= 0 {
		max = DefaultLimits().MaxHandles
	}
	return &HandleTable{handles: make(map[HandleID]*Handle), max: max}
}

// OnCompleted installs the completion listener.
func (t *HandleTable) OnCompleted(fn func(h *Handle)) {
	t.onCompleted = fn
}

// CreatePending allocates a new pending handle owned by fiber owner.
func (t *HandleTable) CreatePending(owner FiberID) (HandleID, error) {
	if len(t.handles) >= t.max {
		return 0, NewError(ErrLimitExceeded, "too many outstanding handles (max %d)", t.max)
	}
	t.nextID++
	h := &Handle{ID: t.nextID, State: HandlePending, owner: owner}
	t.handles[h.ID] = h
	return h.ID, nil
}

// Get returns the handle with id.
func (t *HandleTable) Get(id HandleID) (*Handle, bool) {
	h, ok := t.handles[id]
	return h, ok
}

// Len returns the number of handles still held by the table.
func (t *HandleTable) Len() int {
	return len(t.handles)
}

// Resolve completes the handle successfully.
func (t *HandleTable) Resolve(id HandleID, result Value) error {
	return t.complete(id, HandleResolved, result, nil)
}

// Reject completes the handle with an error. Plain Go errors become
// HostError values.
func (t *HandleTable) Reject(id HandleID, err error) error {
	if err == nil {
		err = NewError(ErrHost, "handle %d rejected", id)
	}
	return t.complete(id, HandleRejected, Nil, AsErrorValue(err))
}

// Cancel completes the handle as cancelled.
func (t *HandleTable) Cancel(id HandleID) error {
	return t.complete(id, HandleCancelled, Nil, NewError(ErrCancelled, "handle %d cancelled", id))
}

func (t *HandleTable) complete(id HandleID, state HandleState, result Value, err *ErrorValue) error {
	h, ok := t.handles[id]
	if !ok {
		return fmt.Errorf("handles: unknown handle %d", id)
	}
	if h.Done() {
		return fmt.Errorf("handles: handle %d already %s", id, h.State)
	}
	h.State = state
	h.Result = result
	h.Err = err

	if h.owner == 0 && len(h.waiters) == 0 {
		// Orphaned: nobody can observe the result any more.
		delete(t.handles, id)
		return nil
	}
	if t.onCompleted != nil {
		t.onCompleted(h)
	}
	return nil
}

// consume is called by AWAIT once fiber has read a completed handle.
func (t *HandleTable) consume(h *Handle, fiber FiberID) {
	h.removeWaiter(fiber)
	if len(h.waiters) == 0 {
		delete(t.handles, h.ID)
	}
}

// release detaches the handles created by a terminated fiber. Completed
// handles are dropped; pending ones stay until the host completes them.
func (t *HandleTable) release(fiber FiberID, ids []HandleID) {
	for _, id := range ids {
		h, ok := t.handles[id]
		if !ok || h.owner != fiber {
			continue
		}
		h.owner = 0
		h.removeWaiter(fiber)
		if h.Done() && len(h.waiters) == 0 {
			delete(t.handles, id)
		}
	}
}
