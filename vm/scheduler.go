package vm

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("brain.vm")

// ---------------------------------------------------------------------------
// Scheduler: cooperative fiber scheduling
// ---------------------------------------------------------------------------

// Scheduler owns the fibers of one host. Runnable fibers run FIFO; a fiber
// runs until it returns, yields, suspends on a handle, faults, or spends
// its instruction budget. Yielded and preempted fibers resume on the next
// tick; fibers woken by a handle resume within the current tick.
type Scheduler struct {
	interp  *Interpreter
	handles *HandleTable
	host    Host
	limits  Limits

	fibers map[FiberID]*Fiber
	nextID FiberID
	queue  []*Fiber // runnable this tick
	next   []*Fiber // runnable next tick

	inboxMu sync.Mutex
	inbox   []func()

	// OnFiberDone fires when a fiber returns from its outermost frame.
	OnFiberDone func(f *Fiber)
	// OnFiberFault fires when an error escapes every TRY region of a fiber.
	OnFiberFault func(f *Fiber, err *ErrorValue)
}

// NewScheduler creates a scheduler executing prog on behalf of host.
func NewScheduler(prog *BrainProgram, svc *Services, host Host, limits Limits) *Scheduler {
	limits = limits.withDefaults()
	handles := NewHandleTable(limits.MaxHandles)
	s := &Scheduler{
		interp:  NewInterpreter(prog, svc, limits, handles),
		handles: handles,
		host:    host,
		limits:  limits,
		fibers:  make(map[FiberID]*Fiber),
	}
	handles.OnCompleted(s.ResumeFiberFromHandle)
	return s
}

// Handles returns the scheduler's handle table.
func (s *Scheduler) Handles() *HandleTable { return s.handles }

// Program returns the program the scheduler executes.
func (s *Scheduler) Program() *BrainProgram { return s.interp.prog }

// Spawn creates a runnable fiber executing funcID.
func (s *Scheduler) Spawn(funcID int) (*Fiber, error) {
	if funcID < 0 || funcID >= len(s.interp.prog.Functions) {
		return nil, fmt.Errorf("scheduler: function %d out of range", funcID)
	}
	if len(s.fibers) >= s.limits.MaxFibers {
		return nil, NewError(ErrLimitExceeded, "too many live fibers (max %d)", s.limits.MaxFibers)
	}
	s.nextID++
	f := newFiber(s.nextID, funcID)
	f.ctx = &ExecutionContext{
		host:    s.host,
		prog:    s.interp.prog,
		handles: s.handles,
		fiber:   f,
		funcID:  funcID,
	}
	s.fibers[f.ID] = f
	s.queue = append(s.queue, f)
	return f, nil
}

// Fiber returns a live fiber by id.
func (s *Scheduler) Fiber(id FiberID) (*Fiber, bool) {
	f, ok := s.fibers[id]
	return f, ok
}

// Live returns the number of fibers that have not terminated.
func (s *Scheduler) Live() int {
	return len(s.fibers)
}

// Post queues fn to run on the scheduler's goroutine at the start of the
// next Tick. It is the only Scheduler method safe to call concurrently;
// hosts use it to complete handles from worker goroutines.
func (s *Scheduler) Post(fn func()) {
	s.inboxMu.Lock()
	s.inbox = append(s.inbox, fn)
	s.inboxMu.Unlock()
}

func (s *Scheduler) drainInbox() {
	s.inboxMu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()
	for _, fn := range inbox {
		fn()
	}
}

// Tick runs every runnable fiber until the run queue is empty.
func (s *Scheduler) Tick() {
	s.drainInbox()
	s.queue = append(s.queue, s.next...)
	s.next = nil

	for len(s.queue) > 0 {
		f := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		if f.State != FiberRunnable {
			continue
		}
		s.run(f)
	}
	s.queue = nil
}

func (s *Scheduler) run(f *Fiber) {
	switch status := s.interp.Run(f, s.limits.InstrBudget); status {
	case RunDone:
		log.Debugf("%s returned %v", f, f.Result)
		s.finish(f)
		if s.OnFiberDone != nil {
			s.OnFiberDone(f)
		}
	case RunFault:
		log.Debugf("%s faulted: %v", f, f.Err)
		s.finish(f)
		if s.OnFiberFault != nil {
			s.OnFiberFault(f, f.Err)
		}
	case RunYielded, RunBudget:
		s.next = append(s.next, f)
	case RunWaiting:
		// Parked until ResumeFiberFromHandle.
	}
}

// ResumeFiberFromHandle makes every fiber waiting on h runnable again.
// It is the HandleTable's completion listener.
func (s *Scheduler) ResumeFiberFromHandle(h *Handle) {
	for _, id := range h.Waiters() {
		f, ok := s.fibers[id]
		if !ok || f.State != FiberWaiting || f.awaiting != h.ID {
			continue
		}
		f.awaiting = 0
		f.State = FiberRunnable
		s.queue = append(s.queue, f)
	}
}

// Cancel terminates a fiber without running any of its TRY handlers.
func (s *Scheduler) Cancel(id FiberID) error {
	f, ok := s.fibers[id]
	if !ok {
		return fmt.Errorf("scheduler: unknown fiber %d", id)
	}
	f.State = FiberCancelled
	f.Err = NewError(ErrCancelled, "fiber %d cancelled", id)
	s.finish(f)
	return nil
}

// CancelAll cancels every live fiber.
func (s *Scheduler) CancelAll() {
	for id := range s.fibers {
		_ = s.Cancel(id)
	}
	s.queue = nil
	s.next = nil
}

// finish releases a terminal fiber's handles and forgets it.
func (s *Scheduler) finish(f *Fiber) {
	if f.awaiting != 0 {
		if h, ok := s.handles.Get(f.awaiting); ok {
			h.removeWaiter(f.ID)
		}
	}
	s.handles.release(f.ID, f.handles)
	f.handles = nil
	f.clear()
	delete(s.fibers, f.ID)
}
