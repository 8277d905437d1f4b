package brain

import (
	"sort"
	"time"

	"github.com/chazu/brain/vm"
)

type timer struct {
	due    time.Duration
	handle vm.HandleID
}

// timerQueue holds handles to resolve on the brain clock, ordered by due
// time. Timers with the same due time fire in insertion order.
type timerQueue struct {
	timers []timer
}

func (q *timerQueue) add(due time.Duration, h vm.HandleID) {
	i := sort.Search(len(q.timers), func(i int) bool { return q.timers[i].due > due })
	q.timers = append(q.timers, timer{})
	copy(q.timers[i+1:], q.timers[i:])
	q.timers[i] = timer{due: due, handle: h}
}

// fire resolves every handle due at or before now with Void. Handles that
// were cancelled or released in the meantime are skipped.
func (q *timerQueue) fire(now time.Duration, handles *vm.HandleTable) int {
	n := 0
	for n < len(q.timers) && q.timers[n].due <= now {
		_ = handles.Resolve(q.timers[n].handle, vm.Void)
		n++
	}
	q.timers = q.timers[n:]
	return n
}

func (q *timerQueue) len() int { return len(q.timers) }

// cancel completes every queued handle as cancelled and empties the queue.
// Handles whose fibers are gone are dropped from the table.
func (q *timerQueue) cancel(handles *vm.HandleTable) {
	for _, t := range q.timers {
		_ = handles.Cancel(t.handle)
	}
	q.timers = nil
}
