package wstest

import (
	"slices"
	"sync"
	"time"

	"github.com/shieldkit/webshield/internal/wstime"
)

// VirtualScheduler is a [wstime.Scheduler] for tests.  Functions only run when
// the virtual time is advanced with [VirtualScheduler.Advance], and they run
// synchronously, in the order of their deadlines.
type VirtualScheduler struct {
	mu    *sync.Mutex
	now   time.Duration
	tasks []*virtualTask
}

// NewVirtualScheduler returns a new *VirtualScheduler with the virtual time set
// to zero.
func NewVirtualScheduler() (s *VirtualScheduler) {
	return &VirtualScheduler{
		mu: &sync.Mutex{},
	}
}

// virtualTask is a function scheduled on a *VirtualScheduler.
type virtualTask struct {
	sched    *VirtualScheduler
	f        func()
	deadline time.Duration
}

// type check
var _ wstime.Scheduler = (*VirtualScheduler)(nil)

// AfterFunc implements the [wstime.Scheduler] interface for *VirtualScheduler.
func (s *VirtualScheduler) AfterFunc(d time.Duration, f func()) (t wstime.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &virtualTask{
		sched:    s,
		f:        f,
		deadline: s.now + d,
	}
	s.tasks = append(s.tasks, task)

	return task
}

// type check
var _ wstime.Timer = (*virtualTask)(nil)

// Stop implements the [wstime.Timer] interface for *virtualTask.
func (t *virtualTask) Stop() (stopped bool) {
	s := t.sched

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.tasks, t)
	if i < 0 {
		return false
	}

	s.tasks = slices.Delete(s.tasks, i, i+1)

	return true
}

// Advance moves the virtual time forward by d and runs all functions whose
// deadlines have passed, including the ones scheduled by those functions.
func (s *VirtualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		task := s.popDue(target)
		if task == nil {
			break
		}

		task.f()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = target
}

// popDue removes and returns the earliest task with the deadline not after
// target.  It returns nil if there are no such tasks.
func (s *VirtualScheduler) popDue(target time.Duration) (t *virtualTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := -1
	for j, task := range s.tasks {
		if task.deadline <= target && (i < 0 || task.deadline < s.tasks[i].deadline) {
			i = j
		}
	}

	if i < 0 {
		return nil
	}

	t = s.tasks[i]
	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.now = max(s.now, t.deadline)

	return t
}

// Pending returns the delays of the pending functions relative to the current
// virtual time, sorted.
func (s *VirtualScheduler) Pending() (delays []time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks {
		delays = append(delays, task.deadline-s.now)
	}

	slices.Sort(delays)

	return delays
}
