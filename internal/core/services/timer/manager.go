// Package timer schedules one-shot timeouts on the station's dispatch thread.
package timer

import (
	"container/heap"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// TimeoutID identifies a scheduled timeout. The zero value never identifies
// a live timeout.
type TimeoutID uint64

type entry struct {
	deadline time.Time
	id       TimeoutID
	index    int
}

// deadlineHeap orders entries by deadline, then by scheduling order.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *deadlineHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Manager multiplexes any number of one-shot deadlines onto a single
// underlying clock timer. It is not safe for concurrent use; the owning
// event loop serializes every call.
type Manager struct {
	clock  clock.Clock
	timer  clock.Timer
	queue  deadlineHeap
	byID   map[TimeoutID]*entry
	firing map[TimeoutID]struct{}
	nextID TimeoutID
	closed bool
}

// New creates a Manager driven by clk.
func New(clk clock.Clock) *Manager {
	t := clk.NewTimer(time.Hour)
	t.Stop()
	return &Manager{
		clock:  clk,
		timer:  t,
		byID:   make(map[TimeoutID]*entry),
		firing: make(map[TimeoutID]struct{}),
	}
}

// Now returns the current time of the manager's clock.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

// Schedule arms a one-shot timeout at deadline. It never replaces another
// timeout; callers cancel the previous occupant of a slot themselves.
func (m *Manager) Schedule(deadline time.Time) (TimeoutID, error) {
	if m.closed {
		return 0, fmt.Errorf("timer: schedule on closed manager: %w", domain.ErrInternal)
	}
	if deadline.IsZero() {
		return 0, fmt.Errorf("timer: zero deadline: %w", domain.ErrInternal)
	}
	m.nextID++
	e := &entry{deadline: deadline, id: m.nextID}
	heap.Push(&m.queue, e)
	m.byID[e.id] = e
	if m.queue[0] == e {
		m.rearm()
	}
	return e.id, nil
}

// Cancel forgets id. Unknown or already fired ids are ignored.
func (m *Manager) Cancel(id TimeoutID) {
	delete(m.firing, id)
	e, ok := m.byID[id]
	if !ok {
		return
	}
	heap.Remove(&m.queue, e.index)
	delete(m.byID, id)
}

// HandleTimeout visits every timeout whose deadline has passed, in deadline
// order, and re-arms the underlying timer for the next one. A timeout
// cancelled by an earlier visit in the same batch is skipped.
func (m *Manager) HandleTimeout(visit func(now time.Time, id TimeoutID)) error {
	if m.closed {
		return fmt.Errorf("timer: handle timeout on closed manager: %w", domain.ErrInternal)
	}
	now := m.clock.Now()
	var due []TimeoutID
	for len(m.queue) > 0 && !m.queue[0].deadline.After(now) {
		e := heap.Pop(&m.queue).(*entry)
		delete(m.byID, e.id)
		m.firing[e.id] = struct{}{}
		due = append(due, e.id)
	}
	for _, id := range due {
		if _, ok := m.firing[id]; !ok {
			continue
		}
		delete(m.firing, id)
		visit(now, id)
	}
	m.rearm()
	return nil
}

// C delivers a value whenever HandleTimeout should be called.
func (m *Manager) C() <-chan time.Time {
	return m.timer.C()
}

// Pending returns the number of scheduled timeouts.
func (m *Manager) Pending() int {
	return len(m.queue)
}

// Close stops the underlying timer. Later calls to Schedule and
// HandleTimeout fail with domain.ErrInternal.
func (m *Manager) Close() {
	m.closed = true
	m.timer.Stop()
	m.queue = nil
	m.byID = make(map[TimeoutID]*entry)
}

func (m *Manager) rearm() {
	m.timer.Stop()
	if len(m.queue) == 0 {
		return
	}
	d := m.queue[0].deadline.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}
	m.timer.Reset(d)
}
