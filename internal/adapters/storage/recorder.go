package storage

import (
	"context"
	"log"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
)

// Recorder is an SME that stamps every message as an Event, journals it,
// and passes the message on to the next SME. A JoinConfirm starts a new
// session.
type Recorder struct {
	next    ports.SME
	journal ports.EventJournal
	clock   clock.Clock

	mu        sync.RWMutex
	session   string
	listeners []func(domain.Event)
}

// NewRecorder wraps next. journal may be nil to only stamp and fan out.
func NewRecorder(next ports.SME, journal ports.EventJournal, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Recorder{
		next:    next,
		journal: journal,
		clock:   clk,
		session: uuid.NewString(),
	}
}

// Session returns the current session id.
func (r *Recorder) Session() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

// OnEvent registers fn to be called with every event. fn must not block.
func (r *Recorder) OnEvent(fn func(domain.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Send implements ports.SME.
func (r *Recorder) Send(msg domain.MlmeMsg) {
	r.mu.Lock()
	if _, ok := msg.(domain.JoinConfirm); ok {
		r.session = uuid.NewString()
	}
	ev := domain.Event{
		ID:      uuid.NewString(),
		Session: r.session,
		Time:    r.clock.Now(),
		Name:    msg.Name(),
		Message: msg,
	}
	listeners := r.listeners
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Record(context.Background(), ev); err != nil {
			log.Printf("[JOURNAL] Dropped %s: %v", ev.Name, err)
		}
	}
	for _, fn := range listeners {
		fn(ev)
	}
	if r.next != nil {
		r.next.Send(msg)
	}
}

var _ ports.SME = (*Recorder)(nil)
