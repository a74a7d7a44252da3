package station

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
	"github.com/lcalzada-xor/wsta/internal/core/services/timer"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// DefaultQueueDepth is the event queue capacity when none is configured.
const DefaultQueueDepth = 256

// Snapshot is a consistent view of the station taken on the loop goroutine.
type Snapshot struct {
	State domain.WlanState           `json:"state"`
	Port  domain.ControlledPortState `json:"port"`
	Join  *domain.JoinContext        `json:"join,omitempty"`
	Assoc *domain.AssocContext       `json:"assoc,omitempty"`
	Stats domain.StationStats        `json:"stats"`
}

type job struct {
	name string
	// ctx is nil for frames, which are not traced.
	ctx  context.Context
	run  func(*Station) error
	done chan error
}

// Loop owns a Station and feeds it from a single goroutine. Producers on
// any goroutine post frames and requests; Run executes them one at a time
// interleaved with timer wakeups.
type Loop struct {
	sta     *Station
	timers  *timer.Manager
	queue   chan job
	tracer  trace.Tracer
	dropped atomic.Uint64
}

// NewLoop wraps sta. timers must be the manager sta was created with.
func NewLoop(sta *Station, timers *timer.Manager, depth int) *Loop {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Loop{
		sta:    sta,
		timers: timers,
		queue:  make(chan job, depth),
		tracer: otel.Tracer("wsta/station"),
	}
}

// Run dispatches events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("[STA] Event loop started for %s", l.sta.Address())
	defer l.timers.Close()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[STA] Event loop stopped")
			return ctx.Err()
		case j := <-l.queue:
			l.dispatch(j)
		case <-l.timers.C():
			l.sta.HandleTimeout()
		}
	}
}

func (l *Loop) dispatch(j job) {
	if j.ctx == nil {
		err := j.run(l.sta)
		if j.done != nil {
			j.done <- err
		}
		return
	}

	_, span := l.tracer.Start(j.ctx, j.name)
	from := l.sta.State()
	err := j.run(l.sta)
	span.SetAttributes(
		attribute.String("station.state.from", from.String()),
		attribute.String("station.state.to", l.sta.State().String()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Errors.WithLabelValues(string(domain.KindOf(err))).Inc()
	}
	span.End()
	if j.done != nil {
		j.done <- err
	}
}

// Dropped returns how many frames were discarded because the queue was full.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }

// PostWlanFrame queues a received frame. raw is copied. It never blocks and
// reports false when the queue is full.
func (l *Loop) PostWlanFrame(raw []byte, rx domain.RxInfo) bool {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	j := job{name: "wlan_frame", run: func(s *Station) error {
		s.HandleWlanFrame(buf, rx)
		return nil
	}}
	select {
	case l.queue <- j:
		return true
	default:
		l.dropped.Add(1)
		telemetry.FramesDropped.WithLabelValues(string(rawCategory(buf)), "queue_full").Inc()
		return false
	}
}

// call queues fn and waits for its result.
func (l *Loop) call(ctx context.Context, name string, fn func(*Station) error) error {
	j := job{name: name, ctx: ctx, run: fn, done: make(chan error, 1)}
	select {
	case l.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%s: event queue full: %w", name, domain.ErrResourceExhausted)
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostRequest executes an SME request and returns its error.
func (l *Loop) PostRequest(ctx context.Context, req domain.MlmeRequest) error {
	return l.call(ctx, req.Name(), func(s *Station) error {
		return s.HandleMlmeMsg(req)
	})
}

// SendEthernet transmits an outbound Ethernet II frame. frame is copied.
func (l *Loop) SendEthernet(ctx context.Context, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	return l.call(ctx, "send_ethernet", func(s *Station) error {
		return s.HandleEthFrame(buf)
	})
}

// PreSwitchOffChannel implements ports.OffChannelListener.
func (l *Loop) PreSwitchOffChannel(ctx context.Context) error {
	return l.call(ctx, "pre_switch_off_channel", func(s *Station) error {
		s.PreSwitchOffChannel()
		return nil
	})
}

// BackToMainChannel implements ports.OffChannelListener.
func (l *Loop) BackToMainChannel(ctx context.Context) error {
	return l.call(ctx, "back_to_main_channel", func(s *Station) error {
		s.BackToMainChannel()
		return nil
	})
}

// Snapshot returns the station state as seen between two events.
func (l *Loop) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(chan Snapshot, 1)
	err := l.call(ctx, "snapshot", func(s *Station) error {
		snap := Snapshot{State: s.State(), Port: s.PortState(), Stats: s.Stats()}
		if j, ok := s.JoinContext(); ok {
			snap.Join = &j
		}
		if a, ok := s.AssocContext(); ok {
			snap.Assoc = &a
		}
		out <- snap
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return <-out, nil
}
