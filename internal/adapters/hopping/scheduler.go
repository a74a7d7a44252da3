package hopping

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/lcalzada-xor/wsta/internal/adapters/driver"
	"github.com/lcalzada-xor/wsta/internal/core/ports"
	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// ErrNoHomeChannel is returned by Excursion before the station has a
// channel to come back to.
var ErrNoHomeChannel = errors.New("hopping: no home channel")

// Config tunes the scan scheduler.
type Config struct {
	Interface string
	Channels  []int
	// Interval is the time spent on the home channel between excursions.
	Interval time.Duration
	// Dwell is the time spent on each scan channel.
	Dwell time.Duration
}

// Scheduler periodically takes the radio to a scan channel and back. The
// station is told before the radio leaves and after it returns, so frames
// are not sent to an AP that cannot hear them.
type Scheduler struct {
	cfg      Config
	home     func() int
	switcher ports.ChannelSwitcher
	listener ports.OffChannelListener
	clock    clock.Clock

	mu           sync.Mutex // Protects channels and currentIndex
	channels     []int
	currentIndex int
	errorCount   int

	state     stateCell
	stopChan  chan struct{}
	stopOnce  sync.Once
	pauseChan chan time.Duration
}

// NewScheduler creates a scheduler. home returns the channel to return to,
// or 0 while there is none. A nil switcher tunes the interface with iw.
func NewScheduler(cfg Config, home func() int, switcher ports.ChannelSwitcher, listener ports.OffChannelListener, clk clock.Clock) *Scheduler {
	if switcher == nil {
		switcher = driver.New()
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	channels := make([]int, len(cfg.Channels))
	copy(channels, cfg.Channels)
	return &Scheduler{
		cfg:       cfg,
		home:      home,
		switcher:  switcher,
		listener:  listener,
		clock:     clk,
		channels:  channels,
		stopChan:  make(chan struct{}),
		pauseChan: make(chan time.Duration, 1),
	}
}

// State returns where the scheduler is in its cycle.
func (s *Scheduler) State() SchedulerState { return s.state.Load() }

// SetChannels updates the scan list.
func (s *Scheduler) SetChannels(channels []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append([]int(nil), channels...)
	s.currentIndex = 0
	log.Printf("[HOP] Scan channels updated to: %v", channels)
}

// Channels returns a copy of the scan list.
func (s *Scheduler) Channels() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]int, len(s.channels))
	copy(result, s.channels)
	return result
}

// Stop signals the scheduler to shut down.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Pause suspends excursions for d.
func (s *Scheduler) Pause(d time.Duration) {
	select {
	case s.pauseChan <- d:
	default:
	}
}

// Run schedules excursions until ctx is done or Stop is called. An
// excursion in progress always returns to the home channel first.
func (s *Scheduler) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HOP] Recovered from panic in scheduler: %v", r)
		}
		s.state.Store(StateStopped)
	}()
	if s.cfg.Interval <= 0 {
		log.Printf("[HOP] Scanning disabled on %s", s.cfg.Interface)
		return
	}

	log.Printf("[HOP] Starting scan scheduler on %s (interval=%v dwell=%v)", s.cfg.Interface, s.cfg.Interval, s.cfg.Dwell)
	s.state.Store(StateOnChannel)
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			log.Printf("[HOP] Stopping scan scheduler on %s", s.cfg.Interface)
			return
		case d := <-s.pauseChan:
			log.Printf("[HOP] Scheduler on %s PAUSED for %v", s.cfg.Interface, d)
			ticker.Stop()
			s.state.Store(StatePaused)
			select {
			case <-s.clock.After(d):
				log.Printf("[HOP] Scheduler on %s RESUMING", s.cfg.Interface)
				s.state.Store(StateOnChannel)
				ticker = s.clock.NewTicker(s.cfg.Interval)
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
		case <-ticker.C():
			if err := s.Excursion(ctx); err != nil && !errors.Is(err, ErrNoHomeChannel) {
				log.Printf("[HOP] Excursion failed: %v", err)
			}
		}
	}
}

// next returns the next scan channel in round robin order, skipping home.
func (s *Scheduler) next(home int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range s.channels {
		if s.currentIndex >= len(s.channels) {
			s.currentIndex = 0
		}
		ch := s.channels[s.currentIndex]
		s.currentIndex++
		if ch != home {
			return ch, true
		}
	}
	return 0, false
}

// Excursion visits the next scan channel for one dwell and comes back.
func (s *Scheduler) Excursion(ctx context.Context) error {
	home := s.home()
	if home == 0 {
		return ErrNoHomeChannel
	}
	ch, ok := s.next(home)
	if !ok {
		return nil
	}

	if err := s.listener.PreSwitchOffChannel(ctx); err != nil {
		return err
	}
	s.state.Store(StateOffChannel)
	defer s.state.Store(StateOnChannel)

	if err := s.switcher.SetChannel(s.cfg.Interface, ch); err != nil {
		s.switchFailed(ch, err)
	} else {
		select {
		case <-s.clock.After(s.cfg.Dwell):
		case <-ctx.Done():
		case <-s.stopChan:
		}
	}

	// The station is released even if the radio could not be retuned; it
	// will lose the BSS and deauthenticate on its own.
	if err := s.switcher.SetChannel(s.cfg.Interface, home); err != nil {
		s.switchFailed(home, err)
	} else {
		s.recovered()
	}
	telemetry.ChannelExcursions.Inc()
	return s.listener.BackToMainChannel(ctx)
}

func (s *Scheduler) switchFailed(ch int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	// Log warning but don't spam if it's persistent
	if s.errorCount == 1 || s.errorCount%10 == 0 {
		log.Printf("[HOP] Warning: Failed to set channel %d: %v (Consecutive errors: %d)", ch, err, s.errorCount)
	}
}

func (s *Scheduler) recovered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorCount > 0 {
		log.Printf("[HOP] Scheduler recovered after %d errors.", s.errorCount)
		s.errorCount = 0
	}
}
