package hopping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/wsta/internal/telemetry"
)

// trace is both the channel switcher and the station; it records the
// order in which the scheduler calls them.
type trace struct {
	mu     sync.Mutex
	events []string
	failOn int
	preErr error
}

func (tr *trace) record(e string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, e)
}

func (tr *trace) Events() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func (tr *trace) SetChannel(iface string, channel int) error {
	tr.record(fmt.Sprintf("set:%d", channel))
	if channel == tr.failOn {
		return errors.New("mock failure")
	}
	return nil
}

func (tr *trace) PreSwitchOffChannel(ctx context.Context) error {
	if tr.preErr != nil {
		return tr.preErr
	}
	tr.record("pre")
	return nil
}

func (tr *trace) BackToMainChannel(ctx context.Context) error {
	tr.record("back")
	return nil
}

const (
	interval = 500 * time.Millisecond
	dwell    = 50 * time.Millisecond
)

func newTestScheduler(channels []int, home int) (*Scheduler, *trace, *fakeclock.FakeClock) {
	tr := &trace{}
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := Config{Interface: "wlan0mon", Channels: channels, Interval: interval, Dwell: dwell}
	s := NewScheduler(cfg, func() int { return home }, tr, tr, clk)
	return s, tr, clk
}

func TestScheduler_ExcursionBracketsSwitch(t *testing.T) {
	s, tr, clk := newTestScheduler([]int{11}, 6)
	before := testutil.ToFloat64(telemetry.ChannelExcursions)

	done := make(chan error, 1)
	go func() { done <- s.Excursion(context.Background()) }()
	clk.WaitForWatcherAndIncrement(dwell)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("excursion did not return")
	}
	assert.Equal(t, []string{"pre", "set:11", "set:6", "back"}, tr.Events())
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ChannelExcursions))
	assert.Equal(t, StateOnChannel, s.State())
}

func TestScheduler_RoundRobinSkipsHome(t *testing.T) {
	s, _, _ := newTestScheduler([]int{1, 6, 11}, 6)

	var got []int
	for i := 0; i < 4; i++ {
		ch, ok := s.next(6)
		require.True(t, ok)
		got = append(got, ch)
	}
	assert.Equal(t, []int{1, 11, 1, 11}, got)

	s.SetChannels([]int{6})
	_, ok := s.next(6)
	assert.False(t, ok)
	assert.Equal(t, []int{6}, s.Channels())
}

func TestScheduler_NoHomeChannel(t *testing.T) {
	s, tr, _ := newTestScheduler([]int{1, 11}, 0)

	err := s.Excursion(context.Background())
	assert.ErrorIs(t, err, ErrNoHomeChannel)
	assert.Empty(t, tr.Events())
}

func TestScheduler_NothingToScan(t *testing.T) {
	s, tr, _ := newTestScheduler([]int{6}, 6)

	require.NoError(t, s.Excursion(context.Background()))
	assert.Empty(t, tr.Events())
}

func TestScheduler_StationRefuses(t *testing.T) {
	s, tr, _ := newTestScheduler([]int{11}, 6)
	tr.preErr = errors.New("queue full")

	err := s.Excursion(context.Background())
	assert.EqualError(t, err, "queue full")
	assert.Empty(t, tr.Events())
}

func TestScheduler_SwitchFailureStillReturnsHome(t *testing.T) {
	s, tr, _ := newTestScheduler([]int{11}, 6)
	tr.failOn = 11

	// No dwell is spent on a channel the radio never reached.
	require.NoError(t, s.Excursion(context.Background()))
	assert.Equal(t, []string{"pre", "set:11", "set:6", "back"}, tr.Events())
	// Reaching home again clears the failure streak.
	assert.Zero(t, s.errorCount)

	s.switchFailed(11, errors.New("mock failure"))
	s.switchFailed(11, errors.New("mock failure"))
	assert.Equal(t, 2, s.errorCount)
	s.recovered()
	assert.Zero(t, s.errorCount)
}

func TestScheduler_RunDisabled(t *testing.T) {
	tr := &trace{}
	s := NewScheduler(Config{Interface: "wlan0mon", Channels: []int{1}}, func() int { return 6 }, tr, tr, nil)

	s.Run(context.Background())
	assert.Equal(t, StateStopped, s.State())
	assert.Empty(t, tr.Events())
}

func TestScheduler_Run(t *testing.T) {
	s, tr, clk := newTestScheduler([]int{1, 11}, 6)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	// The ticker is the only watcher until an excursion starts its dwell.
	clk.WaitForWatcherAndIncrement(interval)
	clk.WaitForNWatchersAndIncrement(dwell, 2)

	assert.Eventually(t, func() bool {
		return len(tr.Events()) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"pre", "set:1", "set:6", "back"}, tr.Events())

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_Pause(t *testing.T) {
	s, tr, clk := newTestScheduler([]int{11}, 6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.State() == StateOnChannel }, time.Second, 5*time.Millisecond)

	s.Pause(time.Minute)
	require.Eventually(t, func() bool { return s.State() == StatePaused }, time.Second, 5*time.Millisecond)

	// Paused: the ticker is stopped and intervals pass without excursions.
	clk.Increment(5 * interval)
	assert.Empty(t, tr.Events())

	clk.Increment(time.Minute)
	require.Eventually(t, func() bool { return s.State() == StateOnChannel }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSchedulerState_String(t *testing.T) {
	assert.Equal(t, "off-channel", StateOffChannel.String())
	assert.Equal(t, "unknown", SchedulerState(42).String())
	text, err := StatePaused.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "paused", string(text))

	var c stateCell
	assert.Equal(t, StateIdle, c.Store(StatePaused))
	assert.Equal(t, StatePaused, c.Store(StateStopped))
	assert.Equal(t, StateStopped, c.Load())
}
