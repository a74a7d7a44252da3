package hopping

import "sync/atomic"

// SchedulerState is where the scan scheduler is in its cycle.
type SchedulerState int32

const (
	StateIdle       SchedulerState = iota // not started
	StateOnChannel                        // home, waiting for the next excursion
	StateOffChannel                       // dwelling on scan channels
	StatePaused
	StateStopped
)

var stateNames = [...]string{"idle", "on-channel", "off-channel", "paused", "stopped"}

func (s SchedulerState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText reports the state by name in status JSON.
func (s SchedulerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// stateCell is a SchedulerState readable from any goroutine.
type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) Load() SchedulerState { return SchedulerState(c.v.Load()) }

// Store sets s and returns the previous state.
func (c *stateCell) Store(s SchedulerState) SchedulerState {
	return SchedulerState(c.v.Swap(int32(s)))
}
