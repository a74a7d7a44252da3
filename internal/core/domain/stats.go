package domain

import (
	"time"
)

// FrameCategory groups frames for the statistics counters.
type FrameCategory string

const (
	CategoryMgmt  FrameCategory = "mgmt"
	CategoryData  FrameCategory = "data"
	CategoryCtrl  FrameCategory = "ctrl"
	CategoryEapol FrameCategory = "eapol"
)

// FrameCounters counts frames of one category.
type FrameCounters struct {
	In   uint64 `json:"in"`
	Out  uint64 `json:"out"`
	Drop uint64 `json:"drop"`
}

// StationStats is a point-in-time snapshot of the station counters.
type StationStats struct {
	State WlanState           `json:"state"`
	Port  ControlledPortState `json:"port"`

	Mgmt  FrameCounters `json:"mgmt"`
	Data  FrameCounters `json:"data"`
	Ctrl  FrameCounters `json:"ctrl"`
	Eapol FrameCounters `json:"eapol"`

	SmeMessages uint64 `json:"sme_messages"`
	TimerErrors uint64 `json:"timer_errors"`

	// RssiDbm is the moving average over the last RssiSamples frames.
	RssiDbm     int8 `json:"rssi_dbm"`
	RssiSamples int  `json:"rssi_samples"`

	LastUpdated time.Time `json:"updated_at"`
}

// Counters returns a pointer to the counters of c.
func (s *StationStats) Counters(c FrameCategory) *FrameCounters {
	switch c {
	case CategoryMgmt:
		return &s.Mgmt
	case CategoryData:
		return &s.Data
	case CategoryCtrl:
		return &s.Ctrl
	default:
		return &s.Eapol
	}
}

// IsStale returns true if the stats haven't been updated within the given TTL.
func (s *StationStats) IsStale(ttl time.Duration) bool {
	return time.Since(s.LastUpdated) > ttl
}
