package relay

import "time"

// Limits bounds the resources a single call session may hold.
type Limits struct {
	StartTimeout   time.Duration // wait for the telephony start event
	MaxDuration    time.Duration // total relaying time per call
	ToolTimeout    time.Duration // per tool invocation
	PublishTimeout time.Duration // per published notice
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		StartTimeout:   10 * time.Second,
		MaxDuration:    30 * time.Minute,
		ToolTimeout:    15 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.StartTimeout <= 0 {
		l.StartTimeout = d.StartTimeout
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = d.MaxDuration
	}
	if l.ToolTimeout <= 0 {
		l.ToolTimeout = d.ToolTimeout
	}
	if l.PublishTimeout <= 0 {
		l.PublishTimeout = d.PublishTimeout
	}
	return l
}
