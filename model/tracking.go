package model

import (
	"fmt"
	"time"
)

// ClientID identifies one API client of the adapter.
type ClientID string

// SessionID is a client-scoped tracking session identifier. Session ids are
// drawn from a single adapter-wide allocator.
type SessionID uint32

// SessionKey uniquely identifies one client's logical tracking request.
type SessionKey struct {
	Client ClientID
	ID     SessionID
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Client, k.ID)
}

// Less orders keys by client then id; used to make dispatch deterministic.
func (k SessionKey) Less(other SessionKey) bool {
	if k.Client != other.Client {
		return k.Client < other.Client
	}
	return k.ID < other.ID
}

// TrackingMode selects between time-based and distance-based reporting.
type TrackingMode int

const (
	TrackingTimeBased TrackingMode = iota
	TrackingDistanceBased
)

func (m TrackingMode) String() string {
	switch m {
	case TrackingTimeBased:
		return "time"
	case TrackingDistanceBased:
		return "distance"
	default:
		return "unknown"
	}
}

// PowerMode is a client hint about how much power a session may spend.
type PowerMode int

const (
	PowerModeDefault PowerMode = iota
	PowerModeHigh
	PowerModeLow
)

// AccuracyLevel is a client accuracy hint.
type AccuracyLevel int

const (
	AccuracyDefault AccuracyLevel = iota
	AccuracyHigh
	AccuracyLow
)

// TrackingRequest describes one client tracking session.
type TrackingRequest struct {
	Mode TrackingMode
	// Interval is the requested time between reports.
	Interval time.Duration
	// MinDistance is the minimum displacement in metres between two delivered
	// fixes. Only meaningful for distance-based sessions.
	MinDistance float64
	Power       PowerMode
	Accuracy    AccuracyLevel
	// Capabilities lists the technologies whose fixes this session accepts.
	Capabilities TechMask
}

// Normalize fills defaults for unset fields.
func (r TrackingRequest) Normalize() TrackingRequest {
	if r.Capabilities == 0 {
		r.Capabilities = TechAny
	}
	return r
}

// Validate checks the request for structural errors.
func (r TrackingRequest) Validate() error {
	if r.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", r.Interval)
	}
	if r.Mode != TrackingTimeBased && r.Mode != TrackingDistanceBased {
		return fmt.Errorf("unknown tracking mode %d", r.Mode)
	}
	if r.Mode == TrackingDistanceBased && r.MinDistance < 0 {
		return fmt.Errorf("min distance must not be negative, got %v", r.MinDistance)
	}
	return nil
}

// EngineSession is the single configuration actually sent to the engine. It
// is always derived from the set of active tracking requests.
type EngineSession struct {
	Active       bool
	Interval     time.Duration
	Capabilities TechMask
}
