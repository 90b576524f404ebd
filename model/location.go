package model

import "time"

// TechMask is a bitmask of the positioning technologies that contributed to
// a fix, or that a tracking session is willing to accept.
type TechMask uint32

const (
	TechGNSS TechMask = 1 << iota
	TechCell
	TechWiFi
	TechSensors
	TechReference
	TechInjected
	TechPPE
)

// TechAny matches every technology. A zero capability mask on a tracking
// request is normalised to TechAny.
const TechAny TechMask = ^TechMask(0)

// Intersects reports whether any technology bit is shared with other.
func (m TechMask) Intersects(other TechMask) bool {
	return m&other != 0
}

// Location is a single position fix as produced by the engine or injected by
// a client. Distances are metres, speeds metres per second, angles degrees.
type Location struct {
	Latitude           float64
	Longitude          float64
	Altitude           float64
	Speed              float64
	Bearing            float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
	Timestamp          time.Time
	Tech               TechMask
}

// Valid reports whether latitude and longitude are within range.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}
