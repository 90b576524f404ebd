package model

import "time"

// SvInfo describes one satellite seen by the engine.
type SvInfo struct {
	Constellation Constellation
	Svid          int
	CN0DbHz       float64
	ElevationDeg  float64
	AzimuthDeg    float64
	UsedInFix     bool
}

// SvReport is a satellite-in-view report.
type SvReport struct {
	Timestamp time.Time
	Svs       []SvInfo
}

// Measurement is a single raw GNSS measurement.
type Measurement struct {
	Constellation   Constellation
	Svid            int
	PseudorangeRate float64
	CN0DbHz         float64
}

// MeasurementReport groups measurements of one epoch.
type MeasurementReport struct {
	Timestamp    time.Time
	Measurements []Measurement
}

// NmeaReport carries one finished NMEA sentence.
type NmeaReport struct {
	Timestamp time.Time
	Sentence  string
}

// Capabilities is a bitmask of engine features.
type Capabilities uint32

const (
	CapabilityTimeBasedTracking Capabilities = 1 << iota
	CapabilityDistanceBasedTracking
	CapabilityMeasurements
	CapabilityConstellationEnablement
	CapabilitySvBlacklist
	CapabilityOdcpi
	CapabilityEnergyReporting
	CapabilityRobustLocation
)

// Has reports whether c contains every bit of want.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// OdcpiRequest asks the position-hint provider for a coarse location.
type OdcpiRequest struct {
	Emergency bool
	// Interval is the requested re-injection period while the request lasts.
	Interval time.Duration
}

// OdcpiPriority orders competing ODCPI providers.
type OdcpiPriority int

const (
	OdcpiPriorityLow OdcpiPriority = iota
	OdcpiPriorityHigh
)

// PowerState is the latched device power state.
type PowerState int

const (
	PowerStateUnknown PowerState = iota
	PowerStateActive
	PowerStateInactive
	PowerStateSuspend
	PowerStateResume
	PowerStateShutdown
)

func (p PowerState) String() string {
	switch p {
	case PowerStateActive:
		return "active"
	case PowerStateInactive:
		return "inactive"
	case PowerStateSuspend:
		return "suspend"
	case PowerStateResume:
		return "resume"
	case PowerStateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ParsePowerState maps a name onto a PowerState.
func ParsePowerState(s string) (PowerState, bool) {
	for p := PowerStateUnknown; p <= PowerStateShutdown; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return PowerStateUnknown, false
}

// Interactive reports whether a user can currently be prompted.
func (p PowerState) Interactive() bool {
	return p == PowerStateActive || p == PowerStateResume
}

// NetworkType is the bearer of the current data connection.
type NetworkType int

const (
	NetworkUnknown NetworkType = iota
	NetworkWiFi
	NetworkMobile
)

// NetworkState is the latched network connectivity state.
type NetworkState struct {
	Connected       bool
	Type            NetworkType
	Roaming         bool
	InEmergencyCall bool
}

// AidingData selects which assistance data DeleteAidingData removes.
type AidingData uint32

const (
	AidingEphemeris AidingData = 1 << iota
	AidingAlmanac
	AidingPosition
	AidingTime
	AidingIono
	AidingUtc
	AidingHealth
	AidingCellDB
)

// AidingAll deletes every kind of aiding data.
const AidingAll AidingData = ^AidingData(0)

// AgpsType is the kind of data connection the engine asks for.
type AgpsType int

const (
	AgpsTypeSupl AgpsType = iota + 1
	AgpsTypeWwan
	AgpsTypeSuplEs
)

// AgpsConnRequest asks the client layer to bring up a data connection.
type AgpsConnRequest struct {
	ID   uint32
	Type AgpsType
	APN  string
}

// AgpsConnStatus is the client's answer to an AgpsConnRequest.
type AgpsConnStatus int

const (
	AgpsConnOpen AgpsConnStatus = iota + 1
	AgpsConnClosed
	AgpsConnFailed
)

// EnergyReport is the cumulative GNSS energy consumed since boot.
type EnergyReport struct {
	Consumed  uint64 // in units of 0.1 micro watt-hour
	Timestamp time.Time
}
