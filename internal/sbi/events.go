package sbi

import "github.com/signalsfoundry/gnss-adapter/model"

// Event is one report or acknowledgement produced by the engine.
type Event interface {
	Name() string
}

// PositionReport carries a position fix.
type PositionReport struct {
	Location model.Location
}

// SvReport carries satellites in view.
type SvReport struct {
	Report model.SvReport
}

// MeasurementReport carries raw measurements.
type MeasurementReport struct {
	Report model.MeasurementReport
}

// NmeaReport carries one finished NMEA sentence.
type NmeaReport struct {
	Report model.NmeaReport
}

// NiRequested raises a network-initiated authorization prompt.
type NiRequested struct {
	Request model.NiRequest
}

// OdcpiRequested asks for a coarse position injection.
type OdcpiRequested struct {
	Request model.OdcpiRequest
}

// ConfigAck acknowledges one SetConfig sub-field.
type ConfigAck struct {
	Correlation Correlation
	Field       model.ConfigField
	Err         model.LocationError
}

// CommandAck acknowledges a correlated command that has a single result.
type CommandAck struct {
	Correlation Correlation
	Err         model.LocationError
}

// EnergyReport answers RequestEnergy. A zero correlation marks an
// unsolicited report.
type EnergyReport struct {
	Correlation Correlation
	Report      model.EnergyReport
}

// CapabilitiesReport answers RequestCapabilities or announces a change.
type CapabilitiesReport struct {
	Correlation  Correlation
	Capabilities model.Capabilities
}

// AgpsConnRequested asks the client layer to open or close a data connection.
type AgpsConnRequested struct {
	Request model.AgpsConnRequest
}

// EngineUp announces that the engine (re)started and holds no state.
type EngineUp struct{}

// EngineDown announces that the engine became unreachable.
type EngineDown struct {
	Reason string
}

func (PositionReport) Name() string     { return "position" }
func (SvReport) Name() string           { return "sv" }
func (MeasurementReport) Name() string  { return "measurement" }
func (NmeaReport) Name() string         { return "nmea" }
func (NiRequested) Name() string        { return "ni_requested" }
func (OdcpiRequested) Name() string     { return "odcpi_requested" }
func (ConfigAck) Name() string          { return "config_ack" }
func (CommandAck) Name() string         { return "command_ack" }
func (EnergyReport) Name() string       { return "energy" }
func (CapabilitiesReport) Name() string { return "capabilities" }
func (AgpsConnRequested) Name() string  { return "agps_conn_requested" }
func (EngineUp) Name() string           { return "engine_up" }
func (EngineDown) Name() string         { return "engine_down" }
