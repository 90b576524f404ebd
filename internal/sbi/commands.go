package sbi

import (
	"time"

	"github.com/signalsfoundry/gnss-adapter/model"
)

// Command is one request sent to the engine.
type Command interface {
	// Name is a stable snake_case identifier used in logs and tests.
	Name() string
}

// StartSession starts the single engine tracking session.
type StartSession struct {
	Session model.EngineSession
}

// UpdateSession changes the parameters of the running session.
type UpdateSession struct {
	Session model.EngineSession
}

// StopSession tears the running session down.
type StopSession struct{}

// SetConfig sets one configuration sub-field. The engine answers with a
// ConfigAck carrying the same correlation and field.
type SetConfig struct {
	Correlation Correlation
	Item        model.ConfigItem
}

// RespondNi answers a network-initiated request.
type RespondNi struct {
	ID       uint32
	Response model.NiResponse
	Payload  []byte
}

// InjectLocation supplies a coarse position to the engine.
type InjectLocation struct {
	Location model.Location
}

// InjectTime supplies a reference time. Reference is the local monotonic
// instant at which Time was valid.
type InjectTime struct {
	Time        time.Time
	Reference   time.Time
	Uncertainty time.Duration
}

// DeleteAidingData clears assistance data; answered with a CommandAck.
type DeleteAidingData struct {
	Correlation Correlation
	Data        model.AidingData
}

// SetPowerState forwards the latched device power state.
type SetPowerState struct {
	State model.PowerState
}

// SetNetworkState forwards the latched network state.
type SetNetworkState struct {
	State model.NetworkState
}

// RequestEnergy asks for an EnergyReport with the same correlation.
type RequestEnergy struct {
	Correlation Correlation
}

// RequestCapabilities asks for a CapabilitiesReport with the same correlation.
type RequestCapabilities struct {
	Correlation Correlation
}

// ReportAgpsConn tells the engine the outcome of a data connection it asked for.
type ReportAgpsConn struct {
	ID     uint32
	Type   model.AgpsType
	Status model.AgpsConnStatus
	APN    string
}

func (StartSession) Name() string        { return "start_session" }
func (UpdateSession) Name() string       { return "update_session" }
func (StopSession) Name() string         { return "stop_session" }
func (SetConfig) Name() string           { return "set_config" }
func (RespondNi) Name() string           { return "respond_ni" }
func (InjectLocation) Name() string      { return "inject_location" }
func (InjectTime) Name() string          { return "inject_time" }
func (DeleteAidingData) Name() string    { return "delete_aiding_data" }
func (SetPowerState) Name() string       { return "set_power_state" }
func (SetNetworkState) Name() string     { return "set_network_state" }
func (RequestEnergy) Name() string       { return "request_energy" }
func (RequestCapabilities) Name() string { return "request_capabilities" }
func (ReportAgpsConn) Name() string      { return "report_agps_conn" }
