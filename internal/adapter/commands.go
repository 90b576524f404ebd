package adapter

import (
	"time"

	"github.com/signalsfoundry/gnss-adapter/model"
)

// Command is one request applied by the executor. The set is closed: only
// the types in this file implement it.
type Command interface {
	commandName() string
	clientID() model.ClientID
}

// CommandName returns the snake_case name used for metrics, spans and logs.
func CommandName(cmd Command) string {
	if cmd == nil {
		return "nil"
	}
	return cmd.commandName()
}

// StartTracking registers a new tracking session.
type StartTracking struct {
	Client  model.ClientID
	Session model.SessionID
	Request model.TrackingRequest
}

// UpdateTracking replaces the request of an existing session.
type UpdateTracking struct {
	Client  model.ClientID
	Session model.SessionID
	Request model.TrackingRequest
}

// StopTracking removes a session.
type StopTracking struct {
	Client  model.ClientID
	Session model.SessionID
}

// SetSvConfig updates the parts of the satellite configuration that are
// set: a non-nil Blacklist (empty clears it), Enabled, SecondaryBand.
type SetSvConfig struct {
	Client        model.ClientID
	Blacklist     model.Blacklist
	Enabled       *model.ConstellationMask
	SecondaryBand *model.ConstellationMask
}

// ResetSvConfig restores the default satellite configuration.
type ResetSvConfig struct {
	Client model.ClientID
}

// SetControlCallbacks registers a client, or replaces the handlers of an
// already registered one while keeping its sessions.
type SetControlCallbacks struct {
	Client Client
}

// RemoveClient stops every session of a client and forgets it.
type RemoveClient struct {
	Client model.ClientID
}

// RespondToNi answers the outstanding NI request with the given id.
type RespondToNi struct {
	Client   model.ClientID
	ID       uint32
	Response model.NiResponse
}

// SetOdcpiCallback makes the client the coarse-position provider.
type SetOdcpiCallback struct {
	Client   model.ClientID
	Priority model.OdcpiPriority
}

// InjectOdcpi supplies a coarse position, usually in answer to an ODCPI
// request.
type InjectOdcpi struct {
	Client   model.ClientID
	Location model.Location
}

// DeleteAidingData clears assistance data in the engine.
type DeleteAidingData struct {
	Client model.ClientID
	Data   model.AidingData
}

// UpdateConfig applies a batch of independent configuration sub-fields.
type UpdateConfig struct {
	Client model.ClientID
	Items  []model.ConfigItem
}

// SetPowerState latches the device power state.
type SetPowerState struct {
	Client model.ClientID
	State  model.PowerState
}

// SetNetworkState latches the network state.
type SetNetworkState struct {
	Client model.ClientID
	State  model.NetworkState
}

// InjectLocation supplies a position outside of any ODCPI request.
type InjectLocation struct {
	Client   model.ClientID
	Location model.Location
}

// InjectTime supplies a reference time.
type InjectTime struct {
	Client      model.ClientID
	Time        time.Time
	Reference   time.Time
	Uncertainty time.Duration
}

// GetCapabilities asks the engine for its capabilities.
type GetCapabilities struct {
	Client model.ClientID
}

// GetEnergyConsumed asks the engine for the energy used since boot.
type GetEnergyConsumed struct {
	Client model.ClientID
}

// RespondAgpsConnection reports the outcome of a requested data connection.
type RespondAgpsConnection struct {
	Client model.ClientID
	ID     uint32
	Status model.AgpsConnStatus
}

func (StartTracking) commandName() string         { return "start_tracking" }
func (UpdateTracking) commandName() string        { return "update_tracking" }
func (StopTracking) commandName() string          { return "stop_tracking" }
func (SetSvConfig) commandName() string           { return "set_sv_config" }
func (ResetSvConfig) commandName() string         { return "reset_sv_config" }
func (SetControlCallbacks) commandName() string   { return "set_control_callbacks" }
func (RemoveClient) commandName() string          { return "remove_client" }
func (RespondToNi) commandName() string           { return "respond_to_ni" }
func (SetOdcpiCallback) commandName() string      { return "set_odcpi_callback" }
func (InjectOdcpi) commandName() string           { return "inject_odcpi" }
func (DeleteAidingData) commandName() string      { return "delete_aiding_data" }
func (UpdateConfig) commandName() string          { return "update_config" }
func (SetPowerState) commandName() string         { return "set_power_state" }
func (SetNetworkState) commandName() string       { return "set_network_state" }
func (InjectLocation) commandName() string        { return "inject_location" }
func (InjectTime) commandName() string            { return "inject_time" }
func (GetCapabilities) commandName() string       { return "get_capabilities" }
func (GetEnergyConsumed) commandName() string     { return "get_energy_consumed" }
func (RespondAgpsConnection) commandName() string { return "respond_agps_connection" }

func (c StartTracking) clientID() model.ClientID         { return c.Client }
func (c UpdateTracking) clientID() model.ClientID        { return c.Client }
func (c StopTracking) clientID() model.ClientID          { return c.Client }
func (c SetSvConfig) clientID() model.ClientID           { return c.Client }
func (c ResetSvConfig) clientID() model.ClientID         { return c.Client }
func (c RemoveClient) clientID() model.ClientID          { return c.Client }
func (c RespondToNi) clientID() model.ClientID           { return c.Client }
func (c SetOdcpiCallback) clientID() model.ClientID      { return c.Client }
func (c InjectOdcpi) clientID() model.ClientID           { return c.Client }
func (c DeleteAidingData) clientID() model.ClientID      { return c.Client }
func (c UpdateConfig) clientID() model.ClientID          { return c.Client }
func (c SetPowerState) clientID() model.ClientID         { return c.Client }
func (c SetNetworkState) clientID() model.ClientID       { return c.Client }
func (c InjectLocation) clientID() model.ClientID        { return c.Client }
func (c InjectTime) clientID() model.ClientID            { return c.Client }
func (c GetCapabilities) clientID() model.ClientID       { return c.Client }
func (c GetEnergyConsumed) clientID() model.ClientID     { return c.Client }
func (c RespondAgpsConnection) clientID() model.ClientID { return c.Client }

func (c SetControlCallbacks) clientID() model.ClientID {
	if c.Client == nil {
		return ""
	}
	return c.Client.ID()
}
