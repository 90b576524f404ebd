package adapter

import "github.com/signalsfoundry/gnss-adapter/model"

// Client is one API client of the adapter. A client opts into callbacks by
// also implementing any of the handler interfaces below; a client lacking a
// handler is simply not called for that kind of report.
//
// Every handler runs on the executor goroutine and must not block or call
// back into the adapter synchronously.
type Client interface {
	ID() model.ClientID
}

// PositionHandler receives fixes for each of the client's sessions.
type PositionHandler interface {
	OnPosition(key model.SessionKey, loc model.Location)
}

// SvHandler receives satellite-in-view reports.
type SvHandler interface {
	OnSvReport(report model.SvReport)
}

// MeasurementHandler receives raw measurements.
type MeasurementHandler interface {
	OnMeasurements(report model.MeasurementReport)
}

// NmeaHandler receives NMEA sentences.
type NmeaHandler interface {
	OnNmea(report model.NmeaReport)
}

// NiHandler is asked to authorize network-initiated requests.
type NiHandler interface {
	OnNiRequest(req model.NiRequest)
}

// OdcpiHandler provides coarse positions on demand.
type OdcpiHandler interface {
	OnOdcpiRequest(req model.OdcpiRequest)
}

// CapabilitiesHandler receives unsolicited capability updates.
type CapabilitiesHandler interface {
	OnCapabilities(caps model.Capabilities)
}

// AgpsHandler is asked to bring up data connections for assistance data.
type AgpsHandler interface {
	OnAgpsConnRequest(req model.AgpsConnRequest)
}

// ResponseHandler receives the completion of every command the client
// submitted, keyed by the request id returned from Submit.
type ResponseHandler interface {
	OnResponse(requestID string, res Result)
}
