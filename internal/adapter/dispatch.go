package adapter

import (
	"github.com/signalsfoundry/gnss-adapter/core"
	"github.com/signalsfoundry/gnss-adapter/model"
)

// dispatchPosition routes a fix to every matching session in key order.
func (a *Adapter) dispatchPosition(loc model.Location) {
	delivered := 0
	for _, key := range a.registry.keys() {
		e := a.registry.entry(key)
		h, ok := a.clients[key.Client].(PositionHandler)
		if !ok {
			continue
		}
		if loc.Tech != 0 && !e.req.Capabilities.Intersects(loc.Tech) {
			continue
		}
		if e.req.Mode == model.TrackingDistanceBased {
			if e.lastDelivered != nil {
				d := core.HaversineMeters(e.lastDelivered.Latitude, e.lastDelivered.Longitude, loc.Latitude, loc.Longitude)
				if d <= e.req.MinDistance {
					continue
				}
			}
			ref := loc
			e.lastDelivered = &ref
		}
		h.OnPosition(key, loc)
		delivered++
	}
	if delivered > 0 {
		a.metrics.ReportDelivered("position")
	}
}

// reportClients returns clients holding at least one session, unless the
// device is suspended.
func (a *Adapter) reportClients() []Client {
	if a.aux.power == model.PowerStateSuspend {
		return nil
	}
	var out []Client
	for _, c := range a.sortedClients() {
		if a.registry.hasSessions(c.ID()) {
			out = append(out, c)
		}
	}
	return out
}

func (a *Adapter) dispatchSv(report model.SvReport) {
	n := 0
	for _, c := range a.reportClients() {
		if h, ok := c.(SvHandler); ok {
			h.OnSvReport(report)
			n++
		}
	}
	if n > 0 {
		a.metrics.ReportDelivered("sv")
	}
}

func (a *Adapter) dispatchMeasurements(report model.MeasurementReport) {
	n := 0
	for _, c := range a.reportClients() {
		if h, ok := c.(MeasurementHandler); ok {
			h.OnMeasurements(report)
			n++
		}
	}
	if n > 0 {
		a.metrics.ReportDelivered("measurement")
	}
}

func (a *Adapter) dispatchNmea(report model.NmeaReport) {
	n := 0
	for _, c := range a.reportClients() {
		if h, ok := c.(NmeaHandler); ok {
			h.OnNmea(report)
			n++
		}
	}
	if n > 0 {
		a.metrics.ReportDelivered("nmea")
	}
}
