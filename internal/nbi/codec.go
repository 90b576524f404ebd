package nbi

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/gnss-adapter/internal/adapter"
	"github.com/signalsfoundry/gnss-adapter/model"
)

var techNames = []struct {
	name string
	mask model.TechMask
}{
	{"gnss", model.TechGNSS},
	{"cell", model.TechCell},
	{"wifi", model.TechWiFi},
	{"sensors", model.TechSensors},
	{"reference", model.TechReference},
	{"injected", model.TechInjected},
	{"ppe", model.TechPPE},
}

var aidingNames = map[string]model.AidingData{
	"ephemeris": model.AidingEphemeris,
	"almanac":   model.AidingAlmanac,
	"position":  model.AidingPosition,
	"time":      model.AidingTime,
	"iono":      model.AidingIono,
	"utc":       model.AidingUtc,
	"health":    model.AidingHealth,
	"cell_db":   model.AidingCellDB,
	"all":       model.AidingAll,
}

var capabilityNames = []struct {
	name string
	bit  model.Capabilities
}{
	{"time_based_tracking", model.CapabilityTimeBasedTracking},
	{"distance_based_tracking", model.CapabilityDistanceBasedTracking},
	{"measurements", model.CapabilityMeasurements},
	{"constellation_enablement", model.CapabilityConstellationEnablement},
	{"sv_blacklist", model.CapabilitySvBlacklist},
	{"odcpi", model.CapabilityOdcpi},
	{"energy_reporting", model.CapabilityEnergyReporting},
	{"robust_location", model.CapabilityRobustLocation},
}

// args wraps the decoded "args" object of a command envelope.
type args map[string]any

func (a args) has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidf("%s must be a string", key)
	}
	return strings.TrimSpace(s), nil
}

func (a args) num(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidf("%s must be a number", key)
	}
	return f, nil
}

func (a args) uint32(key string) (uint32, error) {
	f, err := a.num(key)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, invalidf("%s must be a non-negative integer", key)
	}
	return uint32(f), nil
}

func (a args) boolean(key string) (bool, error) {
	v, ok := a[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidf("%s must be a boolean", key)
	}
	return b, nil
}

func (a args) millis(key string) (time.Duration, error) {
	f, err := a.num(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Millisecond)), nil
}

func (a args) strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalidf("%s must be a list", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, invalidf("%s must be a list of strings", key)
		}
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out, nil
}

func (a args) objects(key string) ([]args, error) {
	v, ok := a[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalidf("%s must be a list", key)
	}
	out := make([]args, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalidf("%s must be a list of objects", key)
		}
		out = append(out, args(m))
	}
	return out, nil
}

func invalidf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", adapter.ErrInvalidParameter, fmt.Sprintf(format, a...))
}

// DecodeCommand builds an adapter command from its wire name and arguments.
func DecodeCommand(client model.ClientID, name string, raw map[string]any) (adapter.Command, error) {
	a := args(raw)
	if a == nil {
		a = args{}
	}
	switch name {
	case "start_tracking", "update_tracking":
		session, err := a.uint32("session")
		if err != nil {
			return nil, err
		}
		req, err := decodeTrackingRequest(a)
		if err != nil {
			return nil, err
		}
		if name == "start_tracking" {
			return adapter.StartTracking{Client: client, Session: model.SessionID(session), Request: req}, nil
		}
		return adapter.UpdateTracking{Client: client, Session: model.SessionID(session), Request: req}, nil

	case "stop_tracking":
		session, err := a.uint32("session")
		if err != nil {
			return nil, err
		}
		return adapter.StopTracking{Client: client, Session: model.SessionID(session)}, nil

	case "set_sv_config":
		return decodeSetSvConfig(client, a)

	case "reset_sv_config":
		return adapter.ResetSvConfig{Client: client}, nil

	case "remove_client":
		return adapter.RemoveClient{Client: client}, nil

	case "respond_to_ni":
		id, err := a.uint32("id")
		if err != nil {
			return nil, err
		}
		s, err := a.str("response")
		if err != nil {
			return nil, err
		}
		resp, ok := model.ParseNiResponse(s)
		if !ok {
			return nil, invalidf("unknown ni response %q", s)
		}
		return adapter.RespondToNi{Client: client, ID: id, Response: resp}, nil

	case "set_odcpi_callback":
		s, err := a.str("priority")
		if err != nil {
			return nil, err
		}
		prio := model.OdcpiPriorityLow
		switch s {
		case "", "low":
		case "high":
			prio = model.OdcpiPriorityHigh
		default:
			return nil, invalidf("unknown odcpi priority %q", s)
		}
		return adapter.SetOdcpiCallback{Client: client, Priority: prio}, nil

	case "inject_odcpi", "inject_location":
		loc, err := decodeLocation(a)
		if err != nil {
			return nil, err
		}
		if name == "inject_odcpi" {
			return adapter.InjectOdcpi{Client: client, Location: loc}, nil
		}
		return adapter.InjectLocation{Client: client, Location: loc}, nil

	case "delete_aiding_data":
		names, err := a.strings("data")
		if err != nil {
			return nil, err
		}
		var data model.AidingData
		for _, n := range names {
			bit, ok := aidingNames[n]
			if !ok {
				return nil, invalidf("unknown aiding data %q", n)
			}
			data |= bit
		}
		return adapter.DeleteAidingData{Client: client, Data: data}, nil

	case "update_config":
		items, err := a.objects("items")
		if err != nil {
			return nil, err
		}
		out := make([]model.ConfigItem, 0, len(items))
		for _, item := range items {
			ci, err := decodeConfigItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ci)
		}
		return adapter.UpdateConfig{Client: client, Items: out}, nil

	case "set_power_state":
		s, err := a.str("state")
		if err != nil {
			return nil, err
		}
		state, ok := model.ParsePowerState(s)
		if !ok {
			return nil, invalidf("unknown power state %q", s)
		}
		return adapter.SetPowerState{Client: client, State: state}, nil

	case "set_network_state":
		state, err := decodeNetworkState(a)
		if err != nil {
			return nil, err
		}
		return adapter.SetNetworkState{Client: client, State: state}, nil

	case "inject_time":
		s, err := a.str("time")
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, invalidf("time: %v", err)
		}
		unc, err := a.millis("uncertainty_ms")
		if err != nil {
			return nil, err
		}
		return adapter.InjectTime{Client: client, Time: t, Uncertainty: unc}, nil

	case "get_capabilities":
		return adapter.GetCapabilities{Client: client}, nil

	case "get_energy_consumed":
		return adapter.GetEnergyConsumed{Client: client}, nil

	case "respond_agps_connection":
		id, err := a.uint32("id")
		if err != nil {
			return nil, err
		}
		s, err := a.str("status")
		if err != nil {
			return nil, err
		}
		var st model.AgpsConnStatus
		switch s {
		case "open":
			st = model.AgpsConnOpen
		case "closed":
			st = model.AgpsConnClosed
		case "failed":
			st = model.AgpsConnFailed
		default:
			return nil, invalidf("unknown agps status %q", s)
		}
		return adapter.RespondAgpsConnection{Client: client, ID: id, Status: st}, nil
	}
	return nil, invalidf("unknown command %q", name)
}

func decodeTrackingRequest(a args) (model.TrackingRequest, error) {
	var req model.TrackingRequest
	mode, err := a.str("mode")
	if err != nil {
		return req, err
	}
	switch mode {
	case "", "time":
		req.Mode = model.TrackingTimeBased
	case "distance":
		req.Mode = model.TrackingDistanceBased
	default:
		return req, invalidf("unknown tracking mode %q", mode)
	}
	if req.Interval, err = a.millis("interval_ms"); err != nil {
		return req, err
	}
	if req.MinDistance, err = a.num("min_distance_m"); err != nil {
		return req, err
	}
	names, err := a.strings("capabilities")
	if err != nil {
		return req, err
	}
	if req.Capabilities, err = parseTech(names); err != nil {
		return req, err
	}
	return req, nil
}

func parseTech(names []string) (model.TechMask, error) {
	var mask model.TechMask
	for _, n := range names {
		found := false
		for _, t := range techNames {
			if t.name == n {
				mask |= t.mask
				found = true
			}
		}
		if !found {
			return 0, invalidf("unknown technology %q", n)
		}
	}
	return mask, nil
}

func techList(mask model.TechMask) []any {
	out := []any{}
	for _, t := range techNames {
		if mask&t.mask != 0 {
			out = append(out, t.name)
		}
	}
	return out
}

func parseConstellations(names []string) (model.ConstellationMask, error) {
	var mask model.ConstellationMask
	for _, n := range names {
		c, err := model.ParseConstellation(n)
		if err != nil {
			return 0, invalidf("%v", err)
		}
		mask |= model.MaskOf(c)
	}
	return mask, nil
}

func constellationList(mask model.ConstellationMask) []any {
	out := []any{}
	for _, c := range model.Constellations() {
		if mask.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

func decodeBlacklist(a args, key string) (model.Blacklist, error) {
	entries, err := a.objects(key)
	if err != nil {
		return nil, err
	}
	bl := model.Blacklist{}
	for _, e := range entries {
		name, err := e.str("constellation")
		if err != nil {
			return nil, err
		}
		c, err := model.ParseConstellation(name)
		if err != nil {
			return nil, invalidf("%v", err)
		}
		svid, err := e.uint32("svid")
		if err != nil {
			return nil, err
		}
		if svid < 1 || svid > 64 {
			return nil, invalidf("svid %d out of range", svid)
		}
		bl.Add(c, int(svid))
	}
	return bl, nil
}

func decodeSetSvConfig(client model.ClientID, a args) (adapter.Command, error) {
	cmd := adapter.SetSvConfig{Client: client}
	if a.has("blacklist") {
		bl, err := decodeBlacklist(a, "blacklist")
		if err != nil {
			return nil, err
		}
		cmd.Blacklist = bl
	}
	if a.has("enabled") {
		names, err := a.strings("enabled")
		if err != nil {
			return nil, err
		}
		mask, err := parseConstellations(names)
		if err != nil {
			return nil, err
		}
		cmd.Enabled = &mask
	}
	if a.has("secondary_band") {
		names, err := a.strings("secondary_band")
		if err != nil {
			return nil, err
		}
		mask, err := parseConstellations(names)
		if err != nil {
			return nil, err
		}
		cmd.SecondaryBand = &mask
	}
	return cmd, nil
}

func decodeConfigItem(a args) (model.ConfigItem, error) {
	name, err := a.str("field")
	if err != nil {
		return nil, err
	}
	field, err := model.ParseConfigField(name)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	switch field {
	case model.FieldBlacklist:
		bl, err := decodeBlacklist(a, "blacklist")
		if err != nil {
			return nil, err
		}
		return model.BlacklistConfig{Blacklist: bl}, nil
	case model.FieldConstellationMask, model.FieldSecondaryBand:
		names, err := a.strings("constellations")
		if err != nil {
			return nil, err
		}
		mask, err := parseConstellations(names)
		if err != nil {
			return nil, err
		}
		if field == model.FieldSecondaryBand {
			return model.SecondaryBandConfig{Mask: mask}, nil
		}
		return model.ConstellationConfig{Enabled: mask}, nil
	case model.FieldLeverArm:
		var la model.LeverArmConfig
		if la.Forward, err = a.num("forward_m"); err != nil {
			return nil, err
		}
		if la.Right, err = a.num("right_m"); err != nil {
			return nil, err
		}
		if la.Up, err = a.num("up_m"); err != nil {
			return nil, err
		}
		return la, nil
	case model.FieldRobustLocation:
		var rl model.RobustLocationConfig
		if rl.Enabled, err = a.boolean("enabled"); err != nil {
			return nil, err
		}
		if rl.EnabledForE911, err = a.boolean("enabled_for_e911"); err != nil {
			return nil, err
		}
		return rl, nil
	case model.FieldMinGpsWeek:
		week, err := a.uint32("week")
		if err != nil {
			return nil, err
		}
		if week > math.MaxUint16 {
			return nil, invalidf("week %d out of range", week)
		}
		return model.MinGpsWeekConfig{Week: uint16(week)}, nil
	case model.FieldMinSvElevation:
		deg, err := a.uint32("degrees")
		if err != nil {
			return nil, err
		}
		if deg > math.MaxUint8 {
			return nil, invalidf("degrees %d out of range", deg)
		}
		return model.MinSvElevationConfig{Degrees: uint8(deg)}, nil
	}
	return nil, invalidf("unsupported config field %s", field)
}

func decodeLocation(a args) (model.Location, error) {
	var loc model.Location
	var err error
	if !a.has("latitude") || !a.has("longitude") {
		return loc, invalidf("latitude and longitude are required")
	}
	if loc.Latitude, err = a.num("latitude"); err != nil {
		return loc, err
	}
	if loc.Longitude, err = a.num("longitude"); err != nil {
		return loc, err
	}
	if loc.Altitude, err = a.num("altitude_m"); err != nil {
		return loc, err
	}
	if loc.HorizontalAccuracy, err = a.num("accuracy_m"); err != nil {
		return loc, err
	}
	names, err := a.strings("tech")
	if err != nil {
		return loc, err
	}
	if loc.Tech, err = parseTech(names); err != nil {
		return loc, err
	}
	if loc.Tech == 0 {
		loc.Tech = model.TechInjected
	}
	loc.Timestamp = time.Now().UTC()
	return loc, nil
}

func decodeNetworkState(a args) (model.NetworkState, error) {
	var st model.NetworkState
	var err error
	if st.Connected, err = a.boolean("connected"); err != nil {
		return st, err
	}
	if st.Roaming, err = a.boolean("roaming"); err != nil {
		return st, err
	}
	if st.InEmergencyCall, err = a.boolean("emergency_call"); err != nil {
		return st, err
	}
	kind, err := a.str("type")
	if err != nil {
		return st, err
	}
	switch kind {
	case "", "unknown":
		st.Type = model.NetworkUnknown
	case "wifi":
		st.Type = model.NetworkWiFi
	case "mobile":
		st.Type = model.NetworkMobile
	default:
		return st, invalidf("unknown network type %q", kind)
	}
	return st, nil
}

// mustStruct converts a map built from supported value types.
func mustStruct(m map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	if err != nil {
		panic(fmt.Sprintf("nbi: unsupported value in envelope: %v", err))
	}
	return s
}

func encodeFields(fields []model.FieldResult) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{"field": f.Field.String(), "result": f.Err.String()})
	}
	return out
}

func encodeCapabilities(caps model.Capabilities) []any {
	out := []any{}
	for _, c := range capabilityNames {
		if caps.Has(c.bit) {
			out = append(out, c.name)
		}
	}
	return out
}

func resultMap(requestID string, res adapter.Result) map[string]any {
	m := map[string]any{
		"request_id": requestID,
		"code":       adapter.ErrorCode(res.Err),
	}
	if res.Err != nil {
		m["error"] = res.Err.Error()
	}
	if len(res.Fields) > 0 {
		m["fields"] = encodeFields(res.Fields)
	}
	if res.Unsolicited {
		m["unsolicited"] = true
	}
	if res.Capabilities != 0 {
		m["capabilities"] = encodeCapabilities(res.Capabilities)
	}
	if res.Energy.Consumed != 0 || !res.Energy.Timestamp.IsZero() {
		m["energy"] = map[string]any{
			"consumed": float64(res.Energy.Consumed),
			"time":     res.Energy.Timestamp.UTC().Format(time.RFC3339Nano),
		}
	}
	return m
}

// EncodeResult renders a command result as the Execute response.
func EncodeResult(requestID string, res adapter.Result) *structpb.Struct {
	return mustStruct(resultMap(requestID, res))
}

func locationMap(loc model.Location) map[string]any {
	return map[string]any{
		"latitude":   loc.Latitude,
		"longitude":  loc.Longitude,
		"altitude_m": loc.Altitude,
		"speed_mps":  loc.Speed,
		"bearing":    loc.Bearing,
		"accuracy_m": loc.HorizontalAccuracy,
		"time":       loc.Timestamp.UTC().Format(time.RFC3339Nano),
		"tech":       techList(loc.Tech),
	}
}

func encodePosition(key model.SessionKey, loc model.Location) *structpb.Struct {
	m := locationMap(loc)
	m["type"] = "position"
	m["session"] = float64(key.ID)
	return mustStruct(m)
}

func encodeSv(r model.SvReport) *structpb.Struct {
	svs := make([]any, 0, len(r.Svs))
	for _, sv := range r.Svs {
		svs = append(svs, map[string]any{
			"constellation": sv.Constellation.String(),
			"svid":          float64(sv.Svid),
			"cn0_dbhz":      sv.CN0DbHz,
			"elevation":     sv.ElevationDeg,
			"azimuth":       sv.AzimuthDeg,
			"used":          sv.UsedInFix,
		})
	}
	return mustStruct(map[string]any{
		"type": "sv",
		"time": r.Timestamp.UTC().Format(time.RFC3339Nano),
		"svs":  svs,
	})
}

func encodeMeasurements(r model.MeasurementReport) *structpb.Struct {
	return mustStruct(map[string]any{
		"type":  "measurement",
		"time":  r.Timestamp.UTC().Format(time.RFC3339Nano),
		"count": float64(len(r.Measurements)),
	})
}

func encodeNmea(r model.NmeaReport) *structpb.Struct {
	return mustStruct(map[string]any{
		"type":     "nmea",
		"time":     r.Timestamp.UTC().Format(time.RFC3339Nano),
		"sentence": r.Sentence,
	})
}

func encodeNi(r model.NiRequest) *structpb.Struct {
	return mustStruct(map[string]any{
		"type":       "ni_request",
		"id":         float64(r.ID),
		"ni_type":    r.Type.String(),
		"requestor":  r.Requestor,
		"message":    r.Message,
		"emergency":  r.Emergency,
		"timeout_ms": float64(r.Timeout.Milliseconds()),
	})
}

func encodeOdcpi(r model.OdcpiRequest) *structpb.Struct {
	return mustStruct(map[string]any{
		"type":        "odcpi_request",
		"emergency":   r.Emergency,
		"interval_ms": float64(r.Interval.Milliseconds()),
	})
}

func encodeCapabilitiesEvent(caps model.Capabilities) *structpb.Struct {
	return mustStruct(map[string]any{
		"type":         "capabilities",
		"capabilities": encodeCapabilities(caps),
	})
}

func encodeAgps(r model.AgpsConnRequest) *structpb.Struct {
	return mustStruct(map[string]any{
		"type": "agps_request",
		"id":   float64(r.ID),
		"agps": float64(r.Type),
		"apn":  r.APN,
	})
}

func encodeResponse(requestID string, res adapter.Result) *structpb.Struct {
	m := resultMap(requestID, res)
	m["type"] = "response"
	return mustStruct(m)
}

func svConfigMap(cfg model.SvConfig) map[string]any {
	var bl []any
	for _, c := range model.Constellations() {
		for svid := 1; svid <= 64; svid++ {
			if cfg.Blacklist.Contains(c, svid) {
				bl = append(bl, map[string]any{"constellation": c.String(), "svid": float64(svid)})
			}
		}
	}
	if bl == nil {
		bl = []any{}
	}
	return map[string]any{
		"blacklist":      bl,
		"enabled":        constellationList(cfg.Enabled),
		"secondary_band": constellationList(cfg.SecondaryBandMask),
	}
}

func niStatusMap(st adapter.NiStatus) map[string]any {
	m := map[string]any{"state": st.State.String()}
	if st.State != adapter.NiIdle {
		m["id"] = float64(st.RequestID)
	}
	if st.State == adapter.NiAwaitingResponse {
		m["deadline"] = st.Deadline.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// EncodeStatus renders an adapter snapshot.
func EncodeStatus(st adapter.Status) *structpb.Struct {
	clients := make([]any, 0, len(st.Clients))
	for _, c := range st.Clients {
		clients = append(clients, string(c))
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].(string) < clients[j].(string) })

	sessions := make([]any, 0, len(st.Sessions))
	for _, s := range st.Sessions {
		sessions = append(sessions, map[string]any{
			"client":         string(s.Key.Client),
			"session":        float64(s.Key.ID),
			"mode":           s.Request.Mode.String(),
			"interval_ms":    float64(s.Request.Interval.Milliseconds()),
			"min_distance_m": s.Request.MinDistance,
		})
	}

	return mustStruct(map[string]any{
		"engine_up": st.EngineUp,
		"engine_session": map[string]any{
			"active":       st.EngineSession.Active,
			"interval_ms":  float64(st.EngineSession.Interval.Milliseconds()),
			"capabilities": techList(st.EngineSession.Capabilities),
		},
		"clients":      clients,
		"sessions":     sessions,
		"ni_general":   niStatusMap(st.NiGeneral),
		"ni_emergency": niStatusMap(st.NiEmergency),
		"odcpi": map[string]any{
			"provider":  string(st.OdcpiProvider),
			"active":    st.OdcpiActive,
			"emergency": st.OdcpiEmergency,
		},
		"sv_desired":   svConfigMap(st.SvDesired),
		"sv_acked":     svConfigMap(st.SvAcked),
		"power":        st.Power.String(),
		"capabilities": encodeCapabilities(st.Capabilities),
		"queue_depth":  float64(st.QueueDepth),
	})
}
