package model

import "fmt"

// ConfigField names one independently acknowledged engine configuration
// sub-field.
type ConfigField int

const (
	FieldUnknown ConfigField = iota
	FieldBlacklist
	FieldConstellationMask
	FieldSecondaryBand
	FieldLeverArm
	FieldRobustLocation
	FieldMinGpsWeek
	FieldMinSvElevation
)

var configFieldNames = map[ConfigField]string{
	FieldBlacklist:         "blacklist",
	FieldConstellationMask: "constellation_mask",
	FieldSecondaryBand:     "secondary_band",
	FieldLeverArm:          "lever_arm",
	FieldRobustLocation:    "robust_location",
	FieldMinGpsWeek:        "min_gps_week",
	FieldMinSvElevation:    "min_sv_elevation",
}

func (f ConfigField) String() string {
	if name, ok := configFieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseConfigField maps a field name onto a ConfigField.
func ParseConfigField(name string) (ConfigField, error) {
	for f, n := range configFieldNames {
		if n == name {
			return f, nil
		}
	}
	return FieldUnknown, fmt.Errorf("unknown config field %q", name)
}

// ConfigItem is one sub-field of an UpdateConfig batch.
type ConfigItem interface {
	Field() ConfigField
}

// BlacklistConfig replaces the SV blacklist.
type BlacklistConfig struct {
	Blacklist Blacklist
}

// ConstellationConfig sets which constellations the engine may use.
type ConstellationConfig struct {
	Enabled ConstellationMask
}

// SecondaryBandConfig sets which constellations may use their secondary band.
type SecondaryBandConfig struct {
	Mask ConstellationMask
}

// LeverArmConfig describes the antenna offset from the vehicle reference
// point, in metres.
type LeverArmConfig struct {
	Forward float64
	Right   float64
	Up      float64
}

// RobustLocationConfig toggles robust location, optionally for emergency
// calls only.
type RobustLocationConfig struct {
	Enabled        bool
	EnabledForE911 bool
}

// MinGpsWeekConfig sets the earliest GPS week the engine will accept.
type MinGpsWeekConfig struct {
	Week uint16
}

// MinSvElevationConfig sets the elevation mask in degrees.
type MinSvElevationConfig struct {
	Degrees uint8
}

func (BlacklistConfig) Field() ConfigField      { return FieldBlacklist }
func (ConstellationConfig) Field() ConfigField  { return FieldConstellationMask }
func (SecondaryBandConfig) Field() ConfigField  { return FieldSecondaryBand }
func (LeverArmConfig) Field() ConfigField       { return FieldLeverArm }
func (RobustLocationConfig) Field() ConfigField { return FieldRobustLocation }
func (MinGpsWeekConfig) Field() ConfigField     { return FieldMinGpsWeek }
func (MinSvElevationConfig) Field() ConfigField { return FieldMinSvElevation }

// LocationError is the per-operation result code reported by the engine and
// echoed to clients for each configuration sub-field.
type LocationError int

const (
	LocationSuccess LocationError = iota
	LocationGeneralFailure
	LocationCallbackMissing
	LocationInvalidParameter
	LocationIDExists
	LocationIDUnknown
	LocationAlreadyStarted
	LocationNotSupported
	LocationTimeout
	LocationEngineUnavailable
)

var locationErrorNames = map[LocationError]string{
	LocationSuccess:           "success",
	LocationGeneralFailure:    "general_failure",
	LocationCallbackMissing:   "callback_missing",
	LocationInvalidParameter:  "invalid_parameter",
	LocationIDExists:          "id_exists",
	LocationIDUnknown:         "id_unknown",
	LocationAlreadyStarted:    "already_started",
	LocationNotSupported:      "not_supported",
	LocationTimeout:           "timeout",
	LocationEngineUnavailable: "engine_unavailable",
}

func (e LocationError) String() string {
	if name, ok := locationErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("location_error(%d)", int(e))
}

// OK reports whether e is LocationSuccess.
func (e LocationError) OK() bool { return e == LocationSuccess }

// FieldResult is the outcome of one sub-field of a configuration batch.
type FieldResult struct {
	Field ConfigField
	Err   LocationError
}
