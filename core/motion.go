package core

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// tleLineLen is the fixed width of a two-line element set line.
const tleLineLen = 69

// LookAngles is the direction and range to a satellite from an observer.
type LookAngles struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
}

// SatelliteTrack propagates one satellite with SGP4.
type SatelliteTrack struct {
	sat satellite.Satellite
}

// NewSatelliteTrack parses a TLE and prepares it for propagation. The lines
// are checked up front because go-satellite does not report parse errors.
func NewSatelliteTrack(line1, line2 string) (*SatelliteTrack, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if len(line1) != tleLineLen || !strings.HasPrefix(line1, "1 ") {
		return nil, fmt.Errorf("tle line 1 malformed: %q", line1)
	}
	if len(line2) != tleLineLen || !strings.HasPrefix(line2, "2 ") {
		return nil, fmt.Errorf("tle line 2 malformed: %q", line2)
	}
	if line1[2:7] != line2[2:7] {
		return nil, fmt.Errorf("tle catalog numbers differ: %q vs %q", line1[2:7], line2[2:7])
	}
	return &SatelliteTrack{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS84)}, nil
}

func propagate(sat satellite.Satellite, t time.Time) (satellite.Vector3, float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	return posECI, jd
}

// PositionECEF returns the satellite position at t in ECEF kilometres.
func (s *SatelliteTrack) PositionECEF(t time.Time) Vec3 {
	posECI, jd := propagate(s.sat, t)
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))
	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// LookAngles returns azimuth, elevation and range of the satellite at t as
// seen from an observer at lat/lon (degrees) and altitude (metres).
func (s *SatelliteTrack) LookAngles(t time.Time, lat, lon, altM float64) LookAngles {
	posECI, jd := propagate(s.sat, t)
	obs := satellite.LatLong{Latitude: deg2rad(lat), Longitude: deg2rad(lon)}
	la := satellite.ECIToLookAngles(posECI, obs, altM/1000, jd)
	return LookAngles{
		AzimuthDeg:   rad2deg(la.Az),
		ElevationDeg: rad2deg(la.El),
		RangeKm:      la.Rg,
	}
}
