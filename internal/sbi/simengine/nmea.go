package simengine

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/gnss-adapter/model"
)

const metersPerSecondToKnots = 1.943844

// FormatGGA renders a GPGGA fix sentence.
func FormatGGA(loc model.Location, used int, hdop float64) string {
	t := loc.Timestamp.UTC()
	lat, ns := nmeaAngle(loc.Latitude, 2, "N", "S")
	lon, ew := nmeaAngle(loc.Longitude, 3, "E", "W")
	quality := 1
	if used == 0 {
		quality = 0
	}
	return sentence(fmt.Sprintf("GPGGA,%02d%02d%02d.%02d,%s,%s,%s,%s,%d,%02d,%.1f,%.1f,M,0.0,M,,",
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e7,
		lat, ns, lon, ew, quality, used, hdop, loc.Altitude))
}

// FormatRMC renders a GPRMC recommended-minimum sentence.
func FormatRMC(loc model.Location) string {
	t := loc.Timestamp.UTC()
	lat, ns := nmeaAngle(loc.Latitude, 2, "N", "S")
	lon, ew := nmeaAngle(loc.Longitude, 3, "E", "W")
	return sentence(fmt.Sprintf("GPRMC,%02d%02d%02d.%02d,A,%s,%s,%s,%s,%.1f,%.1f,%02d%02d%02d,,,A",
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e7,
		lat, ns, lon, ew,
		loc.Speed*metersPerSecondToKnots, loc.Bearing,
		t.Day(), int(t.Month()), t.Year()%100))
}

// nmeaAngle formats decimal degrees as [d]ddmm.mmmm with a hemisphere letter.
func nmeaAngle(deg float64, width int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	d := math.Floor(deg)
	m := (deg - d) * 60
	if m >= 59.99995 {
		d++
		m = 0
	}
	return fmt.Sprintf("%0*d%07.4f", width, int(d), m), hemi
}

func sentence(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, cs)
}
