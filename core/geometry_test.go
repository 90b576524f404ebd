package core

import (
	"math"
	"testing"
)

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// One degree of latitude along a meridian is ~111.19 km on the mean sphere.
	got := HaversineMeters(0, 0, 1, 0)
	want := EarthRadiusM * math.Pi / 180
	if math.Abs(got-want) > 0.5 {
		t.Fatalf("HaversineMeters = %.2f, want %.2f", got, want)
	}
}

func TestHaversineMeters_Symmetric(t *testing.T) {
	a := HaversineMeters(51.5, -0.12, 48.85, 2.35)
	b := HaversineMeters(48.85, 2.35, 51.5, -0.12)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("distance not symmetric: %v vs %v", a, b)
	}
	if a < 330_000 || a > 350_000 {
		t.Fatalf("London-Paris distance = %.0f m, want ~343 km", a)
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	for _, dist := range []float64{10, 60, 1500} {
		lat, lon := Destination(37.42, -122.08, 45, dist)
		got := HaversineMeters(37.42, -122.08, lat, lon)
		if math.Abs(got-dist) > 0.01 {
			t.Fatalf("Destination(%v m) measured back as %.4f m", dist, got)
		}
	}
}

func TestGeodeticToECEF_Equator(t *testing.T) {
	v := GeodeticToECEF(0, 0, 0)
	if math.Abs(v.X-wgs84A) > 1e-9 || math.Abs(v.Y) > 1e-9 || math.Abs(v.Z) > 1e-9 {
		t.Fatalf("GeodeticToECEF(0,0,0) = %+v, want (%v,0,0)", v, wgs84A)
	}
}

func TestElevationDegrees_Overhead(t *testing.T) {
	observer := GeodeticToECEF(0, 0, 0)
	target := Vec3{X: observer.X + 20000, Y: 0, Z: 0}
	if el := ElevationDegrees(observer, target); math.Abs(el-90) > 1e-6 {
		t.Fatalf("ElevationDegrees overhead = %v, want 90", el)
	}
}

func TestElevationDegrees_BelowHorizon(t *testing.T) {
	observer := GeodeticToECEF(0, 0, 0)
	target := Vec3{X: -20000, Y: 0, Z: 0}
	if el := ElevationDegrees(observer, target); el >= 0 {
		t.Fatalf("ElevationDegrees opposite side = %v, want negative", el)
	}
}
