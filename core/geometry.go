package core

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances
// (kilometres).
const EarthRadiusKm = 6371.0

// EarthRadiusM is EarthRadiusKm in metres.
const EarthRadiusM = EarthRadiusKm * 1000

// WGS84 ellipsoid parameters used for geodetic -> ECEF conversion.
const (
	wgs84A  = 6378.137 // semi-major axis, km
	wgs84E2 = 6.69437999014e-3
)

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// HaversineMeters returns the great-circle distance in metres between two
// latitude/longitude pairs given in degrees.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Destination returns the point reached by travelling distanceM metres from
// (lat, lon) along the initial bearing bearingDeg, all angles in degrees.
func Destination(lat, lon, bearingDeg, distanceM float64) (float64, float64) {
	delta := distanceM / EarthRadiusM
	theta := deg2rad(bearingDeg)
	phi1 := deg2rad(lat)
	lambda1 := deg2rad(lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	lon2 := math.Mod(rad2deg(lambda2)+540, 360) - 180
	return rad2deg(phi2), lon2
}

// GeodeticToECEF converts WGS84 latitude/longitude (degrees) and altitude
// (metres) to an ECEF vector in kilometres.
func GeodeticToECEF(lat, lon, altM float64) Vec3 {
	phi := deg2rad(lat)
	lambda := deg2rad(lon)
	h := altM / 1000
	sinPhi := math.Sin(phi)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)
	return Vec3{
		X: (n + h) * math.Cos(phi) * math.Cos(lambda),
		Y: (n + h) * math.Cos(phi) * math.Sin(lambda),
		Z: (n*(1-wgs84E2) + h) * sinPhi,
	}
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{
		X: observer.X / r,
		Y: observer.Y / r,
		Z: observer.Z / r,
	}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - rad2deg(math.Acos(cosGamma))
}
