package geo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// WGS-84 ellipsoid parameters.
const (
	WGS84A  = 6378137.0             // semi-major axis (meters)
	WGS84F  = 1.0 / 298.257223563   // flattening
	WGS84B  = WGS84A * (1 - WGS84F) // semi-minor axis (meters)
	wgs84E2 = WGS84F * (2 - WGS84F) // first eccentricity squared

	// WGS84MaxRadius is the largest ellipsoid radius
	WGS84MaxRadius = WGS84A

	DegToRad = math.Pi / 180
	RadToDeg = 180 / math.Pi
)

// Cartographic is a geodetic position: degrees and meters above the ellipsoid
type Cartographic struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
}

// FromDegrees converts a geodetic position to an ECEF point in meters
func FromDegrees(lon, lat, height float64) mgl64.Vec3 {
	phi := lat * DegToRad
	lambda := lon * DegToRad

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)

	// Radius of curvature in the prime vertical.
	n := WGS84A / math.Sqrt(1-wgs84E2*sinPhi*sinPhi)

	return mgl64.Vec3{
		(n + height) * cosPhi * math.Cos(lambda),
		(n + height) * cosPhi * math.Sin(lambda),
		(n*(1-wgs84E2) + height) * sinPhi,
	}
}

// FromCartographic converts a Cartographic to ECEF
func FromCartographic(c Cartographic) mgl64.Vec3 {
	return FromDegrees(c.Longitude, c.Latitude, c.Height)
}

// ToCartographic converts an ECEF point to geodetic coordinates with the
// iterative Bowring method. Near the surface it converges well below a
// millimeter within a handful of iterations.
func ToCartographic(p mgl64.Vec3) Cartographic {
	x, y, z := p[0], p[1], p[2]
	lon := math.Atan2(y, x)
	r := math.Hypot(x, y)

	lat := math.Atan2(z, r*(1-wgs84E2))
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(z+wgs84E2*n*sinLat, r)
		if math.Abs(next-lat) < 1e-14 {
			lat = next
			break
		}
		lat = next
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := WGS84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = r/cosLat - n
	} else {
		h = math.Abs(z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Cartographic{
		Longitude: lon * RadToDeg,
		Latitude:  lat * RadToDeg,
		Height:    h,
	}
}

// GeodeticSurfaceNormal returns the unit ellipsoid normal through p
func GeodeticSurfaceNormal(p mgl64.Vec3) mgl64.Vec3 {
	const a2 = WGS84A * WGS84A
	const b2 = WGS84B * WGS84B
	return mgl64.Vec3{p[0] / a2, p[1] / a2, p[2] / b2}.Normalize()
}
