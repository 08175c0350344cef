package geo

import "math"

// normalizeDegrees maps any finite angle into [0, 360)
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -1e-15 + 360 rounds to 360
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// BearingToHeading converts a navigation bearing (0 = north, clockwise)
// to the renderer heading convention (0 = east).
func BearingToHeading(bearing float64) float64 {
	return normalizeDegrees(bearing + 270)
}

// HeadingToBearing converts a renderer heading back to a navigation bearing.
func HeadingToBearing(heading float64) float64 {
	return normalizeDegrees(heading + 450)
}

// CalculateBearing returns the initial great-circle bearing in degrees
// [0, 360) from point 1 to point 2. Coincident points yield 0.
func CalculateBearing(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * DegToRad
	phi2 := lat2 * DegToRad
	dLambda := (lon2 - lon1) * DegToRad

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return normalizeDegrees(math.Atan2(y, x) * RadToDeg)
}
