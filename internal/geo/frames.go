package geo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// HeadingPitchRoll holds attitude angles in radians relative to the local
// east-north-up frame. Heading 0 points east and grows clockwise.
type HeadingPitchRoll struct {
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
	Roll    float64 `json:"roll"`
}

var (
	unitX = mgl64.Vec3{1, 0, 0}
	unitY = mgl64.Vec3{0, 1, 0}
	unitZ = mgl64.Vec3{0, 0, 1}
)

// EastNorthUp returns the rotation whose columns are the local east, north
// and up axes at p, expressed in ECEF.
func EastNorthUp(p mgl64.Vec3) mgl64.Mat3 {
	up := GeodeticSurfaceNormal(p)

	var east mgl64.Vec3
	if math.Abs(p[0]) < 1e-9 && math.Abs(p[1]) < 1e-9 {
		// Poles: longitude is undefined, pick +Y as east
		east = unitY
		if p[2] < 0 {
			up = unitZ.Mul(-1)
		} else {
			up = unitZ
		}
	} else {
		east = mgl64.Vec3{-p[1], p[0], 0}.Normalize()
	}
	north := up.Cross(east)

	return mgl64.Mat3FromCols(east, north, up)
}

// Quaternion returns hpr as a rotation in the local frame (not yet rotated
// into ECEF).
func (hpr HeadingPitchRoll) Quaternion() mgl64.Quat {
	roll := mgl64.QuatRotate(hpr.Roll, unitX)
	pitch := mgl64.QuatRotate(-hpr.Pitch, unitY)
	heading := mgl64.QuatRotate(-hpr.Heading, unitZ)
	return heading.Mul(pitch.Mul(roll))
}

// HeadingPitchRollQuaternion returns the ECEF orientation of a body at p
// holding attitude hpr in the local east-north-up frame.
func HeadingPitchRollQuaternion(p mgl64.Vec3, hpr HeadingPitchRoll) mgl64.Quat {
	enu := mgl64.Mat4ToQuat(EastNorthUp(p).Mat4())
	return enu.Mul(hpr.Quaternion()).Normalize()
}

// HeadingPitchRollFromQuaternion extracts attitude angles from a local-frame quaternion
func HeadingPitchRollFromQuaternion(q mgl64.Quat) HeadingPitchRoll {
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	test := 2 * (w*y - z*x)
	test = math.Max(-1, math.Min(1, test))

	return HeadingPitchRoll{
		Heading: -math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
		Pitch:   -math.Asin(test),
		Roll:    math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
	}
}

// HeadingPitchRollFromOrientation expresses an ECEF orientation in the local
// east-north-up frame at p and extracts its attitude angles.
func HeadingPitchRollFromOrientation(p mgl64.Vec3, orientation mgl64.Quat) HeadingPitchRoll {
	enu := mgl64.Mat4ToQuat(EastNorthUp(p).Mat4())
	local := enu.Conjugate().Mul(orientation)
	return HeadingPitchRollFromQuaternion(local)
}
