package trd

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RigidTolerance bounds the determinant and orthogonality checks of IsRigid.
const RigidTolerance = 0.01

// Affine3D is a rotation followed by a translation. The zero value is the
// identity transform. An Affine3D is not modified after construction, so it
// may be shared between goroutines.
type Affine3D struct {
	rot   *r3.Mat // nil means identity
	trans r3.Vec
}

// IdentityAffine returns the identity transform.
func IdentityAffine() Affine3D { return Affine3D{} }

// NewAffine builds a transform from a row-major 3x3 rotation and a translation.
func NewAffine(rot [9]float64, trans r3.Vec) Affine3D {
	return Affine3D{rot: r3.NewMat(rot[:]), trans: trans}
}

// Translation builds a pure translation.
func Translation(t r3.Vec) Affine3D { return Affine3D{trans: t} }

// AffineFromPose builds a transform from a row-major 4x4 homogeneous matrix.
// The bottom row is ignored.
func AffineFromPose(T [16]float64) Affine3D {
	return NewAffine(
		[9]float64{T[0], T[1], T[2], T[4], T[5], T[6], T[8], T[9], T[10]},
		r3.Vec{X: T[3], Y: T[7], Z: T[11]},
	)
}

// RotationZ builds a rotation by alpha radians about the Z axis.
func RotationZ(alpha float64) Affine3D {
	c, s := math.Cos(alpha), math.Sin(alpha)
	return NewAffine([9]float64{c, -s, 0, s, c, 0, 0, 0, 1}, r3.Vec{})
}

// Apply maps p through the transform: R·p + t.
func (a Affine3D) Apply(p r3.Vec) r3.Vec {
	if a.rot == nil {
		return r3.Add(p, a.trans)
	}
	return r3.Add(a.rot.MulVec(p), a.trans)
}

// IsRigid reports whether the rotation part is a proper rotation
// (orthonormal columns, determinant 1) within RigidTolerance.
func (a Affine3D) IsRigid() bool {
	if a.rot == nil {
		return true
	}
	if math.Abs(a.rot.Det()-1.0) > RigidTolerance {
		return false
	}
	for j := 0; j < 3; j++ {
		if math.Abs(r3.Norm(a.rot.VecCol(j))-1.0) > RigidTolerance {
			return false
		}
	}
	return true
}

// SectorRotation returns the tracking-to-global rotation of a supermodule:
// a rotation about the beam axis to the sector centre.
func SectorRotation(sector int) Affine3D {
	alpha := (float64(sector) + 0.5) * SectorAngle * math.Pi / 180.0
	return RotationZ(alpha)
}
