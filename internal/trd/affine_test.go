package trd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestAffineIdentityLeavesPointUnchanged(t *testing.T) {
	points := []r3.Vec{
		{},
		{X: 2.5, Y: -13.2, Z: 47.1},
		{X: -1e3, Y: 1e-6, Z: 3.35},
	}
	for _, a := range []Affine3D{{}, IdentityAffine(), NewAffine([9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, r3.Vec{})} {
		for _, p := range points {
			got := a.Apply(p)
			assert.InDelta(t, p.X, got.X, 1e-12)
			assert.InDelta(t, p.Y, got.Y, 1e-12)
			assert.InDelta(t, p.Z, got.Z, 1e-12)
		}
	}
}

func TestAffineTranslationAndRotation(t *testing.T) {
	tr := Translation(r3.Vec{X: 300, Y: 0, Z: -125.5})
	got := tr.Apply(r3.Vec{X: 2.5, Y: 1, Z: 2})
	assert.Equal(t, r3.Vec{X: 302.5, Y: 1, Z: -123.5}, got)

	rot := RotationZ(math.Pi / 2)
	got = rot.Apply(r3.Vec{X: 1})
	assert.InDelta(t, 0.0, got.X, 1e-12)
	assert.InDelta(t, 1.0, got.Y, 1e-12)
	assert.InDelta(t, 0.0, got.Z, 1e-12)
	assert.True(t, rot.IsRigid())
}

func TestAffineFromPoseMatchesRowMajorLayout(t *testing.T) {
	pose := [16]float64{
		0, -1, 0, 10,
		1, 0, 0, 20,
		0, 0, 1, 30,
		0, 0, 0, 1,
	}
	a := AffineFromPose(pose)
	got := a.Apply(r3.Vec{X: 1, Y: 2, Z: 3})
	assert.Equal(t, r3.Vec{X: 8, Y: 21, Z: 33}, got)
	assert.Equal(t, r3.Vec{X: 10, Y: 20, Z: 30}, a.Apply(r3.Vec{}))
	assert.True(t, a.IsRigid())
}

func TestAffineIsRigidRejectsScaling(t *testing.T) {
	scaled := NewAffine([9]float64{2, 0, 0, 0, 1, 0, 0, 0, 1}, r3.Vec{})
	assert.False(t, scaled.IsRigid())

	reflected := NewAffine([9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1}, r3.Vec{})
	assert.False(t, reflected.IsRigid())

	assert.True(t, IdentityAffine().IsRigid())
}

func TestSectorRotation(t *testing.T) {
	p := r3.Vec{X: 300, Y: 0, Z: 10}
	got := SectorRotation(0).Apply(p)
	assert.InDelta(t, 300*math.Cos(10*math.Pi/180), got.X, 1e-9)
	assert.InDelta(t, 300*math.Sin(10*math.Pi/180), got.Y, 1e-9)
	assert.InDelta(t, 10.0, got.Z, 1e-12)

	// Sectors 9 apart point in opposite directions.
	a := SectorRotation(2).Apply(p)
	b := SectorRotation(11).Apply(p)
	assert.InDelta(t, -a.X, b.X, 1e-9)
	assert.InDelta(t, -a.Y, b.Y, 1e-9)
	assert.True(t, SectorRotation(5).IsRigid())
}
