package transform

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
	"github.com/banshee-data/trdcalib/internal/trd/geometry"
)

// fakeGeometry serves one pad plane and one transform for every chamber.
type fakeGeometry struct {
	padPlane     *trd.PadPlane
	transform    trd.Affine3D
	cdrHght      float64
	camHght      float64
	padPlaneErr  error
	transformErr error

	materializeCalls int
	ready            bool
}

func newFakeGeometry() *fakeGeometry {
	// Four rows of 8 cm centred on Z = 0.
	pp := trd.NewPadPlane(0, 0, 0.635, []float64{16, 8, 0, -8}, []float64{8, 8, 8, 8})
	return &fakeGeometry{padPlane: pp, cdrHght: 3.0, camHght: 0.7}
}

func (g *fakeGeometry) MaterializePadPlanes() error {
	g.materializeCalls++
	if g.padPlaneErr != nil {
		return g.padPlaneErr
	}
	g.ready = true
	return nil
}

func (g *fakeGeometry) MaterializeModuleTransforms() error { return g.transformErr }

func (g *fakeGeometry) PadPlane(det int) (*trd.PadPlane, error) {
	if !g.ready {
		return nil, trd.ErrGeometryNotMaterialized
	}
	if !trd.ValidDetector(det) {
		return nil, fmt.Errorf("chamber %d: %w", det, trd.ErrUnknownDetector)
	}
	return g.padPlane, nil
}

func (g *fakeGeometry) ModuleTransform(det int) (trd.Affine3D, error) {
	if !trd.ValidDetector(det) {
		return trd.Affine3D{}, fmt.Errorf("chamber %d: %w", det, trd.ErrUnknownDetector)
	}
	return g.transform, nil
}

func (g *fakeGeometry) CdrHght() float64 { return g.cdrHght }
func (g *fakeGeometry) CamHght() float64 { return g.camHght }

// newTestTransformer returns an initialized transformer over the embedded
// geometry with uniform calibration.
func newTestTransformer(t *testing.T, vdrift, exb, t0 float64) (*Transformer, *calib.Table) {
	t.Helper()
	tab := calib.NewUniformTable(vdrift, exb, t0)
	tr := NewTransformer(geometry.New(), tab, tab)
	require.NoError(t, tr.Init())
	return tr, tab
}
