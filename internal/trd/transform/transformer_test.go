package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
	"github.com/banshee-data/trdcalib/internal/trd/parse"
)

const tol = 1e-9

func encode(position, slope int32, enc parse.Encoding) (uint32, uint32) {
	return parse.EncodeField(position, trd.NBitsTrkltPos, enc),
		parse.EncodeField(slope, trd.NBitsTrkltSlope, enc)
}

func TestInitDerivesReferencePlanes(t *testing.T) {
	geo := newFakeGeometry()
	tab := calib.NewDefaultTable()
	tr := NewTransformer(geo, tab, tab)
	assert.False(t, tr.Initialized())

	require.NoError(t, tr.Init())
	assert.True(t, tr.Initialized())
	assert.InDelta(t, 3.0, tr.XCathode(), tol)
	assert.InDelta(t, 3.35, tr.XAnode(), tol)
	assert.InDelta(t, 2.5, tr.XDrift(), tol)
	assert.Greater(t, tr.XAnode(), tr.XCathode())
	assert.Greater(t, tr.XCathode(), tr.XDrift())

	// Re-running with unchanged geometry gives the same planes.
	require.NoError(t, tr.Init())
	assert.Equal(t, 2, geo.materializeCalls)
	assert.InDelta(t, 3.35, tr.XAnode(), tol)
}

func TestInitPropagatesGeometryFailure(t *testing.T) {
	errBoom := errors.New("pad plane table corrupt")

	geo := newFakeGeometry()
	geo.padPlaneErr = errBoom
	tab := calib.NewDefaultTable()
	tr := NewTransformer(geo, tab, tab)

	err := tr.Init()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.False(t, tr.Initialized())

	geo = newFakeGeometry()
	geo.transformErr = errBoom
	tr = NewTransformer(geo, tab, tab)
	assert.True(t, errors.Is(tr.Init(), errBoom))
	assert.False(t, tr.Initialized())
}

func TestOperationsBeforeInit(t *testing.T) {
	geo := newFakeGeometry()
	tab := calib.NewDefaultTable()
	tr := NewTransformer(geo, tab, tab)

	_, err := tr.TransformTracklet(trd.RawTracklet{}, false)
	assert.True(t, errors.Is(err, trd.ErrNotInitialized))

	_, err = tr.CalculateDy(0, 0, geo.padPlane)
	assert.True(t, errors.Is(err, trd.ErrNotInitialized))

	_, err = tr.TransformL2T(0, r3.Vec{})
	assert.True(t, errors.Is(err, trd.ErrNotInitialized))
}

func TestDefaultsAndSetters(t *testing.T) {
	tab := calib.NewDefaultTable()
	tr := NewTransformer(newFakeGeometry(), tab, tab)
	assert.Equal(t, parse.EncodingDirect, tr.Encoding())
	assert.Equal(t, trd.T0ReferenceChamber, tr.T0ReferenceChamber())

	tr.SetEncoding(parse.EncodingLegacyXOR)
	tr.SetT0ReferenceChamber(12)
	assert.Equal(t, parse.EncodingLegacyXOR, tr.Encoding())
	assert.Equal(t, 12, tr.T0ReferenceChamber())
}

func TestCalculateYAtZeroPosition(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)
	pp := newFakeGeometry().padPlane

	tests := []struct {
		hcid, column int
		wantPads     float64
	}{
		{0, 0, -63}, // 18*0 + 9 - 72
		{0, 2, -27}, // 18*2 + 9 - 72
		{1, 0, 9},   // 18*4 + 9 - 72
		{1, 3, 63},  // 18*7 + 9 - 72
		{871, 1, 27},
	}
	for _, tt := range tests {
		got := tr.CalculateY(tt.hcid, tt.column, 0, pp)
		assert.InDelta(t, 0.635*tt.wantPads, got, tol, "hcid=%d column=%d", tt.hcid, tt.column)
	}
}

func TestCalculateYLinearInPosition(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)
	pp := newFakeGeometry().padPlane
	slope := pp.WidthIPad() * trd.GranularityTrkltPos

	for _, hcid := range []int{0, 1, 100, 101} {
		for column := 0; column < 4; column++ {
			y0 := tr.CalculateY(hcid, column, 0, pp)
			for pos := int32(-1024); pos <= 1023; pos += 31 {
				got := tr.CalculateY(hcid, column, pos, pp)
				assert.InDelta(t, y0+float64(pos)*slope, got, tol)
			}
		}
	}
}

func TestCalculateZ(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)

	pp := newFakeGeometry().padPlane
	assert.InDelta(t, 12.0, tr.CalculateZ(0, pp), tol)
	assert.InDelta(t, -4.0, tr.CalculateZ(2, pp), tol)
	assert.InDelta(t, -12.0, tr.CalculateZ(3, pp), tol)

	// The middle row is always self-relative: -rowSize/2.
	geo := tr.geo
	for det := 0; det < trd.MaxChamber; det++ {
		pp, err := geo.PadPlane(det)
		require.NoError(t, err)
		mid := pp.NRows() / 2
		assert.InDelta(t, -pp.RowSize(mid)/2, tr.CalculateZ(mid, pp), tol)
	}
}

func TestCalculateDy(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)
	pp := newFakeGeometry().padPlane

	dy, err := tr.CalculateDy(0, 0, pp)
	require.NoError(t, err)
	assert.InDelta(t, -math.Tan(0.1)*3.35, dy, tol)

	dy, err = tr.CalculateDy(0, 40, pp)
	require.NoError(t, err)
	want := 40*(3.0/1.546*10)*0.635*(1.0/1000)/8 - math.Tan(0.1)*3.35
	assert.InDelta(t, want, dy, tol)

	dyNeg, err := tr.CalculateDy(0, -40, pp)
	require.NoError(t, err)
	assert.InDelta(t, -2*math.Tan(0.1)*3.35, dy+dyNeg, tol)
}

func TestCalculateDyMissingCalibration(t *testing.T) {
	tab := calib.NewTable()
	tab.SetT0(trd.T0ReferenceChamber, 0)
	tr := NewTransformer(newFakeGeometry(), tab, tab)
	require.NoError(t, tr.Init())

	_, err := tr.CalculateDy(17, 3, newFakeGeometry().padPlane)
	assert.True(t, errors.Is(err, trd.ErrMissingCalibration))
}

func TestCalibrateXUsesReferenceChamber(t *testing.T) {
	tab := calib.NewTable()
	tab.SetT0(trd.T0ReferenceChamber, 0.2)
	tab.SetT0(10, 99)
	tr := NewTransformer(newFakeGeometry(), tab, tab)

	x, err := tr.CalibrateX(10, 2.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.7, x, tol)

	tr.SetT0ReferenceChamber(10)
	x, err = tr.CalibrateX(10, 2.5)
	require.NoError(t, err)
	assert.InDelta(t, 101.5, x, tol)

	tr.SetT0ReferenceChamber(11)
	_, err = tr.CalibrateX(10, 2.5)
	assert.True(t, errors.Is(err, trd.ErrMissingCalibration))
}

func TestTransformL2TIdentity(t *testing.T) {
	geo := newFakeGeometry()
	tab := calib.NewDefaultTable()
	tr := NewTransformer(geo, tab, tab)
	require.NoError(t, tr.Init())

	for _, p := range []r3.Vec{{}, {X: 2.7, Y: -40.005, Z: 22.5}, {X: -1, Y: 1e3, Z: -1e-3}} {
		got, err := tr.TransformL2T(5, p)
		require.NoError(t, err)
		assert.InDelta(t, p.X, got.X, tol)
		assert.InDelta(t, p.Y, got.Y, tol)
		assert.InDelta(t, p.Z, got.Z, tol)
	}

	_, err := tr.TransformL2T(trd.MaxChamber, r3.Vec{})
	assert.True(t, errors.Is(err, trd.ErrUnknownDetector))
}

func TestTransformTrackletLocalFrame(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)
	pos, slope := encode(0, 0, parse.EncodingDirect)

	raw := trd.RawTracklet{HCID: trd.HCID(0, 0), PadRow: 5, Column: 0, Position: pos, Slope: slope}
	got, err := tr.TransformTracklet(raw, false)
	require.NoError(t, err)

	want := trd.CalibratedTracklet{
		X:  2.5,
		Y:  0.635 * -63,
		Z:  22.5, // row 5 edge 27.0, half row 4.5, middle row edge 0
		Dy: -math.Tan(0.1) * 3.35,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Errorf("local frame mismatch (-want +got):\n%s", diff)
	}

	pp, err := tr.geo.PadPlane(0)
	require.NoError(t, err)
	assert.Equal(t, tr.CalculateZ(5, pp), got.Z)
}

func TestTransformTrackletAppliesSingleT0Offset(t *testing.T) {
	tr, tab := newTestTransformer(t, 1.546, 0.1, 0)
	tab.SetT0(trd.T0ReferenceChamber, 0.3)
	tab.SetT0(42, 50)

	pos, slope := encode(100, -7, parse.EncodingDirect)
	raw := trd.RawTracklet{HCID: trd.HCID(42, 1), PadRow: 3, Column: 2, Position: pos, Slope: slope}
	got, err := tr.TransformTracklet(raw, false)
	require.NoError(t, err)
	assert.InDelta(t, tr.XDrift()+0.3, got.X, tol)
}

func TestTransformTrackletEncodingsAgree(t *testing.T) {
	direct, _ := newTestTransformer(t, 1.546, 0.1, 0.1)
	legacy, _ := newTestTransformer(t, 1.546, 0.1, 0.1)
	legacy.SetEncoding(parse.EncodingLegacyXOR)

	for _, v := range []struct{ pos, slope int32 }{{0, 0}, {-1024, -128}, {1023, 127}, {-3, 55}} {
		dp, ds := encode(v.pos, v.slope, parse.EncodingDirect)
		lp, ls := encode(v.pos, v.slope, parse.EncodingLegacyXOR)

		a, err := direct.TransformTracklet(trd.RawTracklet{HCID: 301, PadRow: 7, Column: 1, Position: dp, Slope: ds}, true)
		require.NoError(t, err)
		b, err := legacy.TransformTracklet(trd.RawTracklet{HCID: 301, PadRow: 7, Column: 1, Position: lp, Slope: ls}, true)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestTransformTrackletTrackingFrame(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0.2)
	det := trd.Detector(3, 1, 4)
	pos, slope := encode(-250, 12, parse.EncodingDirect)
	raw := trd.RawTracklet{HCID: trd.HCID(det, 1), PadRow: 11, Column: 3, Position: pos, Slope: slope}

	local, err := tr.TransformTracklet(raw, false)
	require.NoError(t, err)
	tracking, err := tr.TransformTracklet(raw, true)
	require.NoError(t, err)

	want := trd.CalibratedTracklet{
		X:  local.X + 351.05 - 3.0,
		Y:  local.Y,
		Z:  local.Z + 125.5,
		Dy: local.Dy,
	}
	if diff := cmp.Diff(want, tracking, cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Errorf("tracking frame mismatch (-want +got):\n%s", diff)
	}
}

func TestTransformTrackletErrors(t *testing.T) {
	tr, tab := newTestTransformer(t, 1.546, 0.1, 0)

	t.Run("pad row beyond stack 2 rows", func(t *testing.T) {
		det := trd.Detector(0, 2, 0)
		_, err := tr.TransformTracklet(trd.RawTracklet{HCID: trd.HCID(det, 0), PadRow: 13}, false)
		assert.True(t, errors.Is(err, trd.ErrPadRowOutOfRange))
	})

	t.Run("half-chamber outside detector", func(t *testing.T) {
		_, err := tr.TransformTracklet(trd.RawTracklet{HCID: 2000}, false)
		assert.True(t, errors.Is(err, trd.ErrUnknownDetector))
	})

	t.Run("negative half-chamber", func(t *testing.T) {
		for _, hcid := range []int{-1, -2, -trd.MaxHalfChamber} {
			_, err := tr.TransformTracklet(trd.RawTracklet{HCID: hcid}, false)
			assert.True(t, errors.Is(err, trd.ErrUnknownDetector), "hcid %d", hcid)
		}
	})

	t.Run("missing drift calibration", func(t *testing.T) {
		empty := calib.NewTable()
		empty.SetT0(trd.T0ReferenceChamber, 0)
		tr2 := NewTransformer(tr.geo, empty, tab)
		require.NoError(t, tr2.Init())
		_, err := tr2.TransformTracklet(trd.RawTracklet{HCID: 10}, false)
		assert.True(t, errors.Is(err, trd.ErrMissingCalibration))
	})

	t.Run("missing reference t0", func(t *testing.T) {
		tr3 := NewTransformer(tr.geo, tab, calib.NewTable())
		require.NoError(t, tr3.Init())
		_, err := tr3.TransformTracklet(trd.RawTracklet{HCID: 10}, false)
		assert.True(t, errors.Is(err, trd.ErrMissingCalibration))
	})
}

func TestTrackingToGlobal(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.546, 0.1, 0)

	p := r3.Vec{X: 300, Y: 0, Z: 5}
	got, err := tr.TrackingToGlobal(trd.Detector(0, 0, 0), p)
	require.NoError(t, err)
	assert.InDelta(t, 300*math.Cos(10*math.Pi/180), got.X, tol)
	assert.InDelta(t, 300*math.Sin(10*math.Pi/180), got.Y, tol)
	assert.InDelta(t, 5.0, got.Z, tol)

	_, err = tr.TrackingToGlobal(-1, p)
	assert.True(t, errors.Is(err, trd.ErrUnknownDetector))
}

func TestTimebin(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.5, 0.1, 0)

	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"deep drift region", -1.35, 4.0 + 1.0/0.15},
		{"cathode side", -3.35, 4.0 + 3.0/0.15},
		{"anode plane", 0, 3.0},
		{"amplification region", -0.2, 3.2},
		{"beyond anode", 0.5, 3.5},
		{"boundary takes anode branch", -0.35, 3.35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Timebin(0, tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// The two timebin branches are not tuned to meet: at x = -CamHght/2 the
// drift branch tends to 4.0 while the anode branch gives 3.35. The 0.65
// timebin jump is the regression baseline for vdrift = 1.5, CamHght = 0.7.
func TestTimebinBoundaryDiscontinuity(t *testing.T) {
	tr, _ := newTestTransformer(t, 1.5, 0.1, 0)
	boundary := -0.7 / 2
	const eps = 1e-9

	below, err := tr.Timebin(0, boundary-eps)
	require.NoError(t, err)
	at, err := tr.Timebin(0, boundary)
	require.NoError(t, err)

	assert.InDelta(t, 4.0, below, 1e-6)
	assert.InDelta(t, 3.35, at, 1e-12)
	assert.InDelta(t, 0.65, below-at, 1e-6)
}

func TestTimebinMissingCalibration(t *testing.T) {
	tab := calib.NewTable()
	tr := NewTransformer(newFakeGeometry(), tab, tab)
	_, err := tr.Timebin(3, -1)
	assert.True(t, errors.Is(err, trd.ErrMissingCalibration))
}
