// Package transform converts raw tracklets into calibrated space points and
// angular deviations, in the local chamber frame or the tracking frame.
package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trdcalib/internal/monitoring"
	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/parse"
)

// Pad column offsets of the Y reconstruction.
const (
	// padOffsetMCM is added per tracklet: +10 to reach the first pad read by
	// an MCM, -1 for the pad shared with the neighbouring MCM.
	padOffsetMCM = 10.0 - 1.0
	// padCentre is the pad count from the chamber edge to its centre.
	padCentre = 72.0
	// mcmPerSide is the number of MCM columns on one half-chamber side.
	mcmPerSide = 4
)

// Transformer maps raw tracklets to calibrated tracklets.
//
// Configure it with the Set* methods, then call Init once. After Init
// returns the Transformer holds no mutable state and may be shared by any
// number of goroutines, provided the geometry and calibration providers are
// also left untouched.
type Transformer struct {
	geo          trd.GeometryProvider
	calVdriftExB trd.VdriftExBProvider
	calT0        trd.T0Provider

	encoding  parse.Encoding
	t0Chamber int

	initialized bool
	xCathode    float64 // Cathode plane X (cm)
	xAnode      float64 // Anode plane X (cm)
	xDrift      float64 // Nominal tracklet X inside the drift region (cm)
}

// NewTransformer creates a transformer over the given geometry and
// calibration providers. Fields decode with EncodingDirect and T0 is read
// from trd.T0ReferenceChamber unless changed before Init.
func NewTransformer(geo trd.GeometryProvider, vdriftExB trd.VdriftExBProvider, t0 trd.T0Provider) *Transformer {
	return &Transformer{
		geo:          geo,
		calVdriftExB: vdriftExB,
		calT0:        t0,
		encoding:     parse.EncodingDirect,
		t0Chamber:    trd.T0ReferenceChamber,
	}
}

// SetEncoding selects the sign convention of the packed fields.
func (t *Transformer) SetEncoding(enc parse.Encoding) { t.encoding = enc }

// Encoding returns the configured field encoding.
func (t *Transformer) Encoding() parse.Encoding { return t.encoding }

// SetT0ReferenceChamber selects the chamber whose T0 calibrates every X.
func (t *Transformer) SetT0ReferenceChamber(det int) { t.t0Chamber = det }

// T0ReferenceChamber returns the chamber whose T0 calibrates every X.
func (t *Transformer) T0ReferenceChamber() int { return t.t0Chamber }

// Init materializes the geometry tables and derives the reference planes.
// It must complete before any other call and must not run concurrently
// with transforms. Calling it again with unchanged geometry is harmless.
func (t *Transformer) Init() error {
	t.initialized = false

	if err := t.geo.MaterializePadPlanes(); err != nil {
		return fmt.Errorf("failed to create pad planes: %w", err)
	}
	if err := t.geo.MaterializeModuleTransforms(); err != nil {
		return fmt.Errorf("failed to create module transforms: %w", err)
	}

	cdrHght := t.geo.CdrHght()
	t.xCathode = cdrHght
	t.xAnode = cdrHght + t.geo.CamHght()/2
	t.xDrift = cdrHght - trd.DriftMargin
	t.initialized = true

	monitoring.Debugf("transformer initialized: xCathode=%.3f xAnode=%.3f xDrift=%.3f encoding=%s t0Chamber=%d",
		t.xCathode, t.xAnode, t.xDrift, t.encoding, t.t0Chamber)
	return nil
}

// Initialized reports whether Init has completed.
func (t *Transformer) Initialized() bool { return t.initialized }

// XCathode returns the cathode plane X (cm).
func (t *Transformer) XCathode() float64 { return t.xCathode }

// XAnode returns the anode plane X (cm).
func (t *Transformer) XAnode() float64 { return t.xAnode }

// XDrift returns the nominal drift X assigned to every tracklet (cm).
func (t *Transformer) XDrift() float64 { return t.xDrift }

// CalculateY returns the local Y (cm) of a tracklet from its half-chamber,
// MCM column and signed position.
func (t *Transformer) CalculateY(hcid, column int, position int32, padPlane *trd.PadPlane) float64 {
	padWidth := padPlane.WidthIPad()
	side := hcid % 2

	// Shift so that the middle of the position range sits on the MCM centre.
	const half = 1 << (trd.NBitsTrkltPos - 1)
	shifted := position + half

	pad := float64(shifted-half)*trd.GranularityTrkltPos +
		float64(trd.NColMCM*(mcmPerSide*side+column)) + padOffsetMCM
	return padWidth * (pad - padCentre)
}

// CalculateZ returns the local Z (cm) of a pad row relative to the middle
// row of the pad plane. padRow must be below padPlane.NRows().
func (t *Transformer) CalculateZ(padRow int, padPlane *trd.PadPlane) float64 {
	rowPos := padPlane.RowPos(padRow)
	rowSize := padPlane.RowSize(padRow)
	middleRowPos := padPlane.RowPos(padPlane.NRows() / 2)

	return rowPos - rowSize/2 - middleRowPos
}

// CalculateDy returns the Lorentz-corrected deflection (cm) of a tracklet
// over the drift region.
func (t *Transformer) CalculateDy(det int, slope int32, padPlane *trd.PadPlane) (float64, error) {
	if !t.initialized {
		return 0, trd.ErrNotInitialized
	}
	padWidth := padPlane.WidthIPad()

	vDrift, err := t.calVdriftExB.Vdrift(det)
	if err != nil {
		return 0, err
	}
	exb, err := t.calVdriftExB.ExB(det)
	if err != nil {
		return 0, err
	}

	// dy = slope * nTimeBins * padWidth * granularity, with nTimeBins the
	// number of 100 ns timebins spanned by the drift region.
	nTimeBins := (t.xCathode / vDrift) * 10.0
	rawDy := float64(slope) * nTimeBins * padWidth * trd.GranularityTrkltSlope / trd.AddBitShiftSlope

	// The sign of the Lorentz term follows the calibration convention and is
	// not verified against the drift direction.
	lorentzCorrection := math.Tan(exb) * t.xAnode

	return rawDy - lorentzCorrection, nil
}

// CalibrateX applies the timing offset to a drift coordinate. The offset is
// the chamber average stored under the reference chamber, whatever det is.
func (t *Transformer) CalibrateX(det int, x float64) (float64, error) {
	t0Correction, err := t.calT0.T0(t.t0Chamber)
	if err != nil {
		return 0, fmt.Errorf("calibrate x for chamber %d: %w", det, err)
	}
	return x + t0Correction, nil
}

// TransformL2T maps a local chamber point into the tracking frame.
func (t *Transformer) TransformL2T(det int, point r3.Vec) (r3.Vec, error) {
	if !t.initialized {
		return r3.Vec{}, trd.ErrNotInitialized
	}
	matrix, err := t.geo.ModuleTransform(det)
	if err != nil {
		return r3.Vec{}, err
	}
	return matrix.Apply(point), nil
}

// TrackingToGlobal rotates a tracking-frame point of a chamber into the
// global frame.
func (t *Transformer) TrackingToGlobal(det int, point r3.Vec) (r3.Vec, error) {
	if !trd.ValidDetector(det) {
		return r3.Vec{}, fmt.Errorf("global transform for chamber %d: %w", det, trd.ErrUnknownDetector)
	}
	return trd.SectorRotation(trd.Sector(det)).Apply(point), nil
}

// TransformTracklet calibrates one raw tracklet. With trackingFrame the
// space point is mapped through the chamber's transform, otherwise it is
// returned in the local chamber frame. Dy is frame independent.
func (t *Transformer) TransformTracklet(tracklet trd.RawTracklet, trackingFrame bool) (trd.CalibratedTracklet, error) {
	if !t.initialized {
		return trd.CalibratedTracklet{}, trd.ErrNotInitialized
	}
	if tracklet.HCID < 0 || tracklet.HCID >= trd.MaxHalfChamber {
		return trd.CalibratedTracklet{}, fmt.Errorf("half-chamber %d: %w", tracklet.HCID, trd.ErrUnknownDetector)
	}
	detector := tracklet.Detector()
	decoded := parse.Decode(tracklet, t.encoding)

	padPlane, err := t.geo.PadPlane(detector)
	if err != nil {
		return trd.CalibratedTracklet{}, err
	}
	if tracklet.PadRow < 0 || tracklet.PadRow >= padPlane.NRows() {
		return trd.CalibratedTracklet{}, fmt.Errorf("chamber %d row %d of %d: %w",
			detector, tracklet.PadRow, padPlane.NRows(), trd.ErrPadRowOutOfRange)
	}

	x := t.xDrift
	y := t.CalculateY(tracklet.HCID, tracklet.Column, decoded.Position, padPlane)
	z := t.CalculateZ(tracklet.PadRow, padPlane)

	dy, err := t.CalculateDy(detector, decoded.Slope, padPlane)
	if err != nil {
		return trd.CalibratedTracklet{}, err
	}

	calibratedX, err := t.CalibrateX(detector, x)
	if err != nil {
		return trd.CalibratedTracklet{}, err
	}

	// TODO: correct Y for the X calibration once per-chamber T0 is available.
	if trackingFrame {
		p, err := t.TransformL2T(detector, r3.Vec{X: calibratedX, Y: y, Z: z})
		if err != nil {
			return trd.CalibratedTracklet{}, err
		}
		monitoring.Debugf("x: %f | y: %f | z: %f", p.X, p.Y, p.Z)
		return trd.CalibratedTracklet{X: p.X, Y: p.Y, Z: p.Z, Dy: dy}, nil
	}
	return trd.CalibratedTracklet{X: calibratedX, Y: y, Z: z, Dy: dy}, nil
}

// Timebin estimates the drift timebin of a local X coordinate, with X = 0 on
// the anode plane pointing towards the pad plane. Inside the amplification
// region the estimate is a rough linear guess, not a calibrated value.
func (t *Transformer) Timebin(det int, x float64) (float64, error) {
	vDrift, err := t.calVdriftExB.Vdrift(det)
	if err != nil {
		return 0, err
	}
	halfAmp := t.geo.CamHght() / 2

	if x < -halfAmp {
		return trd.TimebinStartOfDrift - (x+halfAmp)/(vDrift*trd.TimebinDuration), nil
	}
	return trd.TimebinStartOfDrift - 1.0 + math.Abs(x), nil
}
