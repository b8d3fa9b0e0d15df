package trd

// RawTracklet is one tracklet as delivered by the front-end electronics,
// split into its fields but with position and slope still bit-packed.
type RawTracklet struct {
	Format   uint32 // Tracklet word format version
	HCID     int    // Half-chamber ID (2*detector + side)
	PadRow   int    // Pad row within the chamber
	Column   int    // MCM column group within the half-chamber
	Position uint32 // Packed position, NBitsTrkltPos wide
	Slope    uint32 // Packed slope, NBitsTrkltSlope wide
	PID      uint32 // Packed charge/PID word, passed through untouched
}

// Detector returns the chamber the tracklet was recorded in.
func (t RawTracklet) Detector() int { return t.HCID / 2 }

// Side returns the half-chamber side (0 = A, 1 = B).
func (t RawTracklet) Side() int { return t.HCID % 2 }

// CalibratedTracklet is the calibrated space point and angular deviation of
// one tracklet, in either the local chamber frame or the tracking frame.
type CalibratedTracklet struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	Dy float64 `json:"dy"`
}

// PadPlane describes the pad layout of one (layer, stack) chamber type.
// Row positions are the row edges on the +Z side, row 0 first.
type PadPlane struct {
	layer     int
	stack     int
	widthIPad float64
	rowPos    []float64
	rowSize   []float64
}

// NewPadPlane builds a pad plane from per-row edge positions and sizes.
// The slices are copied.
func NewPadPlane(layer, stack int, widthIPad float64, rowPos, rowSize []float64) *PadPlane {
	return &PadPlane{
		layer:     layer,
		stack:     stack,
		widthIPad: widthIPad,
		rowPos:    append([]float64(nil), rowPos...),
		rowSize:   append([]float64(nil), rowSize...),
	}
}

// Layer returns the radial layer of the pad plane.
func (p *PadPlane) Layer() int { return p.layer }

// Stack returns the stack of the pad plane.
func (p *PadPlane) Stack() int { return p.stack }

// WidthIPad returns the width of the inner pads (cm).
func (p *PadPlane) WidthIPad() float64 { return p.widthIPad }

// NRows returns the number of pad rows.
func (p *PadPlane) NRows() int { return len(p.rowPos) }

// RowPos returns the +Z edge of pad row r (cm).
func (p *PadPlane) RowPos(r int) float64 { return p.rowPos[r] }

// RowSize returns the length of pad row r along Z (cm).
func (p *PadPlane) RowSize(r int) float64 { return p.rowSize[r] }
