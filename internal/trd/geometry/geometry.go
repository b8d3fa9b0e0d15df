// Package geometry provides the static TRD chamber geometry: pad plane
// layouts per (layer, stack) and the local-to-tracking transform of every
// chamber. Tables are read from embedded CSV files and materialized once.
package geometry

import (
	"errors"
	"fmt"
	"io/fs"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/trdcalib/internal/monitoring"
	"github.com/banshee-data/trdcalib/internal/trd"
)

// Chamber heights (cm).
const (
	DriftRegionHeight         = 3.0 // cdrHght: cathode wires to pad plane
	AmplificationRegionHeight = 0.7 // camHght: anode wire region
)

// Geometry implements trd.GeometryProvider.
//
// Materialize* must complete before lookups; after that the Geometry is
// read-only and safe for concurrent lookups.
type Geometry struct {
	src fs.FS

	layers    [trd.NLayer]LayerParams
	stacks    [trd.NStack]StackParams
	alignment map[int]trd.Affine3D
	loaded    bool

	padPlanes  [trd.NLayer][trd.NStack]*trd.PadPlane
	transforms []trd.Affine3D
}

var _ trd.GeometryProvider = (*Geometry)(nil)

// New returns a Geometry backed by the embedded tables.
func New() *Geometry {
	return &Geometry{src: embeddedTables}
}

// NewFromFS returns a Geometry reading geometry_configs/layers.csv,
// geometry_configs/stacks.csv and, if present, geometry_configs/alignment.csv
// from fsys.
func NewFromFS(fsys fs.FS) *Geometry {
	return &Geometry{src: fsys}
}

func (g *Geometry) load() error {
	if g.loaded {
		return nil
	}
	records, err := readCSV(g.src, layersFile)
	if err != nil {
		return err
	}
	layers, err := parseLayers(records)
	if err != nil {
		return err
	}
	records, err = readCSV(g.src, stacksFile)
	if err != nil {
		return err
	}
	stacks, err := parseStacks(records)
	if err != nil {
		return err
	}
	alignment, err := loadAlignment(g.src)
	if err != nil {
		return err
	}
	g.layers, g.stacks, g.alignment, g.loaded = layers, stacks, alignment, true
	return nil
}

func loadAlignment(fsys fs.FS) (map[int]trd.Affine3D, error) {
	records, err := readCSV(fsys, alignmentFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseAlignment(records)
}

// MaterializePadPlanes builds the pad plane of every (layer, stack).
func (g *Geometry) MaterializePadPlanes() error {
	if err := g.load(); err != nil {
		return fmt.Errorf("failed to load geometry tables: %w", err)
	}
	for layer := 0; layer < trd.NLayer; layer++ {
		for stack := 0; stack < trd.NStack; stack++ {
			g.padPlanes[layer][stack] = buildPadPlane(g.layers[layer], g.stacks[stack])
		}
	}
	monitoring.Debugf("geometry: materialized %d pad planes", trd.NLayer*trd.NStack)
	return nil
}

// buildPadPlane lays rows out from +Z to -Z, centred on the chamber.
func buildPadPlane(lp LayerParams, sp StackParams) *trd.PadPlane {
	rowSize := make([]float64, sp.NRows)
	length := 0.0
	for r := range rowSize {
		rowSize[r] = sp.RowSizeInner
		if r == 0 || r == sp.NRows-1 {
			rowSize[r] = sp.RowSizeOuter
		}
		length += rowSize[r]
	}

	rowPos := make([]float64, sp.NRows)
	edge := length / 2
	for r := range rowPos {
		rowPos[r] = edge
		edge -= rowSize[r]
	}
	return trd.NewPadPlane(lp.Layer, sp.Stack, lp.PadWidth, rowPos, rowSize)
}

// MaterializeModuleTransforms builds the local-to-tracking transform of
// every chamber. The local X origin sits DriftRegionHeight below the
// chamber's radial reference X0, unless the alignment table gives a
// surveyed pose. Transforms that are not rigid are rejected.
func (g *Geometry) MaterializeModuleTransforms() error {
	if err := g.load(); err != nil {
		return fmt.Errorf("failed to load geometry tables: %w", err)
	}
	transforms := make([]trd.Affine3D, trd.MaxChamber)
	for det := range transforms {
		lp := g.layers[trd.Layer(det)]
		sp := g.stacks[trd.Stack(det)]
		transforms[det] = trd.Translation(r3.Vec{X: lp.X0 - DriftRegionHeight, Y: 0, Z: sp.Z0})
		if pose, ok := g.alignment[det]; ok {
			transforms[det] = pose
		}
		if !transforms[det].IsRigid() {
			return fmt.Errorf("module transform of chamber %d is not a rigid rotation", det)
		}
	}
	g.transforms = transforms
	monitoring.Debugf("geometry: materialized %d module transforms (%d aligned)", len(transforms), len(g.alignment))
	return nil
}

// PadPlane returns the pad plane of the chamber's (layer, stack).
func (g *Geometry) PadPlane(det int) (*trd.PadPlane, error) {
	if !trd.ValidDetector(det) {
		return nil, fmt.Errorf("pad plane for chamber %d: %w", det, trd.ErrUnknownDetector)
	}
	pp := g.padPlanes[trd.Layer(det)][trd.Stack(det)]
	if pp == nil {
		return nil, fmt.Errorf("pad plane for chamber %d: %w", det, trd.ErrGeometryNotMaterialized)
	}
	return pp, nil
}

// ModuleTransform returns the local-to-tracking transform of a chamber.
func (g *Geometry) ModuleTransform(det int) (trd.Affine3D, error) {
	if !trd.ValidDetector(det) {
		return trd.Affine3D{}, fmt.Errorf("transform for chamber %d: %w", det, trd.ErrUnknownDetector)
	}
	if g.transforms == nil {
		return trd.Affine3D{}, fmt.Errorf("transform for chamber %d: %w", det, trd.ErrGeometryNotMaterialized)
	}
	return g.transforms[det], nil
}

// CdrHght returns the drift region height (cm).
func (g *Geometry) CdrHght() float64 { return DriftRegionHeight }

// CamHght returns the amplification region height (cm).
func (g *Geometry) CamHght() float64 { return AmplificationRegionHeight }

// Layers returns the loaded layer table.
func (g *Geometry) Layers() [trd.NLayer]LayerParams { return g.layers }

// Stacks returns the loaded stack table.
func (g *Geometry) Stacks() [trd.NStack]StackParams { return g.stacks }
