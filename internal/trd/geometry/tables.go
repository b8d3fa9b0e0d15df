package geometry

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/banshee-data/trdcalib/internal/trd"
)

//go:embed geometry_configs/*.csv
var embeddedTables embed.FS

const (
	layersFile = "geometry_configs/layers.csv"
	stacksFile = "geometry_configs/stacks.csv"
	// alignmentFile is optional; chambers listed there use the surveyed
	// pose instead of the nominal placement.
	alignmentFile = "geometry_configs/alignment.csv"
)

var alignmentHeader = []string{
	"detector",
	"r00", "r01", "r02", "tx",
	"r10", "r11", "r12", "ty",
	"r20", "r21", "r22", "tz",
}

// LayerParams holds the per-layer pad and placement constants.
type LayerParams struct {
	Layer    int
	PadWidth float64 // Inner pad width (cm)
	X0       float64 // Radial position of the local chamber origin (cm)
}

// StackParams holds the per-stack pad row layout.
type StackParams struct {
	Stack        int
	NRows        int
	RowSizeOuter float64 // First and last row length (cm)
	RowSizeInner float64 // Length of all other rows (cm)
	Z0           float64 // Chamber centre along the beam (cm)
}

func readCSV(fsys fs.FS, name string) ([][]string, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return records, nil
}

func checkHeader(name string, header []string, want ...string) error {
	if len(header) != len(want) {
		return fmt.Errorf("invalid header in %s, expected: %s", name, strings.Join(want, ","))
	}
	for i := range want {
		if strings.ToLower(strings.TrimSpace(header[i])) != want[i] {
			return fmt.Errorf("invalid header in %s, expected: %s", name, strings.Join(want, ","))
		}
	}
	return nil
}

func parseLayers(records [][]string) ([trd.NLayer]LayerParams, error) {
	var layers [trd.NLayer]LayerParams
	if len(records) < 2 {
		return layers, fmt.Errorf("insufficient data in layer table")
	}
	if err := checkHeader(layersFile, records[0], "layer", "pad_width", "x0"); err != nil {
		return layers, err
	}

	seen := 0
	for i, record := range records[1:] {
		if len(record) != 3 {
			return layers, fmt.Errorf("invalid record at line %d: expected 3 fields", i+2)
		}
		layer, err := strconv.Atoi(record[0])
		if err != nil {
			return layers, fmt.Errorf("invalid layer at line %d: %w", i+2, err)
		}
		if layer < 0 || layer >= trd.NLayer {
			return layers, fmt.Errorf("layer %d out of range (0-%d) at line %d", layer, trd.NLayer-1, i+2)
		}
		padWidth, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return layers, fmt.Errorf("invalid pad_width at line %d: %w", i+2, err)
		}
		x0, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return layers, fmt.Errorf("invalid x0 at line %d: %w", i+2, err)
		}
		layers[layer] = LayerParams{Layer: layer, PadWidth: padWidth, X0: x0}
		seen |= 1 << layer
	}
	if seen != 1<<trd.NLayer-1 {
		return layers, fmt.Errorf("layer table incomplete: have mask %#x", seen)
	}
	return layers, nil
}

func parseStacks(records [][]string) ([trd.NStack]StackParams, error) {
	var stacks [trd.NStack]StackParams
	if len(records) < 2 {
		return stacks, fmt.Errorf("insufficient data in stack table")
	}
	if err := checkHeader(stacksFile, records[0], "stack", "nrows", "row_size_outer", "row_size_inner", "z0"); err != nil {
		return stacks, err
	}

	seen := 0
	for i, record := range records[1:] {
		if len(record) != 5 {
			return stacks, fmt.Errorf("invalid record at line %d: expected 5 fields", i+2)
		}
		stack, err := strconv.Atoi(record[0])
		if err != nil {
			return stacks, fmt.Errorf("invalid stack at line %d: %w", i+2, err)
		}
		if stack < 0 || stack >= trd.NStack {
			return stacks, fmt.Errorf("stack %d out of range (0-%d) at line %d", stack, trd.NStack-1, i+2)
		}
		nRows, err := strconv.Atoi(record[1])
		if err != nil || nRows < 2 {
			return stacks, fmt.Errorf("invalid nrows %q at line %d", record[1], i+2)
		}
		var sizes [3]float64
		for j := range sizes {
			if sizes[j], err = strconv.ParseFloat(record[2+j], 64); err != nil {
				return stacks, fmt.Errorf("invalid value %q at line %d: %w", record[2+j], i+2, err)
			}
		}
		stacks[stack] = StackParams{
			Stack:        stack,
			NRows:        nRows,
			RowSizeOuter: sizes[0],
			RowSizeInner: sizes[1],
			Z0:           sizes[2],
		}
		seen |= 1 << stack
	}
	if seen != 1<<trd.NStack-1 {
		return stacks, fmt.Errorf("stack table incomplete: have mask %#x", seen)
	}
	return stacks, nil
}

// parseAlignment reads surveyed local-to-tracking poses. Each row holds the
// top three rows of a row-major 4x4 homogeneous matrix.
func parseAlignment(records [][]string) (map[int]trd.Affine3D, error) {
	if len(records) < 1 {
		return nil, fmt.Errorf("missing header in alignment table")
	}
	if err := checkHeader(alignmentFile, records[0], alignmentHeader...); err != nil {
		return nil, err
	}

	poses := make(map[int]trd.Affine3D, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(alignmentHeader) {
			return nil, fmt.Errorf("invalid record at line %d: expected %d fields", i+2, len(alignmentHeader))
		}
		det, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid detector at line %d: %w", i+2, err)
		}
		if !trd.ValidDetector(det) {
			return nil, fmt.Errorf("detector %d out of range (0-%d) at line %d", det, trd.MaxChamber-1, i+2)
		}
		var pose [16]float64
		for j := 0; j < 12; j++ {
			if pose[j], err = strconv.ParseFloat(record[1+j], 64); err != nil {
				return nil, fmt.Errorf("invalid value %q at line %d: %w", record[1+j], i+2, err)
			}
		}
		pose[15] = 1
		poses[det] = trd.AffineFromPose(pose)
	}
	return poses, nil
}
