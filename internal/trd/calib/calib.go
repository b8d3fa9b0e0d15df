// Package calib holds per-chamber calibration constants in memory and serves
// them through the trd calibration provider interfaces.
package calib

import (
	"fmt"

	"github.com/banshee-data/trdcalib/internal/trd"
)

// Reference values used when no calibration run is available.
const (
	DefaultVdrift = 1.546   // cm/us
	DefaultExB    = 0.16133 // rad
	DefaultT0     = 0.0     // timebins
)

// VdriftExB is the drift velocity (cm/us) and Lorentz angle (rad) of a chamber.
type VdriftExB struct {
	Vdrift float64 `json:"vdrift"`
	ExB    float64 `json:"exb"`
}

// Table is an in-memory calibration snapshot. Populate it before handing it
// to a transformer; lookups do not lock.
type Table struct {
	vdriftExB map[int]VdriftExB
	t0        map[int]float64
}

var (
	_ trd.VdriftExBProvider = (*Table)(nil)
	_ trd.T0Provider        = (*Table)(nil)
)

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		vdriftExB: make(map[int]VdriftExB),
		t0:        make(map[int]float64),
	}
}

// NewUniformTable returns a table with the same constants for every chamber.
func NewUniformTable(vdrift, exb, t0 float64) *Table {
	t := NewTable()
	for det := 0; det < trd.MaxChamber; det++ {
		t.SetVdriftExB(det, vdrift, exb)
		t.SetT0(det, t0)
	}
	return t
}

// NewDefaultTable returns a uniform table filled with the reference values.
func NewDefaultTable() *Table {
	return NewUniformTable(DefaultVdrift, DefaultExB, DefaultT0)
}

// SetVdriftExB stores the drift velocity and Lorentz angle of a chamber.
func (t *Table) SetVdriftExB(det int, vdrift, exb float64) {
	t.vdriftExB[det] = VdriftExB{Vdrift: vdrift, ExB: exb}
}

// SetT0 stores the timing offset of a chamber.
func (t *Table) SetT0(det int, t0 float64) {
	t.t0[det] = t0
}

func (t *Table) lookup(det int) (VdriftExB, error) {
	v, ok := t.vdriftExB[det]
	if !ok {
		return VdriftExB{}, fmt.Errorf("vdrift/exb for chamber %d: %w", det, trd.ErrMissingCalibration)
	}
	return v, nil
}

// Vdrift returns the drift velocity of a chamber.
func (t *Table) Vdrift(det int) (float64, error) {
	v, err := t.lookup(det)
	return v.Vdrift, err
}

// ExB returns the Lorentz angle of a chamber.
func (t *Table) ExB(det int) (float64, error) {
	v, err := t.lookup(det)
	return v.ExB, err
}

// T0 returns the timing offset of a chamber.
func (t *Table) T0(det int) (float64, error) {
	v, ok := t.t0[det]
	if !ok {
		return 0, fmt.Errorf("t0 for chamber %d: %w", det, trd.ErrMissingCalibration)
	}
	return v, nil
}

// Len returns the number of chambers with drift calibration and with T0.
func (t *Table) Len() (vdriftExB, t0 int) {
	return len(t.vdriftExB), len(t.t0)
}
