package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
)

// CalibrationRun describes one stored set of chamber calibration constants.
type CalibrationRun struct {
	RunNumber   int64  `json:"run_number"`
	Description string `json:"description,omitempty"`
	Chambers    int    `json:"chambers"`
	CreatedAtNs int64  `json:"created_at_ns"`
}

// ChamberCalibration is the calibration of one chamber in one run. Nil
// fields are not stored for that chamber.
type ChamberCalibration struct {
	Detector int
	Vdrift   *float64
	ExB      *float64
	T0       *float64
}

// CalibrationStore persists per-run chamber calibration.
type CalibrationStore struct {
	db *sql.DB
}

// NewCalibrationStore creates a CalibrationStore on an open database.
func NewCalibrationStore(db *DB) *CalibrationStore {
	return &CalibrationStore{db: db.DB}
}

// PutRun writes a calibration run and its chambers in one transaction.
// Chambers already stored for the run are overwritten when listed in
// chambers and kept otherwise. An empty description keeps the stored one.
func (s *CalibrationStore) PutRun(runNumber int64, description string, chambers []ChamberCalibration) error {
	for _, c := range chambers {
		if !trd.ValidDetector(c.Detector) {
			return fmt.Errorf("put calibration run %d: chamber %d: %w", runNumber, c.Detector, trd.ErrUnknownDetector)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin calibration run %d: %w", runNumber, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO trd_calibration_runs (run_number, description, created_at_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(run_number) DO UPDATE SET description = COALESCE(excluded.description, trd_calibration_runs.description)`,
		runNumber, nullString(description), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert calibration run %d: %w", runNumber, err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO trd_chamber_calibration (run_number, detector, vdrift, exb, t0)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chamber insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chambers {
		if _, err := stmt.Exec(runNumber, c.Detector, nullFloat64(c.Vdrift), nullFloat64(c.ExB), nullFloat64(c.T0)); err != nil {
			return fmt.Errorf("insert chamber %d of run %d: %w", c.Detector, runNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit calibration run %d: %w", runNumber, err)
	}
	return nil
}

// PutChamber stores the constants of a single chamber, creating the run if
// it does not exist yet.
func (s *CalibrationStore) PutChamber(runNumber int64, det int, vdrift, exb, t0 float64) error {
	return s.PutRun(runNumber, "", []ChamberCalibration{{
		Detector: det,
		Vdrift:   &vdrift,
		ExB:      &exb,
		T0:       &t0,
	}})
}

// LoadTable reads a calibration run into an in-memory table.
func (s *CalibrationStore) LoadTable(runNumber int64) (*calib.Table, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trd_calibration_runs WHERE run_number = ?`, runNumber).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check calibration run %d: %w", runNumber, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("calibration run not found: %d", runNumber)
	}

	rows, err := s.db.Query(`
		SELECT detector, vdrift, exb, t0
		FROM trd_chamber_calibration
		WHERE run_number = ?
		ORDER BY detector`, runNumber)
	if err != nil {
		return nil, fmt.Errorf("query calibration run %d: %w", runNumber, err)
	}
	defer rows.Close()

	table := calib.NewTable()
	for rows.Next() {
		var det int
		var vdrift, exb, t0 sql.NullFloat64
		if err := rows.Scan(&det, &vdrift, &exb, &t0); err != nil {
			return nil, fmt.Errorf("scan chamber calibration: %w", err)
		}
		if vdrift.Valid && exb.Valid {
			table.SetVdriftExB(det, vdrift.Float64, exb.Float64)
		}
		if t0.Valid {
			table.SetT0(det, t0.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calibration run %d: %w", runNumber, err)
	}
	return table, nil
}

// Runs returns all calibration runs, newest run number first.
func (s *CalibrationStore) Runs() ([]CalibrationRun, error) {
	rows, err := s.db.Query(`
		SELECT r.run_number, r.description, r.created_at_ns, COUNT(c.detector)
		FROM trd_calibration_runs r
		LEFT JOIN trd_chamber_calibration c ON c.run_number = r.run_number
		GROUP BY r.run_number
		ORDER BY r.run_number DESC`)
	if err != nil {
		return nil, fmt.Errorf("list calibration runs: %w", err)
	}
	defer rows.Close()

	var runs []CalibrationRun
	for rows.Next() {
		var run CalibrationRun
		var description sql.NullString
		if err := rows.Scan(&run.RunNumber, &description, &run.CreatedAtNs, &run.Chambers); err != nil {
			return nil, fmt.Errorf("scan calibration run: %w", err)
		}
		if description.Valid {
			run.Description = description.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a calibration run and its chambers.
func (s *CalibrationStore) DeleteRun(runNumber int64) error {
	res, err := s.db.Exec(`DELETE FROM trd_calibration_runs WHERE run_number = ?`, runNumber)
	if err != nil {
		return fmt.Errorf("delete calibration run %d: %w", runNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("calibration run not found: %d", runNumber)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
