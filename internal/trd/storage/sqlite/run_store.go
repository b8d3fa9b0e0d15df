package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trdcalib/internal/trd"
)

// TransformRun records the settings of one batch transform.
type TransformRun struct {
	RunID         string `json:"run_id"`
	CalibRun      *int64 `json:"calib_run,omitempty"`
	Encoding      string `json:"encoding"`
	TrackingFrame bool   `json:"tracking_frame"`
	T0Chamber     int    `json:"t0_chamber"`
	Source        string `json:"source,omitempty"`
	TrackletCount int    `json:"tracklet_count"`
	CreatedAtNs   int64  `json:"created_at_ns"`
}

// TrackletRecord is one calibrated tracklet stored under a run, with the
// identifying fields of the raw tracklet it came from.
type TrackletRecord struct {
	Seq      int `json:"seq"`
	Detector int `json:"detector"`
	HCID     int `json:"hcid"`
	PadRow   int `json:"padrow"`
	Column   int `json:"column"`
	trd.CalibratedTracklet
}

// NewTrackletRecord pairs a raw tracklet with its calibrated result.
func NewTrackletRecord(seq int, raw trd.RawTracklet, cal trd.CalibratedTracklet) TrackletRecord {
	return TrackletRecord{
		Seq:                seq,
		Detector:           raw.Detector(),
		HCID:               raw.HCID,
		PadRow:             raw.PadRow,
		Column:             raw.Column,
		CalibratedTracklet: cal,
	}
}

// RunStore persists transform runs and their calibrated tracklets.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore on an open database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

// InsertRun creates a new run. RunID and CreatedAtNs are assigned when empty.
func (s *RunStore) InsertRun(run *TransformRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}

	var calibRun sql.NullInt64
	if run.CalibRun != nil {
		calibRun = sql.NullInt64{Int64: *run.CalibRun, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO trd_transform_runs (
			run_id, calib_run, encoding, tracking_frame, t0_chamber,
			source, tracklet_count, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, calibRun, run.Encoding, boolToInt(run.TrackingFrame), run.T0Chamber,
		nullString(run.Source), run.TrackletCount, run.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert transform run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID string) (*TransformRun, error) {
	run := &TransformRun{}
	var calibRun sql.NullInt64
	var source sql.NullString
	var trackingFrame int

	err := s.db.QueryRow(`
		SELECT run_id, calib_run, encoding, tracking_frame, t0_chamber,
		       source, tracklet_count, created_at_ns
		FROM trd_transform_runs WHERE run_id = ?`, runID,
	).Scan(&run.RunID, &calibRun, &run.Encoding, &trackingFrame, &run.T0Chamber,
		&source, &run.TrackletCount, &run.CreatedAtNs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transform run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get transform run: %w", err)
	}

	if calibRun.Valid {
		run.CalibRun = &calibRun.Int64
	}
	run.Source = source.String
	run.TrackingFrame = trackingFrame != 0
	return run, nil
}

// ListRuns returns all runs, most recent first.
func (s *RunStore) ListRuns() ([]*TransformRun, error) {
	rows, err := s.db.Query(`
		SELECT run_id, calib_run, encoding, tracking_frame, t0_chamber,
		       source, tracklet_count, created_at_ns
		FROM trd_transform_runs
		ORDER BY created_at_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transform runs: %w", err)
	}
	defer rows.Close()

	var runs []*TransformRun
	for rows.Next() {
		run := &TransformRun{}
		var calibRun sql.NullInt64
		var source sql.NullString
		var trackingFrame int
		if err := rows.Scan(&run.RunID, &calibRun, &run.Encoding, &trackingFrame, &run.T0Chamber,
			&source, &run.TrackletCount, &run.CreatedAtNs); err != nil {
			return nil, fmt.Errorf("scan transform run: %w", err)
		}
		if calibRun.Valid {
			v := calibRun.Int64
			run.CalibRun = &v
		}
		run.Source = source.String
		run.TrackingFrame = trackingFrame != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// InsertTracklets stores records under runID in one transaction and updates
// the run's tracklet count.
func (s *RunStore) InsertTracklets(runID string, records []TrackletRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tracklet insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trd_calibrated_tracklets (
			run_id, seq, detector, hcid, padrow, col, x, y, z, dy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare tracklet insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(runID, r.Seq, r.Detector, r.HCID, r.PadRow, r.Column,
			r.X, r.Y, r.Z, r.Dy); err != nil {
			return fmt.Errorf("insert tracklet %d: %w", r.Seq, err)
		}
	}

	res, err := tx.Exec(`
		UPDATE trd_transform_runs
		SET tracklet_count = (SELECT COUNT(*) FROM trd_calibrated_tracklets WHERE run_id = ?)
		WHERE run_id = ?`, runID, runID)
	if err != nil {
		return fmt.Errorf("update tracklet count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transform run not found: %s", runID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tracklet insert: %w", err)
	}
	return nil
}

// ListTracklets returns the records of a run in sequence order.
func (s *RunStore) ListTracklets(runID string) ([]TrackletRecord, error) {
	rows, err := s.db.Query(`
		SELECT seq, detector, hcid, padrow, col, x, y, z, dy
		FROM trd_calibrated_tracklets
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tracklets: %w", err)
	}
	defer rows.Close()

	var records []TrackletRecord
	for rows.Next() {
		var r TrackletRecord
		if err := rows.Scan(&r.Seq, &r.Detector, &r.HCID, &r.PadRow, &r.Column,
			&r.X, &r.Y, &r.Z, &r.Dy); err != nil {
			return nil, fmt.Errorf("scan tracklet: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRun removes a run and its tracklets.
func (s *RunStore) DeleteRun(runID string) error {
	res, err := s.db.Exec(`DELETE FROM trd_transform_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete transform run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transform run not found: %s", runID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
