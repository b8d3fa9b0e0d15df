package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trdcalib/internal/trd"
	"github.com/banshee-data/trdcalib/internal/trd/calib"
	"github.com/banshee-data/trdcalib/internal/trd/parse"
)

// TransformConfig holds the settings of a tracklet transform job.
// Omitted fields fall back to the defaults returned by the Get* methods,
// so partial configs are safe.
type TransformConfig struct {
	// Decoding
	Encoding *string `json:"encoding,omitempty"` // "direct" or "legacy-xor"

	// Output frame
	TrackingFrame *bool `json:"tracking_frame,omitempty"`

	// Calibration
	T0ReferenceDetector *int     `json:"t0_reference_detector,omitempty"`
	CalibrationRun      *int64   `json:"calibration_run,omitempty"`
	DefaultVdrift       *float64 `json:"default_vdrift,omitempty"`
	DefaultExB          *float64 `json:"default_exb,omitempty"`
	DefaultT0           *float64 `json:"default_t0,omitempty"`

	// Execution
	Workers *int  `json:"workers,omitempty"` // 0 means one per CPU
	Debug   *bool `json:"debug,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTransformConfig returns a TransformConfig with all fields set to nil.
func EmptyTransformConfig() *TransformConfig {
	return &TransformConfig{}
}

// DefaultTransformConfig returns a TransformConfig with every field set to
// its default value.
func DefaultTransformConfig() *TransformConfig {
	return &TransformConfig{
		Encoding:            ptrString(parse.EncodingDirect.String()),
		TrackingFrame:       ptrBool(false),
		T0ReferenceDetector: ptrInt(trd.T0ReferenceChamber),
		DefaultVdrift:       ptrFloat64(calib.DefaultVdrift),
		DefaultExB:          ptrFloat64(calib.DefaultExB),
		DefaultT0:           ptrFloat64(calib.DefaultT0),
		Workers:             ptrInt(0),
		Debug:               ptrBool(false),
	}
}

// LoadTransformConfig loads a TransformConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTransformConfig(path string) (*TransformConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTransformConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TransformConfig) Validate() error {
	if c.Encoding != nil {
		if _, err := parse.ParseEncoding(*c.Encoding); err != nil {
			return err
		}
	}

	if c.T0ReferenceDetector != nil && !trd.ValidDetector(*c.T0ReferenceDetector) {
		return fmt.Errorf("t0_reference_detector must be in [0, %d), got %d", trd.MaxChamber, *c.T0ReferenceDetector)
	}

	if c.CalibrationRun != nil && *c.CalibrationRun < 0 {
		return fmt.Errorf("calibration_run must be non-negative, got %d", *c.CalibrationRun)
	}

	if c.DefaultVdrift != nil && *c.DefaultVdrift <= 0 {
		return fmt.Errorf("default_vdrift must be positive, got %f", *c.DefaultVdrift)
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	return nil
}

// GetEncoding returns the tracklet field encoding or the default.
// Call Validate first; an unparsable value yields the direct encoding.
func (c *TransformConfig) GetEncoding() parse.Encoding {
	if c.Encoding == nil {
		return parse.EncodingDirect
	}
	enc, err := parse.ParseEncoding(*c.Encoding)
	if err != nil {
		return parse.EncodingDirect
	}
	return enc
}

// GetTrackingFrame returns the tracking_frame value or the default.
func (c *TransformConfig) GetTrackingFrame() bool {
	if c.TrackingFrame == nil {
		return false // default: local chamber frame
	}
	return *c.TrackingFrame
}

// GetT0ReferenceDetector returns the t0_reference_detector value or the default.
func (c *TransformConfig) GetT0ReferenceDetector() int {
	if c.T0ReferenceDetector == nil {
		return trd.T0ReferenceChamber
	}
	return *c.T0ReferenceDetector
}

// HasCalibrationRun reports whether a stored calibration run was requested.
func (c *TransformConfig) HasCalibrationRun() bool {
	return c.CalibrationRun != nil
}

// GetCalibrationRun returns the calibration_run value, or 0 when unset.
func (c *TransformConfig) GetCalibrationRun() int64 {
	if c.CalibrationRun == nil {
		return 0
	}
	return *c.CalibrationRun
}

// GetDefaultVdrift returns the default_vdrift value or the default.
func (c *TransformConfig) GetDefaultVdrift() float64 {
	if c.DefaultVdrift == nil {
		return calib.DefaultVdrift
	}
	return *c.DefaultVdrift
}

// GetDefaultExB returns the default_exb value or the default.
func (c *TransformConfig) GetDefaultExB() float64 {
	if c.DefaultExB == nil {
		return calib.DefaultExB
	}
	return *c.DefaultExB
}

// GetDefaultT0 returns the default_t0 value or the default.
func (c *TransformConfig) GetDefaultT0() float64 {
	if c.DefaultT0 == nil {
		return calib.DefaultT0
	}
	return *c.DefaultT0
}

// GetWorkers returns the workers value or the default.
func (c *TransformConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // default: one per CPU
	}
	return *c.Workers
}

// GetDebug returns the debug value or the default.
func (c *TransformConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
