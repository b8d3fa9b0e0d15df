package trd

import "errors"

var (
	// ErrNotInitialized is returned by transform operations called before Init.
	ErrNotInitialized = errors.New("tracklet transformer not initialized")

	// ErrGeometryNotMaterialized is returned by a geometry provider whose
	// lookup tables have not been built yet.
	ErrGeometryNotMaterialized = errors.New("geometry tables not materialized")

	// ErrMissingCalibration is returned when a calibration provider has no
	// value for the requested chamber.
	ErrMissingCalibration = errors.New("missing calibration entry")

	// ErrUnknownDetector is returned for a chamber index outside the detector.
	ErrUnknownDetector = errors.New("unknown detector")

	// ErrPadRowOutOfRange is returned for a pad row the chamber's pad plane
	// does not have.
	ErrPadRowOutOfRange = errors.New("pad row out of range")
)
