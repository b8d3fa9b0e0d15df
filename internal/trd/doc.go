// Package trd holds the shared data model of the TRD tracklet transformer.
//
// Responsibilities: tracklet record types, detector indexing, the 3-D affine
// type used for module transforms, and the narrow read-only interfaces
// through which geometry and calibration are consumed.
//
// Dependency rule: trd imports no other package of this module. The parse,
// geometry, calib, transform, monitor and storage sub-packages build on it.
package trd
