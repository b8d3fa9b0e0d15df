// Package parse turns raw tracklet words into structured tracklets and
// reconstructs the signed position and slope values carried in their packed
// fields.
//
// Two sign conventions exist in the field. Early front-end firmware wrote the
// fields offset-binary (sign bit inverted); later firmware writes plain two's
// complement. Which one applies is configuration, never inferred from data.
package parse
