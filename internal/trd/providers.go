package trd

// GeometryProvider exposes the static detector geometry. The Materialize
// methods build the lookup tables once; lookups are read-only afterwards.
type GeometryProvider interface {
	MaterializePadPlanes() error
	MaterializeModuleTransforms() error

	PadPlane(det int) (*PadPlane, error)
	ModuleTransform(det int) (Affine3D, error)

	// CdrHght is the height of the drift region (cm).
	CdrHght() float64
	// CamHght is the height of the amplification region (cm).
	CamHght() float64
}

// VdriftExBProvider supplies per-chamber drift velocity (cm/us) and
// Lorentz angle (rad).
type VdriftExBProvider interface {
	Vdrift(det int) (float64, error)
	ExB(det int) (float64, error)
}

// T0Provider supplies per-chamber timing offsets.
type T0Provider interface {
	T0(det int) (float64, error)
}
