package trd

// Tracklet word and front-end constants.
const (
	NBitsTrkltPos   = 11 // Width of the packed position field
	NBitsTrkltSlope = 8  // Width of the packed slope field
	NBitsTrkltHCID  = 11 // Width of the half-chamber ID field
	NBitsTrkltRow   = 4  // Width of the pad row field
	NBitsTrkltCol   = 2  // Width of the column group (MCM column) field
	NBitsTrkltPID   = 24 // Width of the packed PID field
	NBitsTrkltFmt   = 4  // Width of the format field

	GranularityTrkltPos   = 1.0 / 80   // Position LSB in pad units
	GranularityTrkltSlope = 1.0 / 1000 // Slope LSB in pad units per timebin
	AddBitShiftSlope      = 1 << 3     // Slope is stored 3 bits coarser than position

	NColMCM = 18 // Pads read out by one MCM column group
)

// Detector layout.
const (
	NSector        = 18
	NStack         = 5
	NLayer         = 6
	NChamberPerSec = NStack * NLayer
	MaxChamber     = NSector * NChamberPerSec // 540
	MaxHalfChamber = 2 * MaxChamber

	SectorAngle = 20.0 // Degrees of azimuth covered by one supermodule
)

// Calibration and drift constants.
const (
	// T0ReferenceChamber holds the chamber-averaged T0, stored in a PHOS hole
	// where no physical chamber is installed.
	T0ReferenceChamber = 435

	// DriftMargin is subtracted from the drift-region height to place the
	// nominal drift X below the cathode plane.
	DriftMargin = 0.5 // cm

	// TimebinStartOfDrift is the timebin at which the drift region starts.
	TimebinStartOfDrift = 4.0

	// TimebinDuration converts drift velocity (cm/us) to cm per timebin (100 ns).
	TimebinDuration = 0.1
)
