package trd

// Detector returns the chamber index for a sector, stack and layer.
func Detector(sector, stack, layer int) int {
	return sector*NChamberPerSec + stack*NLayer + layer
}

// Sector returns the supermodule a chamber belongs to.
func Sector(det int) int { return det / NChamberPerSec }

// Stack returns the stack (position along the beam) of a chamber.
func Stack(det int) int { return (det % NChamberPerSec) / NLayer }

// Layer returns the radial layer of a chamber.
func Layer(det int) int { return det % NLayer }

// HCID returns the half-chamber ID for a chamber side (0 = A, 1 = B).
func HCID(det, side int) int { return 2*det + side }

// ValidDetector reports whether det addresses one of the 540 chambers.
func ValidDetector(det int) bool { return det >= 0 && det < MaxChamber }
