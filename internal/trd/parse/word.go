package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/trdcalib/internal/trd"
)

/*
Tracklet64 word layout (one 64-bit word per tracklet, MSB first):

	63      60 59        49 48    45 44 43 42         32 31     24 23            0
	+---------+------------+--------+-----+-------------+---------+--------------+
	| format  |    HCID    | padrow | col |  position   |  slope  |     PID      |
	+---------+------------+--------+-----+-------------+---------+--------------+

Position and slope stay packed here; DecodeField restores their sign.
*/

// Bit offsets of the Tracklet64 fields.
const (
	FormatShift   = 60
	HCIDShift     = 49
	PadRowShift   = 45
	ColumnShift   = 43
	PositionShift = 32
	SlopeShift    = 24
	PIDShift      = 0
)

func field(word uint64, shift, bits uint) uint64 {
	return (word >> shift) & ((1 << bits) - 1)
}

// ParseWord splits a Tracklet64 word into its fields.
func ParseWord(word uint64) trd.RawTracklet {
	return trd.RawTracklet{
		Format:   uint32(field(word, FormatShift, trd.NBitsTrkltFmt)),
		HCID:     int(field(word, HCIDShift, trd.NBitsTrkltHCID)),
		PadRow:   int(field(word, PadRowShift, trd.NBitsTrkltRow)),
		Column:   int(field(word, ColumnShift, trd.NBitsTrkltCol)),
		Position: uint32(field(word, PositionShift, trd.NBitsTrkltPos)),
		Slope:    uint32(field(word, SlopeShift, trd.NBitsTrkltSlope)),
		PID:      uint32(field(word, PIDShift, trd.NBitsTrkltPID)),
	}
}

func put(v uint64, shift, bits uint) uint64 {
	return (v & ((1 << bits) - 1)) << shift
}

// PackWord builds the Tracklet64 word for t. Fields wider than their slot
// are truncated.
func PackWord(t trd.RawTracklet) uint64 {
	return put(uint64(t.Format), FormatShift, trd.NBitsTrkltFmt) |
		put(uint64(t.HCID), HCIDShift, trd.NBitsTrkltHCID) |
		put(uint64(t.PadRow), PadRowShift, trd.NBitsTrkltRow) |
		put(uint64(t.Column), ColumnShift, trd.NBitsTrkltCol) |
		put(uint64(t.Position), PositionShift, trd.NBitsTrkltPos) |
		put(uint64(t.Slope), SlopeShift, trd.NBitsTrkltSlope) |
		put(uint64(t.PID), PIDShift, trd.NBitsTrkltPID)
}

// ParseWordHex parses a Tracklet64 word written as hex, with or without a
// 0x prefix.
func ParseWordHex(s string) (trd.RawTracklet, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	word, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return trd.RawTracklet{}, fmt.Errorf("invalid tracklet word %q: %w", s, err)
	}
	return ParseWord(word), nil
}

// DecodedTracklet holds the signed position and slope of one tracklet.
type DecodedTracklet struct {
	Position int32 // Pad units / GranularityTrkltPos
	Slope    int32 // Pad units per timebin / GranularityTrkltSlope, coarser by AddBitShiftSlope
}

// Decode reconstructs the signed position and slope of t.
func Decode(t trd.RawTracklet, enc Encoding) DecodedTracklet {
	dec := enc.Decoder()
	return DecodedTracklet{
		Position: dec(t.Position, trd.NBitsTrkltPos),
		Slope:    dec(t.Slope, trd.NBitsTrkltSlope),
	}
}
