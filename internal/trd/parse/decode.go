package parse

import (
	"fmt"
	"strings"
)

// Encoding selects the sign convention of packed tracklet fields.
type Encoding int

const (
	EncodingDirect    Encoding = iota // Two's complement within the field width
	EncodingLegacyXOR                 // Sign bit inverted before two's complement (early firmware)
)

// String returns the configuration name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingDirect:
		return "direct"
	case EncodingLegacyXOR:
		return "legacy-xor"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding maps a configuration name to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "direct":
		return EncodingDirect, nil
	case "legacy-xor", "xor":
		return EncodingLegacyXOR, nil
	default:
		return 0, fmt.Errorf("unknown tracklet encoding %q, expected direct or legacy-xor", name)
	}
}

// Decoder reconstructs a signed value from a field of the given bit width.
type Decoder func(raw uint32, bits uint) int32

var decoders = map[Encoding]Decoder{
	EncodingDirect:    decodeDirect,
	EncodingLegacyXOR: decodeLegacyXOR,
}

// Decoder returns the decoding rule for e. Unknown encodings fall back to
// EncodingDirect.
func (e Encoding) Decoder() Decoder {
	if d, ok := decoders[e]; ok {
		return d
	}
	return decodeDirect
}

// DecodeField reconstructs the signed value of a packed field. The result
// lies in [-(2^(bits-1)), 2^(bits-1)-1]. Bits above the field width are
// ignored; a width mismatch is a configuration error and is not detected.
func DecodeField(raw uint32, bits uint, enc Encoding) int32 {
	return enc.Decoder()(raw, bits)
}

func fieldMask(bits uint) uint32 { return (1 << bits) - 1 }

// twosComplement interprets v (already masked to bits) as a signed value.
func twosComplement(v uint32, bits uint) int32 {
	signBit := uint32(1) << (bits - 1)
	if v&signBit != 0 {
		return -int32((^(v - 1)) & fieldMask(bits))
	}
	return int32(v)
}

func decodeDirect(raw uint32, bits uint) int32 {
	return twosComplement(raw&fieldMask(bits), bits)
}

func decodeLegacyXOR(raw uint32, bits uint) int32 {
	v := (raw & fieldMask(bits)) ^ (1 << (bits - 1))
	return twosComplement(v, bits)
}

// EncodeField is the inverse of DecodeField for values inside the field range.
func EncodeField(v int32, bits uint, enc Encoding) uint32 {
	raw := uint32(v) & fieldMask(bits)
	if enc == EncodingLegacyXOR {
		raw ^= 1 << (bits - 1)
	}
	return raw
}
