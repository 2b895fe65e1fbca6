// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dpt converts between Go numbers and KNX datapoint encodings.
//
// Values travel as float64 so one code path serves switches, counters,
// percentages and floats. 1-bit values map false/true to 0/1 and 3-byte
// colours are handled as their 0xRRGGBB integer.
package dpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for an unknown datapoint identifier
	ErrUnsupportedFormat = errors.New("dpt: unsupported format")

	// ErrOutOfRange is returned when a value cannot be represented
	ErrOutOfRange = errors.New("dpt: value out of range")

	// ErrShortData is returned when raw data is shorter than the format needs
	ErrShortData = errors.New("dpt: data too short")

	// ErrInvalidData is returned for the DPT 9 "no value" sentinel 0x7FFF
	ErrInvalidData = errors.New("dpt: invalid data")
)

// Format is a datapoint encoding
type Format int

// Supported encodings
const (
	FormatBool    Format = iota // DPT 1.x, 1 bit
	FormatU8                    // DPT 5.x, unsigned byte
	FormatScaling               // DPT 5.001, 0-100 % on one byte
	FormatU16                   // DPT 7.x
	FormatV16                   // DPT 8.x
	FormatF16                   // DPT 9.x, KNX 2-byte float
	FormatB24                   // DPT 232.600, RGB
	FormatU32                   // DPT 12.x
	FormatV32                   // DPT 13.x
	FormatF32                   // DPT 14.x, IEEE-754 single
)

const (
	f16MaxExponent = 15
	f16Invalid     = 0x7FFF
	f16Max         = 670760.96
	f16Min         = -671088.64
)

// Parse maps a datapoint identifier such as "9.001" to its format
func Parse(id string) (Format, error) {
	id = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(id), "DPT"))
	id = strings.TrimLeft(id, "-_ ")
	if id == "5.001" {
		return FormatScaling, nil
	}
	major, _, _ := strings.Cut(id, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, id)
	}
	switch n {
	case 1:
		return FormatBool, nil
	case 5:
		return FormatU8, nil
	case 7:
		return FormatU16, nil
	case 8:
		return FormatV16, nil
	case 9:
		return FormatF16, nil
	case 12:
		return FormatU32, nil
	case 13:
		return FormatV32, nil
	case 14:
		return FormatF32, nil
	case 232:
		return FormatB24, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, id)
}

// Size returns the number of raw value bytes. 1-bit values use one byte.
func (f Format) Size() int {
	switch f {
	case FormatBool, FormatU8, FormatScaling:
		return 1
	case FormatU16, FormatV16, FormatF16:
		return 2
	case FormatB24:
		return 3
	default:
		return 4
	}
}

// ObjectLength returns the communication object length for the format
func (f Format) ObjectLength() int {
	if f == FormatBool {
		return 1
	}
	return f.Size() + 1
}

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatBool:
		return "B1"
	case FormatU8:
		return "U8"
	case FormatScaling:
		return "U8%"
	case FormatU16:
		return "U16"
	case FormatV16:
		return "V16"
	case FormatF16:
		return "F16"
	case FormatB24:
		return "B24"
	case FormatU32:
		return "U32"
	case FormatV32:
		return "V32"
	case FormatF32:
		return "F32"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Encode converts v into raw datapoint bytes
func Encode(f Format, v float64) ([]byte, error) {
	switch f {
	case FormatBool:
		if v != 0 {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	case FormatU8:
		n, err := integral(v, 0, math.MaxUint8)
		return []byte{byte(n)}, err
	case FormatScaling:
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("%w: %.2f %% (valid: 0-100)", ErrOutOfRange, v)
		}
		return []byte{byte(math.Round(v * 255 / 100))}, nil
	case FormatU16:
		n, err := integral(v, 0, math.MaxUint16)
		return binary.BigEndian.AppendUint16(nil, uint16(n)), err
	case FormatV16:
		n, err := integral(v, math.MinInt16, math.MaxInt16)
		return binary.BigEndian.AppendUint16(nil, uint16(int16(n))), err
	case FormatF16:
		return encodeF16(v)
	case FormatB24:
		n, err := integral(v, 0, 0xFFFFFF)
		return []byte{byte(n >> 16), byte(n >> 8), byte(n)}, err
	case FormatU32:
		n, err := integral(v, 0, math.MaxUint32)
		return binary.BigEndian.AppendUint32(nil, uint32(n)), err
	case FormatV32:
		n, err := integral(v, math.MinInt32, math.MaxInt32)
		return binary.BigEndian.AppendUint32(nil, uint32(int32(n))), err
	case FormatF32:
		if math.IsNaN(v) || math.Abs(v) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %g does not fit a 4-byte float", ErrOutOfRange, v)
		}
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// Decode converts raw datapoint bytes into a number
func Decode(f Format, raw []byte) (float64, error) {
	if f < FormatBool || f > FormatF32 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if len(raw) < f.Size() {
		return 0, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortData, f, f.Size(), len(raw))
	}
	switch f {
	case FormatBool:
		return float64(raw[0] & 0x01), nil
	case FormatU8:
		return float64(raw[0]), nil
	case FormatScaling:
		return math.Round(float64(raw[0])*10000/255) / 100, nil
	case FormatU16:
		return float64(binary.BigEndian.Uint16(raw)), nil
	case FormatV16:
		return float64(int16(binary.BigEndian.Uint16(raw))), nil
	case FormatF16:
		return decodeF16(raw)
	case FormatB24:
		return float64(uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])), nil
	case FormatU32:
		return float64(binary.BigEndian.Uint32(raw)), nil
	case FormatV32:
		return float64(int32(binary.BigEndian.Uint32(raw))), nil
	default:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	}
}

func integral(v, lo, hi float64) (int64, error) {
	r := math.Round(v)
	if math.IsNaN(v) || r < lo || r > hi {
		return 0, fmt.Errorf("%w: %g (valid: %g to %g)", ErrOutOfRange, v, lo, hi)
	}
	return int64(r), nil
}

// encodeF16 packs v as sign, 4-bit exponent and 11-bit two's complement mantissa in 0.01 units
func encodeF16(v float64) ([]byte, error) {
	if math.IsNaN(v) || v < f16Min || v > f16Max {
		return nil, fmt.Errorf("%w: %.2f (valid: %.2f to %.2f)", ErrOutOfRange, v, f16Min, f16Max)
	}

	m := int64(100 * v)
	var exp, round int64
	for m < -2048 || m > 2047 {
		exp++
		round = m & 1
		m >>= 1
	}
	if round == 1 {
		m++
		if m > 2047 {
			m >>= 1
			exp++
		}
	}
	if exp > f16MaxExponent {
		return nil, fmt.Errorf("%w: exponent overflow for %.2f", ErrOutOfRange, v)
	}

	hi := byte(m>>8)&0x07 | byte(exp)<<3
	if m < 0 {
		hi |= 0x80
	}
	return []byte{hi, byte(m)}, nil
}

func decodeF16(raw []byte) (float64, error) {
	word := uint16(raw[0])<<8 | uint16(raw[1])
	if word == f16Invalid {
		return 0, fmt.Errorf("%w: 0x7FFF", ErrInvalidData)
	}
	mantissa := int64(word & 0x07FF)
	if word&0x8000 != 0 {
		mantissa -= 0x800
	}
	exp := (word >> 11) & 0x0F
	return float64(mantissa<<exp) / 100, nil
}
