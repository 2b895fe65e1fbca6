// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dpt

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		id       string
		expected Format
	}{
		{"1.001", FormatBool},
		{"5.001", FormatScaling},
		{"5.010", FormatU8},
		{"7.001", FormatU16},
		{"8.010", FormatV16},
		{"9.001", FormatF16},
		{"DPT-9.004", FormatF16},
		{"12.001", FormatU32},
		{"13.010", FormatV32},
		{"14.056", FormatF32},
		{"232.600", FormatB24},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := Parse(tt.id)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}

	for _, id := range []string{"", "x", "16.000", "3.007"} {
		if _, err := Parse(id); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%q: expected ErrUnsupportedFormat, got %v", id, err)
		}
	}
}

func TestObjectLength(t *testing.T) {
	tests := map[Format]int{
		FormatBool: 1, FormatU8: 2, FormatScaling: 2, FormatF16: 3, FormatB24: 4, FormatF32: 5,
	}
	for f, expected := range tests {
		if got := f.ObjectLength(); got != expected {
			t.Errorf("%s: expected %d, got %d", f, expected, got)
		}
	}
}

// ============================================================
// Encoding Tests
// ============================================================

func TestEncode_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		value    float64
		expected []byte
	}{
		{"bool on", FormatBool, 1, []byte{0x01}},
		{"bool off", FormatBool, 0, []byte{0x00}},
		{"u8", FormatU8, 200, []byte{0xC8}},
		{"scaling 100", FormatScaling, 100, []byte{0xFF}},
		{"scaling 50", FormatScaling, 50, []byte{0x80}},
		{"u16", FormatU16, 0x1234, []byte{0x12, 0x34}},
		{"v16 negative", FormatV16, -2, []byte{0xFF, 0xFE}},
		{"f16 21 C", FormatF16, 21, []byte{0x0C, 0x1A}},
		{"f16 zero", FormatF16, 0, []byte{0x00, 0x00}},
		{"f16 negative", FormatF16, -5, []byte{0x86, 0x0C}},
		{"f16 small", FormatF16, 0.5, []byte{0x00, 0x32}},
		{"b24", FormatB24, 0xFF8000, []byte{0xFF, 0x80, 0x00}},
		{"u32", FormatU32, 0x01020304, []byte{0x01, 0x02, 0x03, 0x04}},
		{"v32 negative", FormatV32, -1, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"f32 one", FormatF32, 1, []byte{0x3F, 0x80, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.format, tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("expected % X, got % X", tt.expected, got)
			}
		})
	}
}

func TestEncode_OutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		value  float64
	}{
		{"u8 overflow", FormatU8, 256},
		{"u8 negative", FormatU8, -1},
		{"scaling", FormatScaling, 101},
		{"v16", FormatV16, 40000},
		{"f16 high", FormatF16, 700000},
		{"f16 low", FormatF16, -700000},
		{"f16 nan", FormatF16, math.NaN()},
		{"b24", FormatB24, 0x1000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.format, tt.value); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
}

// ============================================================
// Decoding Tests
// ============================================================

func TestDecode_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		raw      []byte
		expected float64
	}{
		{"bool", FormatBool, []byte{0x01}, 1},
		{"scaling", FormatScaling, []byte{0x80}, 50.2},
		{"f16 21 C", FormatF16, []byte{0x0C, 0x1A}, 21},
		{"f16 negative", FormatF16, []byte{0x86, 0x0C}, -5},
		{"f16 min", FormatF16, []byte{0xF8, 0x00}, -671088.64},
		{"v16", FormatV16, []byte{0x80, 0x00}, -32768},
		{"b24", FormatB24, []byte{0x00, 0x80, 0xFF}, 0x0080FF},
		{"f32", FormatF32, []byte{0xC0, 0x00, 0x00, 0x00}, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.format, tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(FormatF16, []byte{0x7F, 0xFF}); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
	if _, err := Decode(FormatU32, []byte{0x01}); !errors.Is(err, ErrShortData) {
		t.Errorf("expected ErrShortData, got %v", err)
	}
	if _, err := Decode(Format(99), []byte{0x01}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestF16_RoundTripWithinResolution(t *testing.T) {
	values := []float64{-273, -20.5, -0.01, 0.01, 1.5, 21.37, 100, 1234.56, 40000, 670000}
	for _, v := range values {
		raw, err := Encode(FormatF16, v)
		if err != nil {
			t.Fatalf("%v: %v", v, err)
		}
		got, err := Decode(FormatF16, raw)
		if err != nil {
			t.Fatalf("%v: %v", v, err)
		}
		// The mantissa keeps 11 bits, so the step size is 0.01 * 2^exp
		tolerance := math.Max(0.01, math.Abs(v)/1024)
		if math.Abs(got-v) > tolerance {
			t.Errorf("%v decoded as %v (tolerance %v)", v, got, tolerance)
		}
	}
}
