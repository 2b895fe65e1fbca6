// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when an address string cannot be parsed
var ErrInvalidAddress = errors.New("telegram: invalid address")

// Address limits
const (
	maxArea   = 15
	maxLine   = 15
	maxMain   = 31
	maxMiddle = 7
	maxLow    = 255
)

// PhysicalAddress builds an individual address from area, line and device
func PhysicalAddress(area, line, device byte) uint16 {
	return uint16(area&0x0F)<<12 | uint16(line&0x0F)<<8 | uint16(device)
}

// GroupAddress builds a 3-level group address from main, middle and sub groups
func GroupAddress(main, middle, sub byte) uint16 {
	return uint16(main&0x1F)<<11 | uint16(middle&0x07)<<8 | uint16(sub)
}

// FormatIndividualAddress renders an individual address as "area.line.device"
func FormatIndividualAddress(addr uint16) string {
	return fmt.Sprintf("%d.%d.%d", addr>>12, (addr>>8)&0x0F, addr&0xFF)
}

// FormatGroupAddress renders a group address as "main/middle/sub"
func FormatGroupAddress(addr uint16) string {
	return fmt.Sprintf("%d/%d/%d", addr>>11, (addr>>8)&0x07, addr&0xFF)
}

// ParseIndividualAddress parses "area.line.device"
func ParseIndividualAddress(s string) (uint16, error) {
	parts, err := splitAddress(s, ".", maxArea, maxLine)
	if err != nil {
		return 0, err
	}
	return PhysicalAddress(parts[0], parts[1], parts[2]), nil
}

// ParseGroupAddress parses "main/middle/sub"
func ParseGroupAddress(s string) (uint16, error) {
	parts, err := splitAddress(s, "/", maxMain, maxMiddle)
	if err != nil {
		return 0, err
	}
	return GroupAddress(parts[0], parts[1], parts[2]), nil
}

func splitAddress(s, sep string, maxFirst, maxSecond uint64) ([3]byte, error) {
	var out [3]byte
	fields := strings.Split(strings.TrimSpace(s), sep)
	if len(fields) != 3 {
		return out, fmt.Errorf("%w: expected 3 levels separated by %q, got %q", ErrInvalidAddress, sep, s)
	}
	limits := [3]uint64{maxFirst, maxSecond, maxLow}
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil || v > limits[i] {
			return out, fmt.Errorf("%w: level %d of %q must be 0-%d", ErrInvalidAddress, i+1, s, limits[i])
		}
		out[i] = byte(v)
	}
	return out, nil
}
