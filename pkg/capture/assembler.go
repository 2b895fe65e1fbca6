// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/coupler"
)

// Assembler groups bus monitor output into frames
type Assembler struct {
	current Frame
}

// Add takes one monitor item. It returns a completed frame when d marks the
// end of a packet that carried at least one byte.
func (a *Assembler) Add(d coupler.MonitorData, at time.Time) (Frame, bool) {
	if d.EndOfPacket {
		return a.Flush()
	}
	if len(a.current.Data) == 0 {
		a.current.Time = at
	}
	a.current.Data = append(a.current.Data, d.Byte)
	return Frame{}, false
}

// Flush returns the bytes collected so far as a frame
func (a *Assembler) Flush() (Frame, bool) {
	if len(a.current.Data) == 0 {
		return Frame{}, false
	}
	f := a.current
	a.current = Frame{}
	return f, true
}
