// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

// MonitorData is one item of raw bus traffic: a byte, or the end of a packet
type MonitorData struct {
	Byte        byte
	EndOfPacket bool
}

// MonitorData returns the next raw bus byte, or an end-of-packet marker once
// the bus has been silent for longer than the end-of-packet gap. It reports
// false when nothing is available or the coupler is not an initialised bus
// monitor.
func (c *Coupler) MonitorData() (MonitorData, bool) {
	if c.cfg.Mode != ModeBusMonitor || c.rx.state < RxIdle {
		return MonitorData{}, false
	}

	now := c.clock.Now()
	if c.rx.state == RxStarted && now.Sub(c.rx.lastByte) > c.cfg.EndOfPacketGap {
		c.rx.state = RxIdle
		c.stats.MonitorPackets++
		return MonitorData{EndOfPacket: true}, true
	}

	b, ok := c.link.ReadByte()
	if !ok {
		return MonitorData{}, false
	}
	c.rx.lastByte = now
	c.rx.state = RxStarted
	c.stats.MonitorBytes++
	return MonitorData{Byte: b}, true
}
