// Package mcp3550 drives a pair of MCP3550 precision ADCs sharing the
// software serial bus clock and chip select, with independent data lines
// read simultaneously. Conversions are polled, never awaited: TryRead is
// non-blocking and the host retries on a not-ready reply.
package mcp3550

// SampleLen is the size of one dual-channel result: three bytes per channel.
const SampleLen = 6

// Bus is the slice of the software serial bus this driver needs.
type Bus interface {
	SelectADC(assert bool)
	// SampleADCData returns the levels of the two ADC data lines. With the
	// converters selected and idle, channel 1 low signals a completed
	// conversion on both (they convert in lockstep off the same trigger).
	SampleADCData() (ch1, ch2 bool)
	ReadTwoChannelByte() (ch1, ch2 byte)
}

type Device struct {
	bus Bus
}

func New(bus Bus) *Device {
	return &Device{bus: bus}
}

// TryRead polls the converters. If a conversion is complete it retrieves the
// two 3-byte results (bytes 0-2 channel A, bytes 3-5 channel B), re-pulses
// chip select to trigger the next conversion, and reports ready. Otherwise
// it releases chip select and reports not ready, with no side effects: no
// conversion is triggered or lost, and the caller simply retries later.
func (d *Device) TryRead() (sample [SampleLen]byte, ready bool) {
	d.bus.SelectADC(true)
	busy, _ := d.bus.SampleADCData()
	if !busy {
		for i := 0; i < 3; i++ {
			a, b := d.bus.ReadTwoChannelByte()
			sample[i] = a
			sample[3+i] = b
		}
		ready = true
		// Re-pulse chip select to start the next conversion.
		d.bus.SelectADC(false)
		d.bus.SelectADC(true)
	}
	d.bus.SelectADC(false)
	return sample, ready
}
