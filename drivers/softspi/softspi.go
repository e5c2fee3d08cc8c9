// Package softspi is a software-driven synchronous serial bus with one shared
// clock, two chip-select lines and up to three data lines: a bidirectional
// line for the DAC channel and two input-only lines for the ADC channels,
// sampled on the same clock edges so the two channel reads stay bit-for-bit
// time-aligned.
//
// Every line transition is followed by a fixed settling delay; the bus has no
// acknowledgment and no error conditions. Bytes move most-significant-bit
// first.
package softspi

import (
	"time"

	"tinygo.org/x/drivers"

	"potentiostat-go/hw"
)

// Pins are the logical lines the bus drives. All must be non-nil.
type Pins struct {
	Clock     hw.GPIOPin
	DACSelect hw.GPIOPin // active low
	DACData   hw.GPIOPin // bidirectional, direction switched per transaction
	ADCSelect hw.GPIOPin // active low, shared by both ADC channels
	ADCData1  hw.GPIOPin // input only; doubles as the conversion-ready line
	ADCData2  hw.GPIOPin // input only
}

// Config carries bus timing. Zero fields take defaults.
type Config struct {
	// EdgeDelay is the minimum settle time after any line transition.
	// Default 17µs, the original hardware's inter-edge margin.
	EdgeDelay time.Duration
}

const defaultEdgeDelay = 17 * time.Microsecond

// Bus is the shared transport. It is not safe for concurrent use; the
// firmware's single-actor command loop is the only client by construction.
type Bus struct {
	pins  Pins
	delay time.Duration
}

var _ drivers.SPI = (*Bus)(nil)

func New(pins Pins, cfg Config) *Bus {
	if cfg.EdgeDelay <= 0 {
		cfg.EdgeDelay = defaultEdgeDelay
	}
	return &Bus{pins: pins, delay: cfg.EdgeDelay}
}

// Configure initialises the lines: chip selects inactive (high) outputs,
// clock a low output, data lines inputs.
func (b *Bus) Configure() error {
	if err := b.pins.DACSelect.ConfigureOutput(true); err != nil {
		return err
	}
	if err := b.pins.ADCSelect.ConfigureOutput(true); err != nil {
		return err
	}
	if err := b.pins.Clock.ConfigureOutput(false); err != nil {
		return err
	}
	if err := b.pins.DACData.ConfigureInput(hw.PullNone); err != nil {
		return err
	}
	if err := b.pins.ADCData1.ConfigureInput(hw.PullNone); err != nil {
		return err
	}
	return b.pins.ADCData2.ConfigureInput(hw.PullNone)
}

// Delay waits one inter-edge settle period.
func (b *Bus) Delay() { time.Sleep(b.delay) }

func (b *Bus) clockPulse() {
	b.pins.Clock.Set(true)
	b.Delay()
	b.pins.Clock.Set(false)
	b.Delay()
}

// PulseClockFor holds the clock high for at least width, then returns it low
// and settles. Used by the DAC reset sequence, whose three pulse widths are
// protocol-mandated.
func (b *Bus) PulseClockFor(width time.Duration) {
	b.pins.Clock.Set(true)
	time.Sleep(width)
	b.pins.Clock.Set(false)
	b.Delay()
}

// SelectDAC asserts (low) or releases the DAC chip select, with settle time.
func (b *Bus) SelectDAC(assert bool) {
	b.pins.DACSelect.Set(!assert)
	b.Delay()
}

// SelectADC asserts (low) or releases the ADC chip select, with settle time.
func (b *Bus) SelectADC(assert bool) {
	b.pins.ADCSelect.Set(!assert)
	b.Delay()
}

// DACDataOutput switches the DAC data line to a driven output.
func (b *Bus) DACDataOutput() { _ = b.pins.DACData.ConfigureOutput(false) }

// DACDataInput releases the DAC data line back to an input.
func (b *Bus) DACDataInput() { _ = b.pins.DACData.ConfigureInput(hw.PullNone) }

// WriteByte shifts one byte out on the DAC data line, MSB first; each bit is
// set before its clock pulse. Caller is responsible for chip select and line
// direction.
func (b *Bus) WriteByte(v byte) {
	for i := 0; i < 8; i++ {
		b.pins.DACData.Set(v&0x80 != 0)
		b.clockPulse()
		v <<= 1
	}
}

// ReadByte clocks one byte in from the DAC data line, sampling after each
// pulse, MSB first.
func (b *Bus) ReadByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		b.clockPulse()
		v <<= 1
		if b.pins.DACData.Get() {
			v |= 0x01
		}
	}
	return v
}

// ReadTwoChannelByte clocks one byte in from each ADC data line in a single
// pass of 8 pulses, so the two bytes are sampled on identical clock edges.
func (b *Bus) ReadTwoChannelByte() (ch1, ch2 byte) {
	for i := 0; i < 8; i++ {
		b.clockPulse()
		ch1 <<= 1
		ch2 <<= 1
		if b.pins.ADCData1.Get() {
			ch1 |= 0x01
		}
		if b.pins.ADCData2.Get() {
			ch2 |= 0x01
		}
	}
	return ch1, ch2
}

// SampleADCData returns the instantaneous levels of the two ADC data lines.
// With the ADC selected and idle, channel 1 low means a conversion is ready.
func (b *Bus) SampleADCData() (ch1, ch2 bool) {
	return b.pins.ADCData1.Get(), b.pins.ADCData2.Get()
}

// Tx runs one half-duplex DAC transaction: select, shift out w, then (if r is
// non-empty) turn the data line around and shift in len(r) bytes, release.
// This satisfies the drivers.SPI contract for half-duplex peripherals; it
// never fails.
func (b *Bus) Tx(w, r []byte) error {
	b.SelectDAC(true)
	if len(w) > 0 {
		b.DACDataOutput()
		for _, v := range w {
			b.WriteByte(v)
		}
		b.DACDataInput()
	}
	if len(r) > 0 {
		b.Delay()
		for i := range r {
			r[i] = b.ReadByte()
		}
	}
	b.SelectDAC(false)
	return nil
}

// Transfer shifts one byte out on the DAC channel. The bus is half duplex;
// the returned byte is always zero.
func (b *Bus) Transfer(v byte) (byte, error) {
	return 0, b.Tx([]byte{v}, nil)
}
