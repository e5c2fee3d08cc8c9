// Package dac1220 drives the DAC1220 20-bit DAC over the software serial
// bus. The device is register-addressed: a command byte (opcode plus register
// address) is shifted out first, followed by the payload bytes, or — for
// reads — by a line turnaround and the requested byte count.
//
// The bus protocol has no acknowledgment, so this layer surfaces no errors
// and never validates register values.
package dac1220

import "time"

// Register addresses.
const (
	RegOutput    = 0  // 3 bytes, big-endian, 20-bit left-justified
	RegCommand   = 4  // 2 bytes
	RegOffsetCal = 8  // 3 bytes
	RegGainCal   = 12 // 3 bytes
)

// Command byte opcodes, added to the register address.
const (
	opWrite2 = 0x20
	opWrite3 = 0x40
	opRead2  = 0xA0
	opRead3  = 0xC0
)

// Command register values: 20-bit resolution, straight binary coding.
const (
	cmdResolution20 = 0x20
	cmdModeNormal   = 0xA0
	cmdModeSelfCal  = 0xA1
)

// Reset pulse widths, from the converter's documented synchronization
// sequence. These are protocol-mandated and must not be approximated.
const (
	resetPulse1 = 264 * time.Microsecond
	resetPulse2 = 570 * time.Microsecond
	resetPulse3 = 903 * time.Microsecond
)

// CalSettle is the fixed period a caller must wait after SelfCalibrate
// before the calibration registers are valid for read-back.
const CalSettle = 500 * time.Millisecond

// PowerUpDelay is the settle time required after power-on before Reset.
const PowerUpDelay = 25 * time.Millisecond

// Bus is the slice of the software serial bus this driver needs.
type Bus interface {
	// Tx shifts out w on the DAC channel, then turns the data line around
	// and shifts len(r) bytes in.
	Tx(w, r []byte) error
	// SelectDAC asserts or releases the DAC chip select.
	SelectDAC(assert bool)
	// PulseClockFor holds the clock high for at least width.
	PulseClockFor(width time.Duration)
}

type Device struct {
	bus Bus
	w   [4]byte // command byte + up to 3 payload bytes
}

func New(bus Bus) *Device {
	return &Device{bus: bus}
}

// Reset emits the converter's synchronization sequence: with chip select
// held low, three clock-high pulses of increasing, exact widths.
func (d *Device) Reset() {
	d.bus.SelectDAC(true)
	d.bus.PulseClockFor(resetPulse1)
	d.bus.PulseClockFor(resetPulse2)
	d.bus.PulseClockFor(resetPulse3)
	d.bus.SelectDAC(false)
}

// Init configures 20-bit straight-binary resolution and sets the output
// register to midscale.
func (d *Device) Init() {
	d.WriteRegister(RegCommand, []byte{cmdResolution20, cmdModeNormal})
	d.WriteRegister(RegOutput, []byte{0x80, 0x00, 0x00})
}

// SelfCalibrate issues the self-calibration command. The caller must wait
// CalSettle before reading the calibration registers back.
func (d *Device) SelfCalibrate() {
	d.WriteRegister(RegCommand, []byte{cmdResolution20, cmdModeSelfCal})
}

// WriteRegister transacts a 2- or 3-byte register write. Other payload
// lengths are silently truncated to 3 bytes, matching the wire format.
func (d *Device) WriteRegister(addr uint8, data []byte) {
	op := byte(opWrite3)
	if len(data) == 2 {
		op = opWrite2
	}
	if len(data) > 3 {
		data = data[:3]
	}
	d.w[0] = op + addr
	n := copy(d.w[1:], data)
	_ = d.bus.Tx(d.w[:1+n], nil)
}

// ReadRegister transacts a register read, filling buf (2 or 3 bytes).
func (d *Device) ReadRegister(addr uint8, buf []byte) {
	op := byte(opRead3)
	if len(buf) == 2 {
		op = opRead2
	}
	if len(buf) > 3 {
		buf = buf[:3]
	}
	d.w[0] = op + addr
	_ = d.bus.Tx(d.w[:1], buf)
}

// OutputCode packs a 20-bit straight-binary code into the 3-byte
// left-justified wire format of the output register.
func OutputCode(code uint32) [3]byte {
	code &= 0xFFFFF
	code <<= 4
	return [3]byte{byte(code >> 16), byte(code >> 8), byte(code)}
}
