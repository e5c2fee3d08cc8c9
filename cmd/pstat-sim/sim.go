package main

import (
	"sync"
	"time"

	"potentiostat-go/drivers/dac1220"
	"potentiostat-go/drivers/mcp3550"
)

// simDAC implements the instrument service's DAC surface over a plain
// register file, so the real dispatcher and boot sequence run unmodified.
type simDAC struct {
	mu   sync.Mutex
	regs map[uint8][]byte
}

func newSimDAC() *simDAC {
	return &simDAC{regs: make(map[uint8][]byte)}
}

func (d *simDAC) Reset() {}

func (d *simDAC) Init() {
	d.WriteRegister(dac1220.RegCommand, []byte{0x20, 0xA0})
	d.WriteRegister(dac1220.RegOutput, []byte{0x80, 0x00, 0x00})
}

// SelfCalibrate loads fixed plausible correction values, as the real
// converter would after its calibration cycle.
func (d *simDAC) SelfCalibrate() {
	d.WriteRegister(dac1220.RegOffsetCal, []byte{0x00, 0x01, 0x42})
	d.WriteRegister(dac1220.RegGainCal, []byte{0x7F, 0xFE, 0xD0})
}

func (d *simDAC) WriteRegister(addr uint8, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[addr] = append([]byte(nil), data...)
}

func (d *simDAC) ReadRegister(addr uint8, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(buf, d.regs[addr])
}

// Output returns the current output register value, for status logging.
func (d *simDAC) Output() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.regs[dac1220.RegOutput]...)
}

// simADC reproduces the converter's conversion cycle: a conversion is ready
// once per interval, reading it consumes it and starts the next one. Channel
// A tracks the DAC output so host-side plots look alive; channel B carries a
// slow ramp.
type simADC struct {
	mu       sync.Mutex
	dac      *simDAC
	interval time.Duration
	readyAt  time.Time
	seq      uint32
}

func newSimADC(dac *simDAC, interval time.Duration) *simADC {
	return &simADC{dac: dac, interval: interval, readyAt: time.Now().Add(interval)}
}

func (a *simADC) TryRead() ([mcp3550.SampleLen]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sample [mcp3550.SampleLen]byte
	if time.Now().Before(a.readyAt) {
		return sample, false
	}
	copy(sample[0:3], a.dac.Output())
	a.seq++
	sample[3] = byte(a.seq >> 16)
	sample[4] = byte(a.seq >> 8)
	sample[5] = byte(a.seq)
	a.readyAt = time.Now().Add(a.interval)
	return sample, true
}
