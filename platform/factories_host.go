//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"potentiostat-go/errcode"
	"potentiostat-go/hw"
	"potentiostat-go/services/instrument"
)

// ------------------------------- GPIO (host) ---------------------------------

// SimPin implements hw.GPIOPin for host builds. OnSet, when non-nil, is
// invoked on every level change and is how simulator models observe the
// bit-banged bus.
type SimPin struct {
	mu    sync.RWMutex
	num   int
	state bool
	OnSet func(bool)
}

func NewSimPin(num int) *SimPin { return &SimPin{num: num} }

func (p *SimPin) ConfigureInput(hw.Pull) error { return nil }
func (p *SimPin) ConfigureOutput(initial bool) error {
	p.Set(initial)
	return nil
}

func (p *SimPin) Set(v bool) {
	p.mu.Lock()
	p.state = v
	hook := p.OnSet
	p.mu.Unlock()
	if hook != nil {
		hook(v)
	}
}

func (p *SimPin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Drive sets the level as seen by Get without firing OnSet, for simulator
// models driving an input line.
func (p *SimPin) Drive(v bool) {
	p.mu.Lock()
	p.state = v
	p.mu.Unlock()
}

func (p *SimPin) Number() int { return p.num }

// ------------------------------ NVM (host) ------------------------------------

// MemRows is an in-memory hw.RowMemory with flash semantics: rows erase to
// 0xFF and must be erased before they are written.
type MemRows struct {
	rows    [][]byte
	rowSize int
}

func NewMemRows(rows, rowSize int) *MemRows {
	m := &MemRows{rows: make([][]byte, rows), rowSize: rowSize}
	for i := range m.rows {
		m.rows[i] = make([]byte, rowSize)
		for j := range m.rows[i] {
			m.rows[i][j] = 0xFF
		}
	}
	return m
}

func (m *MemRows) Rows() int    { return len(m.rows) }
func (m *MemRows) RowSize() int { return m.rowSize }

func (m *MemRows) ReadRow(row int, buf []byte) error {
	if row < 0 || row >= len(m.rows) {
		return errcode.RowOutOfRange
	}
	copy(buf, m.rows[row])
	return nil
}

func (m *MemRows) WriteRow(row int, data []byte) error {
	if row < 0 || row >= len(m.rows) {
		return errcode.RowOutOfRange
	}
	if len(data) > m.rowSize {
		return errcode.RowTooSmall
	}
	for _, b := range m.rows[row][:len(data)] {
		if b != 0xFF {
			return errcode.RowNotErased
		}
	}
	copy(m.rows[row], data)
	return nil
}

func (m *MemRows) EraseRow(row int) error {
	if row < 0 || row >= len(m.rows) {
		return errcode.RowOutOfRange
	}
	for i := range m.rows[row] {
		m.rows[row][i] = 0xFF
	}
	return nil
}

// ------------------------------ Link (host) -----------------------------------

// PipeLink is an in-process hw.FrameLink. Loopback returns two connected
// ends; frames written to one are read from the other.
type PipeLink struct {
	in  <-chan []byte
	out chan<- []byte

	closeOnce sync.Once
}

func Loopback() (*PipeLink, *PipeLink) {
	ab := make(chan []byte, 8)
	ba := make(chan []byte, 8)
	return &PipeLink{in: ba, out: ab}, &PipeLink{in: ab, out: ba}
}

func (l *PipeLink) ReadFrame(buf []byte) (int, error) {
	frame, ok := <-l.in
	if !ok {
		return 0, errcode.LinkClosed
	}
	if len(frame) > len(buf) {
		return 0, errcode.FrameTooLarge
	}
	return copy(buf, frame), nil
}

func (l *PipeLink) WriteFrame(frame []byte) error {
	l.out <- append([]byte(nil), frame...)
	return nil
}

// Close ends the peer's ReadFrame stream.
func (l *PipeLink) Close() {
	l.closeOnce.Do(func() { close(l.out) })
}

// ------------------------------- Defaults -------------------------------------

// Default assembles simulated resources with an unconnected frame link, so
// the firmware image builds and runs inert on a host. The simulator in
// cmd/pstat-sim wires its own resources instead.
func Default() Resources {
	dev, _ := Loopback()
	res := Resources{
		Memory: NewMemRows(24, 16),
		Link:   dev,
	}
	res.SPI.Clock = NewSimPin(2)
	res.SPI.DACSelect = NewSimPin(3)
	res.SPI.DACData = NewSimPin(4)
	res.SPI.ADCSelect = NewSimPin(5)
	res.SPI.ADCData1 = NewSimPin(6)
	res.SPI.ADCData2 = NewSimPin(7)
	res.Relays = instrument.Pins{
		Mode:   NewSimPin(10),
		Cell:   NewSimPin(11),
		Range1: NewSimPin(12),
		Range2: NewSimPin(13),
		Range3: NewSimPin(14),
	}
	return res
}
