//go:build rp2040 || rp2350

package platform

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"potentiostat-go/errcode"
	"potentiostat-go/hw"
	"potentiostat-go/services/instrument"
)

// Board wiring, Pico GP numbering.
const (
	pinClock     = 2
	pinDACSelect = 3
	pinDACData   = 4
	pinADCSelect = 5
	pinADCData1  = 6
	pinADCData2  = 7

	pinMode   = 10
	pinCell   = 11
	pinRange1 = 12
	pinRange2 = 13
	pinRange3 = 14
)

const linkBaud = 115200

// calRows is the number of flash erase blocks reserved for the calibration
// store, taken from the start of TinyGo's flash data area.
const calRows = 24

// -------------------------------- GPIO ----------------------------------------

type rp2Pin struct {
	p machine.Pin
	n int
}

func newPin(n int) *rp2Pin { return &rp2Pin{p: machine.Pin(n), n: n} }

func (r *rp2Pin) ConfigureInput(pull hw.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hw.PullUp:
		mode = machine.PinInputPullup
	case hw.PullDown:
		mode = machine.PinInputPulldown
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(v bool)  { r.p.Set(v) }
func (r *rp2Pin) Get() bool   { return r.p.Get() }
func (r *rp2Pin) Number() int { return r.n }

// -------------------------------- NVM -----------------------------------------

// rp2Flash exposes the first calRows erase blocks of the on-chip flash data
// area as hw.RowMemory. Writes are padded to the flash write block size.
type rp2Flash struct {
	rowSize  int
	writeBlk int
}

func newFlashRows() *rp2Flash {
	return &rp2Flash{
		rowSize:  int(machine.Flash.EraseBlockSize()),
		writeBlk: int(machine.Flash.WriteBlockSize()),
	}
}

func (f *rp2Flash) Rows() int    { return calRows }
func (f *rp2Flash) RowSize() int { return f.rowSize }

func (f *rp2Flash) ReadRow(row int, buf []byte) error {
	if row < 0 || row >= calRows {
		return errcode.RowOutOfRange
	}
	n := len(buf)
	if n > f.rowSize {
		n = f.rowSize
	}
	if _, err := machine.Flash.ReadAt(buf[:n], int64(row)*int64(f.rowSize)); err != nil {
		return &errcode.E{C: errcode.MemoryFailed, Op: "platform.ReadRow", Err: err}
	}
	return nil
}

func (f *rp2Flash) WriteRow(row int, data []byte) error {
	if row < 0 || row >= calRows {
		return errcode.RowOutOfRange
	}
	if len(data) > f.rowSize {
		return errcode.RowTooSmall
	}
	padded := len(data)
	if rem := padded % f.writeBlk; rem != 0 {
		padded += f.writeBlk - rem
	}
	buf := make([]byte, padded)
	for i := range buf {
		buf[i] = 0xFF
	}
	copy(buf, data)
	if _, err := machine.Flash.WriteAt(buf, int64(row)*int64(f.rowSize)); err != nil {
		return &errcode.E{C: errcode.MemoryFailed, Op: "platform.WriteRow", Err: err}
	}
	return nil
}

func (f *rp2Flash) EraseRow(row int) error {
	if row < 0 || row >= calRows {
		return errcode.RowOutOfRange
	}
	if err := machine.Flash.EraseBlocks(int64(row), 1); err != nil {
		return &errcode.E{C: errcode.MemoryFailed, Op: "platform.EraseRow", Err: err}
	}
	return nil
}

// -------------------------------- Link ----------------------------------------

// uartStream adapts uartx to the io.ReadWriter StreamLink expects.
type uartStream struct{ u *uartx.UART }

func (s uartStream) Read(p []byte) (int, error)  { return s.u.RecvSomeContext(context.Background(), p) }
func (s uartStream) Write(p []byte) (int, error) { return s.u.Write(p) }

func newUARTLink() hw.FrameLink {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{
		BaudRate: linkBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	return NewStreamLink(uartStream{u: u})
}

// ------------------------------- Defaults -------------------------------------

// Default assembles the RP2 board resources.
func Default() Resources {
	res := Resources{
		Memory: newFlashRows(),
		Link:   newUARTLink(),
	}
	res.SPI.Clock = newPin(pinClock)
	res.SPI.DACSelect = newPin(pinDACSelect)
	res.SPI.DACData = newPin(pinDACData)
	res.SPI.ADCSelect = newPin(pinADCSelect)
	res.SPI.ADCData1 = newPin(pinADCData1)
	res.SPI.ADCData2 = newPin(pinADCData2)
	res.Relays = instrument.Pins{
		Mode:   newPin(pinMode),
		Cell:   newPin(pinCell),
		Range1: newPin(pinRange1),
		Range2: newPin(pinRange2),
		Range3: newPin(pinRange3),
	}
	return res
}
