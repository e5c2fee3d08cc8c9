package instrument

import (
	"time"

	"potentiostat-go/hw"
)

// Mode selects which quantity the analog front end holds constant.
type Mode uint8

const (
	Potentiostatic Mode = iota
	Galvanostatic
)

func (m Mode) String() string {
	if m == Galvanostatic {
		return "galvanostatic"
	}
	return "potentiostatic"
}

// State is a snapshot of the instrument's relay outputs. It lives only for
// the powered session; boot always returns to the default below.
type State struct {
	Mode  Mode
	Cell  bool
	Range int
}

// Pins are the discrete outputs the controller owns.
type Pins struct {
	Mode   hw.GPIOPin // low = potentiostatic, high = galvanostatic
	Cell   hw.GPIOPin // high = cell connected
	Range1 hw.GPIOPin
	Range2 hw.GPIOPin
	Range3 hw.GPIOPin
}

type ControllerConfig struct {
	// RangeSettle is the relay settling delay between asserting the new
	// range output and releasing the previous one.
	RangeSettle time.Duration
}

func (c *ControllerConfig) setDefaults() {
	if c.RangeSettle == 0 {
		c.RangeSettle = 10 * time.Millisecond
	}
}

// Controller drives the mode, cell and range relays. Range switching is
// make-before-break: the new output is asserted and allowed to settle
// before the old one is released, so the signal path is never open across
// a relay transition.
type Controller struct {
	pins  Pins
	cfg   ControllerConfig
	state State
}

func NewController(pins Pins, cfg ControllerConfig) *Controller {
	cfg.setDefaults()
	return &Controller{pins: pins, cfg: cfg}
}

// Configure drives every output to the boot default: potentiostatic mode,
// cell off, range 1.
func (c *Controller) Configure() error {
	if err := c.pins.Mode.ConfigureOutput(false); err != nil {
		return err
	}
	if err := c.pins.Cell.ConfigureOutput(false); err != nil {
		return err
	}
	if err := c.pins.Range1.ConfigureOutput(true); err != nil {
		return err
	}
	if err := c.pins.Range2.ConfigureOutput(false); err != nil {
		return err
	}
	if err := c.pins.Range3.ConfigureOutput(false); err != nil {
		return err
	}
	c.state = State{Mode: Potentiostatic, Cell: false, Range: 1}
	return nil
}

func (c *Controller) State() State { return c.state }

func (c *Controller) SetMode(m Mode) {
	c.pins.Mode.Set(m == Galvanostatic)
	c.state.Mode = m
}

func (c *Controller) SetCell(on bool) {
	c.pins.Cell.Set(on)
	c.state.Cell = on
}

// SetRange selects one of the three current ranges. n outside 1..3 is
// ignored; the dispatcher only ever produces valid values.
func (c *Controller) SetRange(n int) {
	if n < 1 || n > 3 {
		return
	}
	rng := [...]hw.GPIOPin{c.pins.Range1, c.pins.Range2, c.pins.Range3}
	rng[n-1].Set(true)
	time.Sleep(c.cfg.RangeSettle)
	for i, pin := range rng {
		if i != n-1 {
			pin.Set(false)
		}
	}
	c.state.Range = n
}
