// Package platform binds the firmware to its target. Under the rp2040 or
// rp2350 build tags it hands out real machine pins, on-chip flash rows and a
// UART frame link; on any other target it provides simulated equivalents so
// the module builds and tests on a host.
package platform

import (
	"potentiostat-go/drivers/softspi"
	"potentiostat-go/hw"
	"potentiostat-go/services/instrument"
)

// Resources are the hardware handles one firmware image runs on.
type Resources struct {
	SPI    softspi.Pins
	Relays instrument.Pins
	Memory hw.RowMemory
	Link   hw.FrameLink
}
