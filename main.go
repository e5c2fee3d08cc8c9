// Firmware image for the potentiostat controller board. Wires the platform
// resources to the drivers and services and runs until power-off.
package main

import (
	"context"

	"potentiostat-go/bus"
	"potentiostat-go/calstore"
	"potentiostat-go/drivers/dac1220"
	"potentiostat-go/drivers/mcp3550"
	"potentiostat-go/drivers/softspi"
	"potentiostat-go/platform"
	"potentiostat-go/services/bridge"
	"potentiostat-go/services/heartbeat"
	"potentiostat-go/services/instrument"
)

func main() {
	res := platform.Default()

	spi := softspi.New(res.SPI, softspi.Config{})
	if err := spi.Configure(); err != nil {
		println("Error: spi configure:", err.Error())
		return
	}
	dac := dac1220.New(spi)
	adc := mcp3550.New(spi)

	store, err := calstore.Mount(res.Memory)
	if err != nil {
		println("Error: calstore mount:", err.Error())
		return
	}

	ctx := context.Background()
	b := bus.NewBus(8)

	ctrl := instrument.NewController(res.Relays, instrument.ControllerConfig{})
	svc := instrument.New(instrument.Config{}, ctrl, dac, adc, store)
	if err := svc.Start(ctx, b.NewConnection("instrument")); err != nil {
		println("Error: instrument start:", err.Error())
		return
	}

	_ = heartbeat.New(heartbeat.Config{}).Start(ctx, b.NewConnection("heartbeat"))

	println("Info: potentiostat ready")
	bridge.Start(ctx, b.NewConnection("bridge"), res.Link, bridge.Config{})
}
