// boardtest walks a freshly assembled controller board through its bring-up
// checks one subsystem at a time: relay outputs, DAC register traffic, ADC
// conversion polling and the calibration store. Flash it in place of the
// firmware image and watch the serial console; on a host build it runs
// against the simulated platform and only proves the wiring compiles.
package main

import (
	"time"

	"potentiostat-go/calstore"
	"potentiostat-go/drivers/dac1220"
	"potentiostat-go/drivers/mcp3550"
	"potentiostat-go/drivers/softspi"
	"potentiostat-go/platform"
	"potentiostat-go/services/instrument"
	"potentiostat-go/x/conv"
)

const (
	relayDwell  = 500 * time.Millisecond
	adcPollFor  = 3 * time.Second
	adcPollStep = 50 * time.Millisecond
)

func main() {
	println("[boardtest] boot")
	time.Sleep(1500 * time.Millisecond)

	res := platform.Default()
	spi := softspi.New(res.SPI, softspi.Config{})
	if err := spi.Configure(); err != nil {
		println("[boardtest] FAIL: spi configure:", err.Error())
		return
	}

	relayCheck(res.Relays)
	dacCheck(spi)
	adcCheck(spi)
	storeCheck(res)

	println("[boardtest] done")
}

// relayCheck cycles every relay so the clicks can be heard and the contacts
// probed. Range switching uses the same make-before-break path the firmware
// uses.
func relayCheck(pins instrument.Pins) {
	println("[boardtest] relays: cell on/off, mode, ranges")
	ctrl := instrument.NewController(pins, instrument.ControllerConfig{})
	if err := ctrl.Configure(); err != nil {
		println("[boardtest] FAIL: relay configure:", err.Error())
		return
	}
	ctrl.SetCell(true)
	time.Sleep(relayDwell)
	ctrl.SetCell(false)
	ctrl.SetMode(instrument.Galvanostatic)
	time.Sleep(relayDwell)
	ctrl.SetMode(instrument.Potentiostatic)
	for _, n := range []int{2, 3, 1} {
		ctrl.SetRange(n)
		time.Sleep(relayDwell)
	}
	println("[boardtest] relays: PASS (verify audibly/by probe)")
}

// dacCheck brings the converter up and proves register traffic by writing a
// pattern to the output register and reading it back.
func dacCheck(spi *softspi.Bus) {
	println("[boardtest] dac: reset, init, write/readback")
	dac := dac1220.New(spi)
	time.Sleep(dac1220.PowerUpDelay)
	dac.Reset()
	time.Sleep(dac1220.PowerUpDelay)
	dac.Init()

	want := []byte{0x5A, 0xA5, 0x50}
	dac.WriteRegister(dac1220.RegOutput, want)
	got := make([]byte, 3)
	dac.ReadRegister(dac1220.RegOutput, got)
	if got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		println("[boardtest] dac: FAIL, readback", conv.HexString(got), "want", conv.HexString(want))
	} else {
		println("[boardtest] dac: PASS")
	}
	dac.WriteRegister(dac1220.RegOutput, []byte{0x80, 0x00, 0x00})
}

// adcCheck polls for conversions; a populated board produces one within the
// converter's cycle time.
func adcCheck(spi *softspi.Bus) {
	println("[boardtest] adc: polling for a conversion")
	adc := mcp3550.New(spi)
	deadline := time.Now().Add(adcPollFor)
	for time.Now().Before(deadline) {
		if sample, ready := adc.TryRead(); ready {
			println("[boardtest] adc: PASS, sample", conv.HexString(sample[:]))
			return
		}
		time.Sleep(adcPollStep)
	}
	println("[boardtest] adc: FAIL, no conversion ready")
}

// storeCheck mounts the calibration store and round-trips the shunt slot.
// The slot's live record is rewritten afterwards, not lost: the final write
// restores what was read.
func storeCheck(res platform.Resources) {
	println("[boardtest] calstore: mount and round-trip")
	store, err := calstore.Mount(res.Memory)
	if err != nil {
		println("[boardtest] calstore: FAIL, mount:", err.Error())
		return
	}
	prev, err := store.Read(calstore.SlotShuntCal)
	if err != nil {
		println("[boardtest] calstore: FAIL, read:", err.Error())
		return
	}
	pattern := []byte{0xB0, 0xA2, 0xD7, 0xE5, 0x7C, 0x01}
	if err := store.Write(calstore.SlotShuntCal, pattern); err != nil {
		println("[boardtest] calstore: FAIL, write:", err.Error())
		return
	}
	got, _ := store.Read(calstore.SlotShuntCal)
	ok := true
	for i := range pattern {
		if got[i] != pattern[i] {
			ok = false
		}
	}
	if err := store.Write(calstore.SlotShuntCal, prev[:]); err != nil {
		println("[boardtest] calstore: warn, restore failed:", err.Error())
	}
	if ok {
		println("[boardtest] calstore: PASS")
	} else {
		println("[boardtest] calstore: FAIL, readback", conv.HexString(got[:]))
	}
}
