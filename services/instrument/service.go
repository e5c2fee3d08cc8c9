// Package instrument owns the instrument's command handling: the relay
// state controller, the command table, and the bus service that feeds host
// frames through the dispatcher one at a time.
package instrument

import (
	"context"
	"time"

	"potentiostat-go/bus"
	"potentiostat-go/calstore"
	"potentiostat-go/drivers/dac1220"
	"potentiostat-go/drivers/mcp3550"
	"potentiostat-go/protocol"
	"potentiostat-go/x/conv"
)

// Bus topics: command frames arrive on TopicHostRx with a ReplyTo for the
// reply frame; the latest relay state is retained on TopicState.
var (
	TopicHostRx = bus.Topic{"host", "rx"}
	TopicState  = bus.Topic{"instrument", "state"}
)

// DAC is the slice of the DAC1220 driver the service uses.
type DAC interface {
	Reset()
	Init()
	SelfCalibrate()
	WriteRegister(addr uint8, data []byte)
	ReadRegister(addr uint8, buf []byte)
}

// ADC is the non-blocking poll surface of the MCP3550 pair.
type ADC interface {
	TryRead() ([mcp3550.SampleLen]byte, bool)
}

// Store is the calibration record store.
type Store interface {
	Read(calstore.Slot) ([calstore.RecordLen]byte, error)
	Write(calstore.Slot, []byte) error
}

type Config struct {
	Controller ControllerConfig

	// PowerUpSettle is the delay required before and after the DAC reset
	// at boot.
	PowerUpSettle time.Duration
	// CalSettle is the wait after self-calibration before the calibration
	// registers read back valid values.
	CalSettle time.Duration
}

func (c *Config) setDefaults() {
	c.Controller.setDefaults()
	if c.PowerUpSettle == 0 {
		c.PowerUpSettle = dac1220.PowerUpDelay
	}
	if c.CalSettle == 0 {
		c.CalSettle = dac1220.CalSettle
	}
}

// Service executes host commands against the hardware. One frame is handled
// end to end before the next is read, so no locking guards the instrument
// state or the serial bus lines.
type Service struct {
	cfg   Config
	ctrl  *Controller
	dac   DAC
	adc   ADC
	store Store
	disp  *protocol.Dispatcher
}

func New(cfg Config, ctrl *Controller, dac DAC, adc ADC, store Store) *Service {
	cfg.setDefaults()
	s := &Service{cfg: cfg, ctrl: ctrl, dac: dac, adc: adc, store: store}
	s.disp = s.buildDispatcher()
	return s
}

// Boot drives the outputs to their defaults and brings the DAC up: power-up
// settle, reset, settle again, init, then apply the persisted DAC
// calibration record to the offset and gain registers. The record is
// applied verbatim, erased flash included, matching the converter's
// tolerance for uncalibrated values.
func (s *Service) Boot() error {
	if err := s.ctrl.Configure(); err != nil {
		return err
	}
	time.Sleep(s.cfg.PowerUpSettle)
	s.dac.Reset()
	time.Sleep(s.cfg.PowerUpSettle)
	s.dac.Init()

	rec, err := s.store.Read(calstore.SlotDACCal)
	if err != nil {
		return err
	}
	s.applyDACCal(rec[:])
	return nil
}

func (s *Service) applyDACCal(rec []byte) {
	s.dac.WriteRegister(dac1220.RegOffsetCal, rec[0:3])
	s.dac.WriteRegister(dac1220.RegGainCal, rec[3:6])
}

// Handle runs one command buffer through the dispatcher and returns the
// reply bytes.
func (s *Service) Handle(frame []byte) []byte {
	return s.disp.Dispatch(frame)
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	rxSub := conn.Subscribe(TopicHostRx)
	defer conn.Unsubscribe(rxSub)

	conn.Publish(conn.NewMessage(TopicState, s.ctrl.State(), true))

	for {
		select {
		case <-ctx.Done():
			println("Info: instrument service stopping")
			return
		case msg := <-rxSub.Channel():
			frame, ok := msg.Payload.([]byte)
			if !ok {
				continue
			}
			before := s.ctrl.State()
			reply := s.Handle(frame)
			conn.Reply(msg, reply, false)
			if after := s.ctrl.State(); after != before {
				conn.Publish(conn.NewMessage(TopicState, after, true))
			}
			println("Info: cmd", conv.HexString(frame), "->", conv.HexString(reply))
		}
	}
}

// Start boots the hardware and runs the frame loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if err := s.Boot(); err != nil {
		return err
	}
	go s.serviceLoop(ctx, conn)
	return nil
}
