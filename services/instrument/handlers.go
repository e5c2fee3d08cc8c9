package instrument

import (
	"time"

	"potentiostat-go/calstore"
	"potentiostat-go/drivers/dac1220"
	"potentiostat-go/protocol"
)

// buildDispatcher registers the full command table. Payload commands carry
// their trailing separator in the token, so matching stays a literal
// prefix-plus-length check.
func (s *Service) buildDispatcher() *protocol.Dispatcher {
	d := &protocol.Dispatcher{}

	d.Handle("CELL ON", 0, func([]byte) []byte {
		s.ctrl.SetCell(true)
		return protocol.ReplyOK
	})
	d.Handle("CELL OFF", 0, func([]byte) []byte {
		s.ctrl.SetCell(false)
		return protocol.ReplyOK
	})
	d.Handle("POTENTIOSTATIC", 0, func([]byte) []byte {
		s.ctrl.SetMode(Potentiostatic)
		return protocol.ReplyOK
	})
	d.Handle("GALVANOSTATIC", 0, func([]byte) []byte {
		s.ctrl.SetMode(Galvanostatic)
		return protocol.ReplyOK
	})
	d.Handle("RANGE 1", 0, s.rangeAction(1))
	d.Handle("RANGE 2", 0, s.rangeAction(2))
	d.Handle("RANGE 3", 0, s.rangeAction(3))

	d.Handle("DACSET ", 3, func(payload []byte) []byte {
		s.dac.WriteRegister(dac1220.RegOutput, payload)
		return protocol.ReplyOK
	})
	d.Handle("DACCAL", 0, s.calibrateDAC)
	d.Handle("ADCREAD", 0, func([]byte) []byte {
		sample, ready := s.adc.TryRead()
		if !ready {
			return protocol.ReplyWait
		}
		return sample[:]
	})

	d.Handle("OFFSETREAD", 0, s.readRecord(calstore.SlotOffset))
	d.Handle("OFFSETSAVE ", calstore.RecordLen, s.saveRecord(calstore.SlotOffset))
	d.Handle("DACCALGET", 0, s.readRecord(calstore.SlotDACCal))
	d.Handle("DACCALSET ", calstore.RecordLen, func(payload []byte) []byte {
		if err := s.store.Write(calstore.SlotDACCal, payload); err != nil {
			println("Error: dac cal save:", err.Error())
		}
		s.applyDACCal(payload)
		return protocol.ReplyOK
	})
	d.Handle("SHUNTCALREAD", 0, s.readRecord(calstore.SlotShuntCal))
	d.Handle("SHUNTCALSAVE ", calstore.RecordLen, s.saveRecord(calstore.SlotShuntCal))

	return d
}

func (s *Service) rangeAction(n int) protocol.Action {
	return func([]byte) []byte {
		s.ctrl.SetRange(n)
		return protocol.ReplyOK
	}
}

// calibrateDAC runs the converter's self-calibration, waits out the settle
// period, then reads the resulting offset and gain registers and persists
// them as the DAC calibration record.
func (s *Service) calibrateDAC([]byte) []byte {
	s.dac.SelfCalibrate()
	time.Sleep(s.cfg.CalSettle)
	var rec [calstore.RecordLen]byte
	s.dac.ReadRegister(dac1220.RegOffsetCal, rec[0:3])
	s.dac.ReadRegister(dac1220.RegGainCal, rec[3:6])
	if err := s.store.Write(calstore.SlotDACCal, rec[:]); err != nil {
		println("Error: dac cal save:", err.Error())
	}
	return protocol.ReplyOK
}

func (s *Service) readRecord(slot calstore.Slot) protocol.Action {
	return func([]byte) []byte {
		rec, err := s.store.Read(slot)
		if err != nil {
			println("Error: record read:", err.Error())
		}
		return rec[:]
	}
}

func (s *Service) saveRecord(slot calstore.Slot) protocol.Action {
	return func(payload []byte) []byte {
		if err := s.store.Write(slot, payload); err != nil {
			println("Error: record save:", err.Error())
		}
		return protocol.ReplyOK
	}
}
