// Package bridge moves host command frames between the frame link and the
// message bus: one frame read, one request to the instrument service, one
// reply frame written back. The link side never sees bus topics and the
// instrument side never sees framing.
package bridge

import (
	"context"
	"time"

	"potentiostat-go/bus"
	"potentiostat-go/errcode"
	"potentiostat-go/hw"
	"potentiostat-go/services/instrument"
)

var topicState = bus.Topic{"bridge", "state"}

type Config struct {
	// ReplyTimeout bounds one command round trip on the bus. Commands run
	// to completion before replying, so this only fires if the instrument
	// service is gone.
	ReplyTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.ReplyTimeout == 0 {
		c.ReplyTimeout = 10 * time.Second
	}
}

type Service struct {
	conn *bus.Connection
	link hw.FrameLink
	cfg  Config
}

// maxFrame is the largest frame a one-byte length prefix can carry; reading
// at this size means an oversized command still drains cleanly and falls
// through the dispatcher to the unknown-command reply.
const maxFrame = 255

// Start runs the bridge until ctx is cancelled or the link closes.
func Start(ctx context.Context, conn *bus.Connection, link hw.FrameLink, cfg Config) {
	cfg.setDefaults()
	s := &Service{conn: conn, link: link, cfg: cfg}
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	s.publishState("up")
	defer s.publishState("down")

	buf := make([]byte, maxFrame)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.link.ReadFrame(buf)
		if err != nil {
			if errcode.Of(err) == errcode.LinkClosed {
				println("Info: bridge link closed")
				return
			}
			println("Error: bridge read:", err.Error())
			continue
		}

		frame := append([]byte(nil), buf[:n]...)
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
		reply, err := s.conn.RequestWait(reqCtx, s.conn.NewMessage(instrument.TopicHostRx, frame, false))
		cancel()
		if err != nil {
			println("Error: bridge request:", err.Error())
			continue
		}
		rb, ok := reply.Payload.([]byte)
		if !ok {
			continue
		}
		if err := s.link.WriteFrame(rb); err != nil {
			println("Error: bridge write:", err.Error())
			if errcode.Of(err) == errcode.LinkClosed {
				return
			}
		}
	}
}

func (s *Service) publishState(state string) {
	s.conn.Publish(s.conn.NewMessage(topicState, state, true))
}
