// Package heartbeat publishes a retained uptime beat so a connected host or
// simulator observer can tell a live firmware image from a hung one.
package heartbeat

import (
	"context"
	"time"

	"potentiostat-go/bus"
)

var topicBeat = bus.Topic{"heartbeat"}

// Beat is the retained payload: monotonic beat count and uptime.
type Beat struct {
	Seq    uint32
	Uptime time.Duration
}

type Config struct {
	Interval time.Duration
}

func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
}

type Service struct {
	cfg Config
}

func New(cfg Config) *Service {
	cfg.setDefaults()
	return &Service{cfg: cfg}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	start := time.Now()
	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(topicBeat, Beat{Seq: seq, Uptime: time.Since(start)}, true))
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
