package segments

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

// Sweepable is anything with expired entries to drop.
type Sweepable interface {
	Sweep() int
	TTL() time.Duration
}

// Sweeper periodically purges expired cache entries to bound memory.
// Each cache is swept every TTL/3.
type Sweeper struct {
	cron *cron.Cron
	log  *slog.Logger
}

func NewSweeper(log *slog.Logger) *Sweeper {
	return &Sweeper{
		cron: cron.New(),
		log:  logger.Component(log, "sweeper"),
	}
}

// Add schedules c. Caches with a TTL under three seconds are swept every second.
func (s *Sweeper) Add(name string, c Sweepable) error {
	every := c.TTL() / 3
	if every < time.Second {
		every = time.Second
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		if n := c.Sweep(); n > 0 {
			s.log.Debug("cache swept", "cache", name, "removed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep for %s: %w", name, err)
	}
	s.log.Info("cache sweep scheduled", "cache", name, "every", every.String())
	return nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
