// Package scheduler runs the periodic usage reset.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// UsageResetter clears consumed calls of every account.
type UsageResetter interface {
	ResetAllUsage() error
}

type Scheduler struct {
	resetter UsageResetter
	spec     string
	logger   *slog.Logger
	c        *cron.Cron
}

// NewScheduler returns a scheduler that resets usage on the cron spec. An
// empty spec disables the job.
func NewScheduler(resetter UsageResetter, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		resetter: resetter,
		spec:     spec,
		logger:   logger.With("component", "scheduler"),
		c:        cron.New(),
	}
}

// Enabled reports whether a reset spec is configured.
func (s *Scheduler) Enabled() bool {
	return s.spec != ""
}

func (s *Scheduler) Start() error {
	if !s.Enabled() {
		s.logger.Info("Usage reset job disabled")
		return nil
	}
	if _, err := s.c.AddFunc(s.spec, s.resetUsage); err != nil {
		return fmt.Errorf("failed to schedule usage reset %q: %w", s.spec, err)
	}
	s.c.Start()
	s.logger.Info("Usage reset job scheduled", "spec", s.spec)
	return nil
}

func (s *Scheduler) resetUsage() {
	s.logger.Info("Running usage reset job")
	if err := s.resetter.ResetAllUsage(); err != nil {
		s.logger.Error("Error resetting usage", "error", err)
	}
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}
