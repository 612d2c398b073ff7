package billing

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/contractguard/contractguard/pkg/observability"
)

// DefaultExpirySchedule runs the expiry sweep hourly
const DefaultExpirySchedule = "@every 1h"

// Expirer marks lapsed subscriptions as expired
type Expirer interface {
	ExpireSubscriptions(ctx context.Context) (int64, error)
}

// Scheduler runs the subscription expiry sweep on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	expirer Expirer
	log     logrus.FieldLogger
}

// NewScheduler creates a scheduler running expirer on spec. An empty spec
// uses DefaultExpirySchedule.
func NewScheduler(expirer Expirer, spec string, log logrus.FieldLogger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultExpirySchedule
	}
	s := &Scheduler{
		cron:    cron.New(),
		expirer: expirer,
		log:     log.WithField("component", "billing-scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce performs a single expiry sweep
func (s *Scheduler) RunOnce() {
	defer observability.RecoverPanic(s.log, "subscription expiry")

	n, err := s.expirer.ExpireSubscriptions(context.Background())
	if err != nil {
		s.log.WithError(err).Error("subscription expiry sweep failed")
		return
	}
	s.log.WithField("expired", n).Debug("subscription expiry sweep completed")
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
