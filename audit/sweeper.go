// Package audit provides a scheduled integrity sweep over the entitlement
// ledger. It only reads and logs; the ledger's atomic stores are what keep
// the invariants, the sweeper is how a violation would ever be noticed.
package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/loopkit/ledger"
)

// Summary aggregates one sweep.
type Summary struct {
	Records    int
	Violations int
	Granted    int64
	Used       int64
}

// Sweeper walks every ledger record on a cron schedule and logs records
// whose used count exceeds their grant, plus aggregate totals for support.
type Sweeper struct {
	store   ledger.Scanner
	log     logrus.FieldLogger
	timeout time.Duration
	cron    *cron.Cron
}

// New creates a Sweeper over a scannable store. A nil logger defaults to
// logrus.StandardLogger.
func New(store ledger.Scanner, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{store: store, log: log, timeout: time.Minute}
}

// Start schedules sweeps with a cron spec such as "@hourly". Call Stop to
// shut the scheduler down.
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the scheduler. Safe to call without Start.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		s.log.WithError(err).Error("ledger audit sweep failed")
	}
}

// Run performs one sweep immediately and returns its summary.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.store.Scan(ctx, func(rec ledger.Record) error {
		sum.Records++
		sum.Granted += rec.Granted
		sum.Used += rec.Used
		if rec.Used > rec.Granted {
			sum.Violations++
			s.log.WithFields(logrus.Fields{
				"identity": rec.Identity,
				"granted":  rec.Granted,
				"used":     rec.Used,
			}).Error("ledger invariant violated: used exceeds granted")
		}
		return nil
	})
	if err != nil {
		return sum, err
	}
	s.log.WithFields(logrus.Fields{
		"records":    sum.Records,
		"violations": sum.Violations,
		"granted":    sum.Granted,
		"used":       sum.Used,
	}).Info("ledger audit sweep complete")
	return sum, nil
}
