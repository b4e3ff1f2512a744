// Package scheduler runs the periodic call jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"callcast/internal/metrics"
	"callcast/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job names.
const (
	JobCallControl = "call_control"
	JobCallNotify  = "call_notify"
	JobPresentCast = "present_cast"
)

// JobFunc does one pass and reports how many records it touched.
type JobFunc func(ctx context.Context) (int, error)

type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
	log     *logrus.Entry
}

// New builds a scheduler in loc. Jobs are skipped while a previous run of
// the same job is still going.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:     ctx,
		timeout: time.Minute,
		log:     logger.With("scheduler"),
	}
}

// Add registers run under name on the cron spec.
func (s *Scheduler) Add(name, spec string, run JobFunc) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		Run(ctx, name, run)
	}))
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("[Scheduler] job registered")
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run executes one job pass with logging and metrics.
func Run(ctx context.Context, name string, run JobFunc) (int, error) {
	log := logger.With("scheduler").WithField("job", name)
	start := time.Now()
	n, err := run(ctx)
	metrics.RecordJob(name, err == nil, time.Since(start))
	if err != nil {
		log.WithError(err).Error("[Scheduler] job failed")
		return n, err
	}
	if n > 0 {
		log.WithField("touched", n).Info("[Scheduler] job done")
	}
	return n, nil
}
