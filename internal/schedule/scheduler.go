package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/barcelona-calendar/barca-ics/internal/logger"
)

// DefaultSpec runs five minutes after the daily cutoff.
const DefaultSpec = "5 9 * * *"

// Job is the work a Scheduler triggers.
type Job func(ctx context.Context)

// Scheduler runs a Job on a standard five-field cron spec.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	job      Job
}

// NewScheduler validates spec. Times in spec are read in loc.
func NewScheduler(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing cron spec %q", spec)
	}
	return &Scheduler{spec: spec, schedule: sched, loc: loc, job: job}, nil
}

// Next returns the first activation after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.loc))
}

// Run triggers the job until ctx is cancelled, then waits for a running
// job to finish. Overlapping activations are skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	log := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		start := time.Now()
		logger.Info("Scheduled refresh starting", logger.Fields{"spec": s.spec})
		s.job(ctx)
		logger.RecordTiming("schedule.job", time.Since(start))
	}))

	c.Start()
	logger.Info("Scheduler started", logger.Fields{
		"spec":     s.spec,
		"timezone": s.loc.String(),
		"next":     s.Next(time.Now()).Format(time.RFC3339),
	})

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Scheduler stopped", nil)
	return nil
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, pairs(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, pairs(keysAndValues), err)
}

func pairs(kv []interface{}) logger.Fields {
	if len(kv) == 0 {
		return nil
	}
	fields := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
