package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked once per fired trigger.
type TickFunc func(ctx context.Context, bucket time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// AlignToBucket fires on wall-clock multiples of Interval (":00, :05, ...").
	AlignToBucket bool
	RunOnStart    bool
	StartupDelay  time.Duration
}

// Scheduler drives periodic execution of crawl cycles. Triggers that fire
// while a tick is still running are coalesced into a single pending run.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	pending chan time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		pending: make(chan time.Time, 1),
	}
}

// Spec returns the cron expression used for the configured interval.
func (s *Scheduler) Spec() string {
	return Spec(s.opts.Interval, s.opts.AlignToBucket)
}

// Spec builds a cron expression for interval. Aligned schedules require an
// interval of whole minutes dividing an hour; others fall back to @every.
func Spec(interval time.Duration, align bool) string {
	if align && interval%time.Minute == 0 {
		minutes := int(interval / time.Minute)
		switch {
		case minutes == 60:
			return "0 * * * *"
		case minutes > 0 && minutes < 60 && 60%minutes == 0:
			return fmt.Sprintf("*/%d * * * *", minutes)
		}
	}
	return "@every " + interval.String()
}

// Run blocks, invoking tick on every trigger until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c := cron.New(cron.WithLogger(cronLogger{logger: s.logger}), cron.WithLocation(time.UTC))
	spec := s.Spec()
	if _, err := c.AddFunc(spec, func() { s.offer(time.Now().UTC()) }); err != nil {
		return fmt.Errorf("register schedule %q: %w", spec, err)
	}

	if s.opts.RunOnStart {
		s.offer(time.Now().UTC())
	}

	c.Start()
	defer func() { <-c.Stop().Done() }()
	s.logger.Info().Str("spec", spec).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case fired := <-s.pending:
			bucket := s.bucketStart(fired)
			s.logger.Info().Time("bucket", bucket).Msg("executing scheduled tick")

			if err := tick(ctx, bucket); err != nil {
				s.logger.Error().Err(err).Time("bucket", bucket).Msg("tick execution failed")
			}
		}
	}
}

// offer queues a trigger unless one is already pending.
func (s *Scheduler) offer(t time.Time) bool {
	select {
	case s.pending <- t:
		return true
	default:
		s.logger.Warn().Time("fired", t).Msg("previous cycle still running; trigger coalesced")
		return false
	}
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
