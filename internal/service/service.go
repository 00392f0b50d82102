package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"netflow-crawler/internal/cadence"
	"netflow-crawler/internal/locator"
	"netflow-crawler/internal/metrics"
	"netflow-crawler/internal/record"
	"netflow-crawler/internal/scheduler"
	"netflow-crawler/internal/session"
	"netflow-crawler/internal/storage"
)

var tracer = otel.Tracer("netflow-crawler/service")

var (
	// ErrCycleInProgress is returned when a cycle is requested while another runs.
	ErrCycleInProgress = errors.New("cycle already in progress")
	// ErrCycleFault wraps a panic recovered inside a cycle.
	ErrCycleFault = errors.New("cycle fault")
)

// Phase is the lifecycle stage a cycle reached.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseSessionOpen   Phase = "session_open"
	PhaseLocating      Phase = "locating"
	PhaseParsing       Phase = "parsing"
	PhasePersisting    Phase = "persisting"
	PhaseSessionClosed Phase = "session_closed"
)

// Outcome summarises one cycle. Phase is where a failed cycle stopped, or
// PhaseSessionClosed after a success.
type Outcome struct {
	Phase    Phase
	OK       bool
	Reason   error
	Record   *record.Record
	Strategy string
	Duration time.Duration
}

// RowLocator finds the target row text on a page.
type RowLocator interface {
	Locate(ctx context.Context, s session.Session, url string) (locator.Match, error)
}

// RecordBuilder turns an observation into a record.
type RecordBuilder interface {
	Build(obs record.Observation, intervalMinutes int) (record.Record, error)
}

// Options tune the orchestrator.
type Options struct {
	URL              string
	Interval         time.Duration
	FailOnCloseError bool
	// Now overrides the capture clock; tests only.
	Now func() time.Time
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Opener    session.Opener
	Locator   RowLocator
	Estimator *cadence.Estimator
	Builder   RecordBuilder
	Writer    storage.Writer
	Metrics   *metrics.Collector
}

// Service orchestrates one fetch-parse-persist cycle per trigger.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	opener    session.Opener
	locator   RowLocator
	estimator *cadence.Estimator
	builder   RecordBuilder
	writer    storage.Writer
	metrics   *metrics.Collector
	logger    zerolog.Logger

	mu sync.Mutex
}

// New constructs the crawl service.
func New(opts Options, deps Deps, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	estimator := deps.Estimator
	if estimator == nil {
		estimator = cadence.NewEstimator()
	}
	return &Service{
		opts:      opts,
		scheduler: deps.Scheduler,
		opener:    deps.Opener,
		locator:   deps.Locator,
		estimator: estimator,
		builder:   deps.Builder,
		writer:    deps.Writer,
		metrics:   deps.Metrics,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled crawl loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 执行单个调度周期。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	out := s.RunCycle(ctx)
	if errors.Is(out.Reason, ErrCycleInProgress) {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because a cycle is still running")
		return nil
	}
	return out.Reason
}

// RunCycle executes one full cycle. The session opened by the cycle is
// closed exactly once on every exit path.
func (s *Service) RunCycle(ctx context.Context) (out Outcome) {
	if !s.mu.TryLock() {
		return Outcome{Phase: PhaseIdle, Reason: ErrCycleInProgress}
	}
	defer s.mu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()

	phase := PhaseIdle
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Phase: phase, Reason: fmt.Errorf("%w: %v", ErrCycleFault, r)}
		}
		out.Duration = time.Since(start)
		s.report(out)
		span.SetAttributes(attribute.String("phase", string(out.Phase)))
		if !out.OK {
			span.RecordError(out.Reason)
			span.SetStatus(codes.Error, "cycle failed")
		}
	}()

	phase = PhaseSessionOpen
	sess, err := s.opener.Open(ctx)
	if err != nil {
		return Outcome{Phase: phase, Reason: fmt.Errorf("open session: %w", err)}
	}
	logger := s.logger.With().Str("session", sess.ID()).Logger()
	logger.Debug().Msg("session opened")

	defer func() {
		closeErr := sess.Close()
		if closeErr != nil {
			logger.Warn().Err(closeErr).Msg("failed to close session")
			if out.OK && s.opts.FailOnCloseError {
				out.OK = false
				out.Reason = fmt.Errorf("close session: %w", closeErr)
				return
			}
		}
		if out.OK {
			out.Phase = PhaseSessionClosed
		}
	}()

	phase = PhaseLocating
	match, err := s.locator.Locate(ctx, sess, s.opts.URL)
	if err != nil {
		return Outcome{Phase: phase, Reason: fmt.Errorf("locate row: %w", err)}
	}
	s.metrics.RecordStrategyHit(match.Strategy)

	obs := record.Observation{CapturedAt: s.opts.Now(), RawText: match.Text}
	s.estimator.Observe(obs.CapturedAt, obs.RawText)
	interval := s.estimator.EstimateIntervalMinutes()
	s.metrics.RecordCadence(interval)
	if s.estimator.Unchanged() {
		logger.Debug().Msg("row text unchanged since previous cycle")
	}
	if s.opts.Interval > 0 && s.estimator.Drifted(s.opts.Interval) {
		logger.Info().
			Int("estimated_minutes", interval).
			Dur("configured", s.opts.Interval).
			Msg("source refresh cadence differs from schedule")
	}

	phase = PhaseParsing
	rec, err := s.builder.Build(obs, interval)
	if err != nil {
		return Outcome{Phase: phase, Strategy: match.Strategy, Reason: fmt.Errorf("build record: %w", err)}
	}
	s.metrics.RecordFallbacks(rec.Fallbacks)

	phase = PhasePersisting
	if err := s.writer.Append(ctx, rec); err != nil {
		return Outcome{Phase: phase, Strategy: match.Strategy, Record: &rec, Reason: fmt.Errorf("persist record: %w", err)}
	}

	return Outcome{Phase: phase, OK: true, Strategy: match.Strategy, Record: &rec}
}

func (s *Service) report(out Outcome) {
	s.metrics.RecordCycle(string(out.Phase), out.OK, out.Duration)

	if out.OK {
		event := s.logger.Info().
			Str("phase", string(out.Phase)).
			Str("strategy", out.Strategy).
			Dur("duration", out.Duration)
		if out.Record != nil {
			event = event.
				Str("timestamp", out.Record.Timestamp).
				Int("values", len(out.Record.Values)).
				Bool("market_cap", out.Record.HasMarketCap())
		}
		event.Msg("row recorded")
		return
	}

	s.logger.Error().
		Err(out.Reason).
		Str("phase", string(out.Phase)).
		Dur("duration", out.Duration).
		Msg("cycle failed")
}
