package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"netflow-crawler/internal/session"
)

var tracer = otel.Tracer("netflow-crawler/locator")

// ErrElementNotFound means no strategy located the target row within its retry budget.
var ErrElementNotFound = errors.New("element not found")

// Options tune page location.
type Options struct {
	Marker      string
	SettleDelay time.Duration
	Retries     int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// Match is a located row.
type Match struct {
	Text     string
	Strategy string
	Attempts int
}

// Locator loads a page and runs its strategies in strict priority order.
type Locator struct {
	opts       Options
	strategies []Strategy
	logger     zerolog.Logger
}

// New constructs a Locator. The strategies are tried in the given order.
func New(opts Options, strategies []Strategy, logger zerolog.Logger) *Locator {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = opts.BackoffMin
	}
	return &Locator{
		opts:       opts,
		strategies: strategies,
		logger:     logger.With().Str("component", "locator").Logger(),
	}
}

// Locate loads url in s and returns the text of the first row any strategy finds.
func (l *Locator) Locate(ctx context.Context, s session.Session, url string) (Match, error) {
	ctx, span := tracer.Start(ctx, "Locate")
	defer span.End()

	if err := s.Load(ctx, url); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return Match{}, fmt.Errorf("load page: %w", err)
	}
	l.logger.Info().Str("session", s.ID()).Str("url", url).Msg("page loaded, waiting for render")

	if err := sleep(ctx, l.opts.SettleDelay); err != nil {
		return Match{}, err
	}

	for _, strategy := range l.strategies {
		match, err := l.try(ctx, s, strategy)
		if err == nil {
			span.SetAttributes(attribute.String("strategy", match.Strategy))
			return match, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Match{}, ctxErr
		}
		l.logger.Warn().Err(err).Str("strategy", strategy.Name()).Msg("strategy exhausted, trying next")
	}

	span.SetStatus(codes.Error, "no strategy matched")
	return Match{}, fmt.Errorf("locate %q: %w", l.opts.Marker, ErrElementNotFound)
}

func (l *Locator) try(ctx context.Context, s session.Session, strategy Strategy) (Match, error) {
	ctx, span := tracer.Start(ctx, "Strategy")
	span.SetAttributes(attribute.String("strategy", strategy.Name()))
	defer span.End()

	var (
		text     string
		attempts int
	)
	op := func() error {
		attempts++
		found, err := strategy.Locate(ctx, s)
		if err != nil {
			if !errors.Is(err, session.ErrNoMatch) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = found
		return nil
	}
	notify := func(err error, wait time.Duration) {
		l.logger.Warn().
			Str("strategy", strategy.Name()).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("attempt failed, retrying")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&jitterBackOff{min: l.opts.BackoffMin, max: l.opts.BackoffMax}, uint64(l.opts.Retries-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "strategy failed")
		return Match{}, err
	}

	return Match{Text: text, Strategy: strategy.Name(), Attempts: attempts}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
