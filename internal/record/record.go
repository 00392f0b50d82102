package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"netflow-crawler/internal/cadence"
	"netflow-crawler/internal/normalize"
)

// DefaultMarketMarker precedes the market cap amount in the row text ("Market Cap $2.1T").
const DefaultMarketMarker = "Market"

// ErrNoValidValues is returned when a row carries no dollar amounts at all.
var ErrNoValidValues = errors.New("no valid netflow values")

// Observation is the raw text of the located row and the time it was captured.
type Observation struct {
	CapturedAt time.Time
	RawText    string
}

// Record is one normalised log row.
type Record struct {
	Timestamp  string
	CapturedAt time.Time
	Values     []string
	MarketCap  string
	// Fallbacks counts values kept as raw tokens.
	Fallbacks int
}

// HasMarketCap reports whether a market cap was captured.
func (r Record) HasMarketCap() bool { return r.MarketCap != "" }

// Row flattens the record into CSV column order.
func (r Record) Row() []string {
	row := make([]string, 0, len(r.Values)+2)
	row = append(row, r.Timestamp)
	row = append(row, r.Values...)
	if r.HasMarketCap() {
		row = append(row, r.MarketCap)
	}
	return row
}

// Options tune record assembly.
type Options struct {
	MarketMarker string
	// AlignTimestamps floors the capture time to the estimated source interval.
	AlignTimestamps bool
}

// Builder turns located row text into a Record.
type Builder struct {
	opts   Options
	logger zerolog.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(opts Options, logger zerolog.Logger) *Builder {
	if opts.MarketMarker == "" {
		opts.MarketMarker = DefaultMarketMarker
	}
	return &Builder{opts: opts, logger: logger.With().Str("component", "record_builder").Logger()}
}

// Build parses obs. intervalMinutes is only used when timestamp alignment is on.
func (b *Builder) Build(obs Observation, intervalMinutes int) (Record, error) {
	tokens := strings.Fields(obs.RawText)
	capIdx := b.marketCapIndex(tokens)

	values := make([]string, 0, len(tokens))
	fallbacks := 0
	for i, tok := range tokens {
		if i == capIdx || !normalize.IsCurrencyToken(tok) {
			continue
		}

		value, err := normalize.Normalize(normalize.StripCurrency(tok))
		if err != nil {
			var convErr *normalize.ConversionError
			if !errors.As(err, &convErr) {
				return Record{}, fmt.Errorf("normalize %q: %w", tok, err)
			}
			b.logger.Warn().Err(err).Str("token", tok).Msg("keeping raw token")
			value = tok
			fallbacks++
		}
		values = append(values, value)
	}

	if len(values) == 0 {
		return Record{}, ErrNoValidValues
	}

	captured := obs.CapturedAt
	if b.opts.AlignTimestamps {
		captured = cadence.AlignTimestamp(captured, intervalMinutes)
	}

	rec := Record{
		Timestamp:  cadence.FormatTimestamp(captured),
		CapturedAt: obs.CapturedAt,
		Values:     values,
		Fallbacks:  fallbacks,
	}
	if capIdx >= 0 {
		rec.MarketCap = tokens[capIdx]
	}
	return rec, nil
}

// marketCapIndex returns the index of the market cap amount, or -1.
func (b *Builder) marketCapIndex(tokens []string) int {
	for i, tok := range tokens {
		if tok != b.opts.MarketMarker {
			continue
		}
		if i+2 < len(tokens) && strings.HasPrefix(tokens[i+2], "$") {
			return i + 2
		}
		return -1
	}
	return -1
}
