package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"netflow-crawler/internal/record"
)

// Header is the fixed column layout of the netflow log.
var Header = []string{"Timestamp", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "24h", "7d", "15d", "30d", "Market Cap"}

// Writer appends records to a durable store.
type Writer interface {
	Append(ctx context.Context, rec record.Record) error
}

// PersistenceError wraps a failed append.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist to %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Mirror is a secondary store fed alongside the primary one.
type Mirror struct {
	Name   string
	Writer Writer
}

// Fanout writes to Primary and then to every mirror. Only the primary decides
// the outcome; mirror failures are logged.
type Fanout struct {
	primary Writer
	mirrors []Mirror
	logger  zerolog.Logger
}

// NewFanout constructs a Fanout.
func NewFanout(primary Writer, mirrors []Mirror, logger zerolog.Logger) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger.With().Str("component", "storage").Logger()}
}

// Append implements Writer.
func (f *Fanout) Append(ctx context.Context, rec record.Record) error {
	if err := f.primary.Append(ctx, rec); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Writer.Append(ctx, rec); err != nil {
			f.logger.Error().Err(err).Str("mirror", m.Name).Str("timestamp", rec.Timestamp).Msg("mirror append failed")
		}
	}
	return nil
}

var _ Writer = (*Fanout)(nil)
