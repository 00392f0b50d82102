package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"netflow-crawler/internal/cadence"
	"netflow-crawler/internal/record"
	"netflow-crawler/internal/storage"
)

// ParseOptions configure the parse command.
type ParseOptions struct {
	Text       string
	CapturedAt time.Time
	Header     bool
}

// Parse 将原始行文本解析为 CSV 行并写入 w，不触碰任何存储。
func (a *App) Parse(w io.Writer, opts ParseOptions) error {
	if opts.CapturedAt.IsZero() {
		opts.CapturedAt = time.Now()
	}

	rec, err := a.newBuilder().Build(record.Observation{
		CapturedAt: opts.CapturedAt,
		RawText:    opts.Text,
	}, cadence.DefaultIntervalMinutes)
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}

	cw := csv.NewWriter(w)
	if opts.Header {
		if err := cw.Write(storage.Header); err != nil {
			return err
		}
	}
	if err := cw.Write(rec.Row()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
