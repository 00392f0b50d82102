package service

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"netflow-crawler/internal/locator"
	"netflow-crawler/internal/metrics"
	"netflow-crawler/internal/record"
	"netflow-crawler/internal/session"
	"netflow-crawler/internal/session/sessiontest"
	"netflow-crawler/internal/storage"
)

const rowXPath = "//tr[contains(., 'BTC')]"

var capturedAt = time.Date(2025, 3, 14, 9, 47, 31, 0, time.UTC)

func rowLocator() *locator.Locator {
	strategy := locator.StrategyFunc{
		Label: "row",
		Fn: func(ctx context.Context, s session.Session) (string, error) {
			return s.FindText(ctx, session.Selector{XPath: rowXPath}, 0)
		},
	}
	return locator.New(locator.Options{Marker: "BTC", Retries: 1}, []locator.Strategy{strategy}, zerolog.Nop())
}

func openerFor(text string) *sessiontest.Opener {
	return &sessiontest.Opener{NewSession: func() *sessiontest.Session {
		if text == "" {
			return sessiontest.New(nil)
		}
		return sessiontest.New(map[string]string{rowXPath: text})
	}}
}

type fixture struct {
	opener  *sessiontest.Opener
	builder RecordBuilder
	writer  storage.Writer
	opts    Options
}

func (f fixture) service() *Service {
	if f.builder == nil {
		f.builder = record.NewBuilder(record.Options{}, zerolog.Nop())
	}
	if f.opts.Now == nil {
		f.opts.Now = func() time.Time { return capturedAt }
	}
	return New(f.opts, Deps{
		Opener:  f.opener,
		Locator: rowLocator(),
		Builder: f.builder,
		Writer:  f.writer,
		Metrics: metrics.NewCollector("test"),
	}, zerolog.Nop())
}

type writerFunc func(ctx context.Context, rec record.Record) error

func (f writerFunc) Append(ctx context.Context, rec record.Record) error { return f(ctx, rec) }

type builderFunc func(obs record.Observation, interval int) (record.Record, error)

func (f builderFunc) Build(obs record.Observation, interval int) (record.Record, error) {
	return f(obs, interval)
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunCycleWritesRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btc_spot_netflow.csv")
	f := fixture{
		opener: openerFor("1 BTC Bitcoin -$1.2B $500M $N/A Market Cap $2.1T"),
		writer: storage.NewCSVStore(path),
	}

	out := f.service().RunCycle(context.Background())
	require.True(t, out.OK, "reason: %v", out.Reason)
	require.Equal(t, PhaseSessionClosed, out.Phase)
	require.Equal(t, "row", out.Strategy)
	require.NotNil(t, out.Record)
	require.Equal(t, 1, out.Record.Fallbacks)

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, storage.Header, rows[0])
	require.Equal(t, []string{"14 Mar 2025, 09:47", "-1200000000.0", "500000000.0", "$N/A", "$2.1T"}, rows[1])

	require.Len(t, f.opener.Opened, 1)
	require.Equal(t, 1, f.opener.Opened[0].Closes)
}

func TestRunCycleFallsBackToSecondStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btc_spot_netflow.csv")
	opener := openerFor("1 BTC Bitcoin -$1.2B $500M Market Cap $2.1T")

	brokenCalls := 0
	broken := locator.StrategyFunc{
		Label: "broken",
		Fn: func(context.Context, session.Session) (string, error) {
			brokenCalls++
			return "", session.ErrNoMatch
		},
	}
	working := locator.StrategyFunc{
		Label: "row",
		Fn: func(ctx context.Context, s session.Session) (string, error) {
			return s.FindText(ctx, session.Selector{XPath: rowXPath}, 0)
		},
	}
	loc := locator.New(locator.Options{
		Marker:     "BTC",
		Retries:    3,
		BackoffMin: time.Millisecond,
		BackoffMax: 2 * time.Millisecond,
	}, []locator.Strategy{broken, working}, zerolog.Nop())

	svc := New(Options{Now: func() time.Time { return capturedAt }}, Deps{
		Opener:  opener,
		Locator: loc,
		Builder: record.NewBuilder(record.Options{}, zerolog.Nop()),
		Writer:  storage.NewCSVStore(path),
	}, zerolog.Nop())

	out := svc.RunCycle(context.Background())
	require.True(t, out.OK, "reason: %v", out.Reason)
	require.Equal(t, "row", out.Strategy)
	require.Equal(t, 3, brokenCalls)

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	require.Equal(t, storage.Header, rows[0])
	require.Equal(t, []string{"14 Mar 2025, 09:47", "-1200000000.0", "500000000.0", "$2.1T"}, rows[1])

	require.Len(t, opener.Opened, 1)
	require.Equal(t, 1, opener.Opened[0].Closes)
}

func TestRunCycleClosesSessionOnEveryFailure(t *testing.T) {
	persistErr := errors.New("disk full")

	cases := []struct {
		name    string
		text    string
		builder RecordBuilder
		writer  storage.Writer
		phase   Phase
		target  error
	}{
		{
			name:   "locate",
			text:   "",
			writer: writerFunc(func(context.Context, record.Record) error { return nil }),
			phase:  PhaseLocating,
			target: locator.ErrElementNotFound,
		},
		{
			name:   "parse",
			text:   "1 BTC Bitcoin no amounts",
			writer: writerFunc(func(context.Context, record.Record) error { return nil }),
			phase:  PhaseParsing,
			target: record.ErrNoValidValues,
		},
		{
			name:   "persist",
			text:   "BTC $1B",
			writer: writerFunc(func(context.Context, record.Record) error { return persistErr }),
			phase:  PhasePersisting,
			target: persistErr,
		},
		{
			name: "panic",
			text: "BTC $1B",
			builder: builderFunc(func(record.Observation, int) (record.Record, error) {
				panic("unexpected page layout")
			}),
			writer: writerFunc(func(context.Context, record.Record) error { return nil }),
			phase:  PhaseParsing,
			target: ErrCycleFault,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fixture{opener: openerFor(tc.text), builder: tc.builder, writer: tc.writer}

			out := f.service().RunCycle(context.Background())
			require.False(t, out.OK)
			require.Equal(t, tc.phase, out.Phase)
			require.ErrorIs(t, out.Reason, tc.target)

			require.Len(t, f.opener.Opened, 1)
			require.Equal(t, 1, f.opener.Opened[0].Closes)
		})
	}
}

func TestRunCycleOpenFailure(t *testing.T) {
	f := fixture{
		opener: &sessiontest.Opener{OpenErr: sessiontest.ErrOpen},
		writer: writerFunc(func(context.Context, record.Record) error {
			t.Fatal("writer must not be called")
			return nil
		}),
	}

	out := f.service().RunCycle(context.Background())
	require.False(t, out.OK)
	require.Equal(t, PhaseSessionOpen, out.Phase)

	var sessErr *session.SessionError
	require.ErrorAs(t, out.Reason, &sessErr)
	require.Empty(t, f.opener.Opened)
}

func TestRunCycleCloseError(t *testing.T) {
	closeErr := errors.New("browser already gone")
	newOpener := func() *sessiontest.Opener {
		return &sessiontest.Opener{NewSession: func() *sessiontest.Session {
			s := sessiontest.New(map[string]string{rowXPath: "BTC $1B"})
			s.CloseFn = func() error { return closeErr }
			return s
		}}
	}
	ok := writerFunc(func(context.Context, record.Record) error { return nil })

	lenient := fixture{opener: newOpener(), writer: ok}
	out := lenient.service().RunCycle(context.Background())
	require.True(t, out.OK)
	require.Equal(t, PhaseSessionClosed, out.Phase)

	strict := fixture{opener: newOpener(), writer: ok, opts: Options{FailOnCloseError: true}}
	out = strict.service().RunCycle(context.Background())
	require.False(t, out.OK)
	require.ErrorIs(t, out.Reason, closeErr)
	require.Equal(t, 1, strict.opener.Opened[0].Closes)
}

func TestRunCycleRejectsOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := fixture{
		opener: openerFor("BTC $1B"),
		writer: writerFunc(func(context.Context, record.Record) error {
			close(entered)
			<-release
			return nil
		}),
	}
	svc := f.service()

	done := make(chan Outcome, 1)
	go func() { done <- svc.RunCycle(context.Background()) }()
	<-entered

	second := svc.RunCycle(context.Background())
	require.ErrorIs(t, second.Reason, ErrCycleInProgress)
	require.Equal(t, PhaseIdle, second.Phase)
	require.NoError(t, svc.ProcessBucket(context.Background(), capturedAt))

	close(release)
	first := <-done
	require.True(t, first.OK)
	require.Len(t, f.opener.Opened, 1)
}

func TestRunCycleFeedsEstimator(t *testing.T) {
	now := capturedAt
	var intervals []int
	f := fixture{
		opener: openerFor("BTC $1B"),
		builder: builderFunc(func(obs record.Observation, interval int) (record.Record, error) {
			intervals = append(intervals, interval)
			return record.Record{Timestamp: "t", Values: []string{"1.0"}}, nil
		}),
		writer: writerFunc(func(context.Context, record.Record) error { return nil }),
		opts:   Options{Now: func() time.Time { return now }},
	}
	svc := f.service()

	for i := 0; i < 3; i++ {
		require.True(t, svc.RunCycle(context.Background()).OK)
		now = now.Add(15 * time.Minute)
	}
	require.Equal(t, []int{5, 5, 15}, intervals)
}
