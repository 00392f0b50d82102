package locator

import (
	"context"
	"fmt"
	"time"

	"netflow-crawler/internal/session"
)

// Strategy finds the target row on a loaded page. Implementations must not
// keep state between calls.
type Strategy interface {
	Name() string
	Locate(ctx context.Context, s session.Session) (string, error)
}

// StrategyFunc adapts a plain function into a Strategy.
type StrategyFunc struct {
	Label string
	Fn    func(ctx context.Context, s session.Session) (string, error)
}

func (f StrategyFunc) Name() string { return f.Label }

func (f StrategyFunc) Locate(ctx context.Context, s session.Session) (string, error) {
	return f.Fn(ctx, s)
}

// SelectorStrategy reads the text of the first element matching Selector.
type SelectorStrategy struct {
	Label    string
	Selector session.Selector
	// Wait bounds how long the session waits for the element per attempt.
	Wait time.Duration
}

func (s SelectorStrategy) Name() string { return s.Label }

func (s SelectorStrategy) Locate(ctx context.Context, sess session.Session) (string, error) {
	return sess.FindText(ctx, s.Selector, s.Wait)
}

// DefaultStrategies returns the built-in selectors for marker in priority
// order. wait is the per-attempt element wait.
func DefaultStrategies(marker string, wait time.Duration) []Strategy {
	return []Strategy{
		SelectorStrategy{
			Label: "row",
			Wait:  wait,
			Selector: session.Selector{
				XPath: fmt.Sprintf("//tr[contains(., '%s')]", marker),
				CSS:   fmt.Sprintf(`tr:contains(%q)`, marker),
			},
		},
		SelectorStrategy{
			Label: "coin_row_div",
			Wait:  wait,
			Selector: session.Selector{
				XPath: fmt.Sprintf("//div[contains(@class, 'coin-row') and contains(., '%s')]", marker),
				CSS:   fmt.Sprintf(`div[class*="coin-row"]:contains(%q)`, marker),
			},
		},
		SelectorStrategy{
			Label: "table_cell",
			Wait:  wait,
			Selector: session.Selector{
				XPath: fmt.Sprintf("//table//tr[.//td[contains(text(), '%s')]]", marker),
				CSS:   fmt.Sprintf(`table tr:has(td:contains(%q))`, marker),
			},
		},
		SelectorStrategy{
			Label: "mui_row",
			Wait:  wait,
			Selector: session.Selector{
				XPath: fmt.Sprintf("//div[contains(@class, 'MuiTableRow-root') and contains(., '%s')]", marker),
				CSS:   fmt.Sprintf(`div[class*="MuiTableRow-root"]:contains(%q)`, marker),
			},
		},
	}
}

var (
	_ Strategy = StrategyFunc{}
	_ Strategy = SelectorStrategy{}
)
