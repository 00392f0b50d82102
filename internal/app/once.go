package app

import (
	"context"

	"netflow-crawler/internal/service"
)

// Once runs a single crawl cycle and returns its outcome. The error is the
// cycle's failure reason, if any.
func (a *App) Once(ctx context.Context) (service.Outcome, error) {
	writer, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.Outcome{}, err
	}
	defer closeStore()

	out := a.newService(nil, writer).RunCycle(ctx)
	return out, out.Reason
}
