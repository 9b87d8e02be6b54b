package port

import (
	"context"

	"mdcollector/internal/domain"
)

// LatestCache keeps the most recent ticker per symbol for external
// monitoring. Implementations are best-effort; errors are logged by the
// caller and never interrupt persistence.
type LatestCache interface {
	SetLatestTicker(ctx context.Context, t domain.Ticker) error
}
