package ports

import (
	"context"

	"exchange-rate-watcher/internal/domain/model"
)

// RateSource fetches a complete snapshot with one of the two wire formats.
type RateSource interface {
	Fetch(ctx context.Context, strategy model.StrategyIdentity) (*model.Snapshot, error)
	Close() error
}
