package ports

import (
	"context"

	"exchange-rate-watcher/internal/domain/model"
)

// Subscription is returned by every Subscribe call. Unsubscribe is idempotent.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// RatesWatcher is the surface the poller exposes to its collaborators.
type RatesWatcher interface {
	Start(ctx context.Context) error
	Stop()
	State() string
	ActiveStrategy() model.StrategyIdentity
	Snapshot() (*model.Snapshot, bool)

	SubscribeSnapshots(fn func(*model.Snapshot)) Subscription
	SubscribeStrategy(fn func(model.StrategyIdentity)) Subscription
	SubscribeFailures(fn func(model.FetchFailure)) Subscription
}
