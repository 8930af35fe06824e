package ports

import (
	"exchange-rate-watcher/internal/domain/model"
)

type SnapshotCache interface {
	Store(snapshot *model.Snapshot)
	Latest() (*model.Snapshot, bool)
	Lookup(code string) (model.CurrencyRecord, bool)
	IsStale() bool
}
