package cache

import (
	"sync"
	"time"

	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/pkg/logger"
)

// MemoryCache keeps the most recent snapshot for readers outside the poll
// loop. It is fed by a snapshot subscription.
type MemoryCache struct {
	latest   *model.Snapshot
	storedAt time.Time
	mutex    sync.RWMutex
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewMemoryCache(cacheTTL time.Duration, log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
	}
}

func (c *MemoryCache) Store(snapshot *model.Snapshot) {
	if snapshot == nil {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.latest = snapshot
	c.storedAt = c.now()
	c.log.Debug("Cache set", "records", snapshot.Len(), "source", snapshot.Source.String())
}

func (c *MemoryCache) Latest() (*model.Snapshot, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.latest, c.latest != nil
}

func (c *MemoryCache) Lookup(code string) (model.CurrencyRecord, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	record, found := c.latest.Lookup(code)
	if !found {
		c.log.Debug("Cache miss", "code", code)
	}
	return record, found
}

// IsStale reports whether no snapshot arrived within the TTL. A zero TTL
// disables staleness.
func (c *MemoryCache) IsStale() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.latest == nil {
		return true
	}
	if c.cacheTTL <= 0 {
		return false
	}
	return c.now().Sub(c.storedAt) > c.cacheTTL
}
