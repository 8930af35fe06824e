package model

import (
	"sort"
	"time"
)

// Snapshot is the complete record set produced by one successful fetch.
// A Snapshot is never modified after it has been published.
type Snapshot struct {
	FetchedAt   time.Time                 `json:"fetched_at"`
	PublishedAt time.Time                 `json:"published_at,omitempty"`
	Source      StrategyIdentity          `json:"source"`
	Records     map[string]CurrencyRecord `json:"records"`
}

func NewSnapshot(fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		FetchedAt: fetchedAt,
		Records:   make(map[string]CurrencyRecord),
	}
}

// Put stores the record under its code, replacing an earlier record with the
// same code. Only producers call Put, before the snapshot is published.
func (s *Snapshot) Put(record CurrencyRecord) {
	s.Records[record.Code] = record
}

func (s *Snapshot) Lookup(code string) (CurrencyRecord, bool) {
	if s == nil {
		return CurrencyRecord{}, false
	}
	record, ok := s.Records[code]
	return record, ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Codes returns the currency codes in lexical order.
func (s *Snapshot) Codes() []string {
	if s == nil {
		return nil
	}
	codes := make([]string, 0, len(s.Records))
	for code := range s.Records {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// FetchFailure describes one failed fetch as seen by the poller.
type FetchFailure struct {
	Strategy StrategyIdentity
	Tick     int64
	Forced   bool
	Err      error
	At       time.Time
}

func (f FetchFailure) Error() string {
	if f.Err == nil {
		return "fetch failed"
	}
	return f.Err.Error()
}
