package repository

import (
	"context"
	"fmt"
	"time"

	"exchange-rate-watcher/internal/adapter/parser"
	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/pkg/logger"
)

var (
	jsonContentTypes = []string{"json", "javascript"}
	xmlContentTypes  = []string{"xml"}
)

// Strategies dispatches a fetch to the JSON or XML endpoint of the daily rate
// feed according to the requested strategy identity.
type Strategies struct {
	jsonURL   string
	xmlURL    string
	transport Transport
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewStrategies(jsonURL, xmlURL string, transport Transport, m *metrics.Metrics, log *logger.Logger) *Strategies {
	return &Strategies{
		jsonURL:   jsonURL,
		xmlURL:    xmlURL,
		transport: transport,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Fetch retrieves a fresh snapshot with the given strategy. Every error wraps
// model.ErrFetchFailed.
func (s *Strategies) Fetch(ctx context.Context, strategy model.StrategyIdentity) (*model.Snapshot, error) {
	var (
		snapshot *model.Snapshot
		err      error
	)

	switch strategy {
	case model.StrategyJSON:
		snapshot, err = s.fetchJSON(ctx)
	case model.StrategyXML:
		snapshot, err = s.fetchXML(ctx)
	default:
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, model.ErrUnknownStrategy)
	}
	if err != nil {
		return nil, err
	}

	snapshot.FetchedAt = s.now().UTC()
	snapshot.Source = strategy
	return snapshot, nil
}

// Endpoint returns the URL a strategy fetches from.
func (s *Strategies) Endpoint(strategy model.StrategyIdentity) string {
	if strategy == model.StrategyXML {
		return s.xmlURL
	}
	return s.jsonURL
}

// Close releases idle connections held by the transport.
func (s *Strategies) Close() error {
	if closer, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	return nil
}

func (s *Strategies) fetchJSON(ctx context.Context) (*model.Snapshot, error) {
	outcome := s.transport.Get(ctx, s.jsonURL, jsonContentTypes...)
	if !outcome.Delivered() {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, outcome.Err)
	}
	if outcome.FlaggedAsError {
		return nil, fmt.Errorf("%w: JSON endpoint returned %s", model.ErrFetchFailed, outcome.flagReason())
	}

	snapshot, err := parser.ParseJSON(outcome.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, err)
	}
	return snapshot, nil
}

// fetchXML recovers bodies the transport flagged as errors as long as they
// still carry Valute elements and parse as XML.
func (s *Strategies) fetchXML(ctx context.Context) (*model.Snapshot, error) {
	outcome := s.transport.Get(ctx, s.xmlURL, xmlContentTypes...)
	if !outcome.Delivered() {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, outcome.Err)
	}
	if outcome.FlaggedAsError && !parser.ContainsValute(outcome.Body) {
		return nil, fmt.Errorf("%w: XML endpoint returned %s without rate data", model.ErrFetchFailed, outcome.flagReason())
	}

	snapshot, err := parser.ParseXML(outcome.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, err)
	}

	if outcome.FlaggedAsError {
		s.log.Debug("Recovered XML rates from flagged response",
			"reason", outcome.flagReason(),
			"records", snapshot.Len(),
		)
		s.metrics.XMLRecovered()
	}
	return snapshot, nil
}
