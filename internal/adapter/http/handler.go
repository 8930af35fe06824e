package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/internal/domain/ports"
	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/pkg/logger"
	"exchange-rate-watcher/pkg/utils"
)

const (
	EventSnapshot = "snapshot"
	EventStrategy = "strategy"
	EventFailure  = "failure"

	streamBuffer       = 16
	streamWriteTimeout = 5 * time.Second
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type RecordView struct {
	ID        string  `json:"id,omitempty"`
	NumCode   string  `json:"num_code,omitempty"`
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	Nominal   int     `json:"nominal"`
	Value     float64 `json:"value"`
	Previous  float64 `json:"previous"`
	UnitValue float64 `json:"unit_value"`
	Change    float64 `json:"change"`
}

type SnapshotView struct {
	Date      string                `json:"date,omitempty"`
	FetchedAt time.Time             `json:"fetched_at"`
	Source    string                `json:"source"`
	Stale     bool                  `json:"stale"`
	Count     int                   `json:"count"`
	Rates     map[string]RecordView `json:"rates"`
}

type StrategyView struct {
	Active string `json:"active"`
	State  string `json:"state"`
}

type FailureView struct {
	Strategy string    `json:"strategy"`
	Tick     int64     `json:"tick"`
	Forced   bool      `json:"forced"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// Event is one message on the stream endpoint.
type Event struct {
	Type     string        `json:"type"`
	Snapshot *SnapshotView `json:"snapshot,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Failure  *FailureView  `json:"failure,omitempty"`
}

type Handler struct {
	watcher ports.RatesWatcher
	cache   ports.SnapshotCache
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(watcher ports.RatesWatcher, cache ports.SnapshotCache, log *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		watcher: watcher,
		cache:   cache,
		log:     log,
		metrics: metrics,
	}
}

func (h *Handler) GetRatesHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.cache.Latest()
	if !ok {
		h.sendErrorResponse(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return
	}

	h.sendSuccessResponse(w, newSnapshotView(snapshot, h.cache.IsStale()))
}

func (h *Handler) GetRateHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing currency code")
		return
	}

	if _, ok := h.cache.Latest(); !ok {
		h.sendErrorResponse(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return
	}

	record, found := h.cache.Lookup(code)
	if !found {
		h.sendErrorResponse(w, http.StatusNotFound, "currency not found: "+code)
		return
	}

	h.sendSuccessResponse(w, newRecordView(record))
}

func (h *Handler) GetStrategyHandler(w http.ResponseWriter, r *http.Request) {
	h.sendSuccessResponse(w, StrategyView{
		Active: h.watcher.ActiveStrategy().String(),
		State:  h.watcher.State(),
	})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// StreamHandler upgrades to a WebSocket and forwards poller events until the
// client goes away. Events are dropped for clients that cannot keep up.
func (h *Handler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("Failed to accept stream connection", "error", err)
		return
	}
	defer conn.CloseNow()

	clientID := uuid.NewString()
	h.metrics.StreamClientConnected()
	defer h.metrics.StreamClientDisconnected()
	h.log.Info("Stream client connected", "client_id", clientID, "remote_addr", r.RemoteAddr)

	events := make(chan Event, streamBuffer)
	enqueue := func(event Event) {
		select {
		case events <- event:
		default:
			h.log.Warn("Stream client too slow, dropping event", "client_id", clientID, "type", event.Type)
		}
	}

	subscriptions := []ports.Subscription{
		h.watcher.SubscribeSnapshots(func(snapshot *model.Snapshot) {
			view := newSnapshotView(snapshot, false)
			enqueue(Event{Type: EventSnapshot, Snapshot: &view})
		}),
		h.watcher.SubscribeStrategy(func(strategy model.StrategyIdentity) {
			enqueue(Event{Type: EventStrategy, Strategy: strategy.String()})
		}),
		h.watcher.SubscribeFailures(func(failure model.FetchFailure) {
			enqueue(Event{Type: EventFailure, Failure: newFailureView(failure)})
		}),
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
		h.log.Info("Stream client disconnected", "client_id", clientID)
	}()

	ctx := conn.CloseRead(r.Context())

	if snapshot, ok := h.cache.Latest(); ok {
		view := newSnapshotView(snapshot, h.cache.IsStale())
		if err := h.writeEvent(ctx, conn, Event{Type: EventSnapshot, Snapshot: &view}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-events:
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.log.Debug("Stream write failed", "client_id", clientID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}

func newRecordView(record model.CurrencyRecord) RecordView {
	return RecordView{
		ID:        record.ID,
		NumCode:   record.NumericCode,
		Code:      record.Code,
		Name:      record.Name,
		Nominal:   record.UnitCount,
		Value:     record.RateValue,
		Previous:  record.PreviousRateValue,
		UnitValue: record.UnitRate(),
		Change:    record.Change(),
	}
}

func newSnapshotView(snapshot *model.Snapshot, stale bool) SnapshotView {
	view := SnapshotView{
		FetchedAt: snapshot.FetchedAt,
		Source:    snapshot.Source.String(),
		Stale:     stale,
		Count:     snapshot.Len(),
		Rates:     make(map[string]RecordView, snapshot.Len()),
	}
	if !snapshot.PublishedAt.IsZero() {
		view.Date = utils.FormatDate(snapshot.PublishedAt)
	}
	for code, record := range snapshot.Records {
		view.Rates[code] = newRecordView(record)
	}
	return view
}

func newFailureView(failure model.FetchFailure) *FailureView {
	return &FailureView{
		Strategy: failure.Strategy.String(),
		Tick:     failure.Tick,
		Forced:   failure.Forced,
		Error:    failure.Error(),
		At:       failure.At,
	}
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode error response", "error", err)
	}
}
