package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"exchange-rate-watcher/pkg/logger"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// TransportOutcome is the result of one GET against the rate source.
// Err is set only when the source was unreachable or the body could not be
// read; a body that arrived with a non-2xx status or an unexpected content
// type is Delivered with FlaggedAsError set.
type TransportOutcome struct {
	Body           []byte
	Status         int
	ContentType    string
	FlaggedAsError bool
	Err            error
}

func (o TransportOutcome) Delivered() bool {
	return o.Err == nil
}

func (o TransportOutcome) flagReason() string {
	if o.Status < 200 || o.Status > 299 {
		return fmt.Sprintf("status %d", o.Status)
	}
	return fmt.Sprintf("content type %q", o.ContentType)
}

// Transport issues a GET and reports whether a body was delivered.
// accepted lists content type fragments the caller considers a match.
type Transport interface {
	Get(ctx context.Context, url string, accepted ...string) TransportOutcome
}

type HTTPTransport struct {
	httpClient *http.Client
	log        *logger.Logger
}

func NewHTTPTransport(timeout time.Duration, log *logger.Logger) *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, accepted ...string) TransportOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TransportOutcome{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return TransportOutcome{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return TransportOutcome{Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	outcome := TransportOutcome{
		Body:        body,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	outcome.FlaggedAsError = resp.StatusCode < 200 || resp.StatusCode > 299 || !contentTypeMatches(outcome.ContentType, accepted)

	if outcome.FlaggedAsError {
		t.log.Debug("Response flagged as error", "url", url, "reason", outcome.flagReason())
	}

	return outcome
}

func (t *HTTPTransport) CloseIdleConnections() {
	t.httpClient.CloseIdleConnections()
}

// contentTypeMatches treats a missing header or an empty accept list as a match.
func contentTypeMatches(contentType string, accepted []string) bool {
	if contentType == "" || len(accepted) == 0 {
		return true
	}
	lower := strings.ToLower(contentType)
	for _, fragment := range accepted {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
