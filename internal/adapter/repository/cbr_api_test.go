package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-rate-watcher/internal/domain/model"
	"exchange-rate-watcher/internal/metrics"
	"exchange-rate-watcher/pkg/logger"
)

const (
	eurJSON     = `{"Valute": {"EUR": {"ID":"1","NumCode":"978","CharCode":"EUR","Nominal":1,"Name":"Euro","Value":90.5,"Previous":0}}}`
	degradedXML = `<ValCurs><Valute ID="R01"><CharCode>USD</CharCode><Nominal>1</Nominal><Name>US Dollar</Name><Value>89,7</Value></Valute></ValCurs>`
)

type stubResponse struct {
	status      int
	contentType string
	body        string
}

func newFeedServer(t *testing.T, jsonResp, xmlResp stubResponse) *httptest.Server {
	t.Helper()

	write := func(w http.ResponseWriter, resp stubResponse) {
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/daily_json.js", func(w http.ResponseWriter, r *http.Request) { write(w, jsonResp) })
	mux.HandleFunc("/daily_utf8.xml", func(w http.ResponseWriter, r *http.Request) { write(w, xmlResp) })

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestStrategies(server *httptest.Server, m *metrics.Metrics) *Strategies {
	log := logger.Discard()
	transport := NewHTTPTransport(2*time.Second, log)
	s := NewStrategies(server.URL+"/daily_json.js", server.URL+"/daily_utf8.xml", transport, m, log)
	s.now = func() time.Time { return time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestStrategies_FetchJSON(t *testing.T) {
	server := newFeedServer(t,
		stubResponse{status: http.StatusOK, contentType: "application/javascript; charset=utf-8", body: eurJSON},
		stubResponse{status: http.StatusOK},
	)
	strategies := newTestStrategies(server, nil)

	snapshot, err := strategies.Fetch(context.Background(), model.StrategyJSON)
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.Len())

	eur, ok := snapshot.Lookup("EUR")
	require.True(t, ok)
	assert.Equal(t, 90.5, eur.RateValue)
	assert.Equal(t, model.StrategyJSON, snapshot.Source)
	assert.Equal(t, 2024, snapshot.FetchedAt.Year())
}

func TestStrategies_FetchJSONFailures(t *testing.T) {
	testCases := []struct {
		name     string
		response stubResponse
		isParse  bool
	}{
		{name: "server error", response: stubResponse{status: http.StatusBadGateway, contentType: "application/json", body: eurJSON}},
		{name: "wrong content type", response: stubResponse{status: http.StatusOK, contentType: "text/html", body: "<html></html>"}},
		{name: "not an object", response: stubResponse{status: http.StatusOK, contentType: "application/json", body: `[]`}, isParse: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newFeedServer(t, tc.response, stubResponse{status: http.StatusOK})
			strategies := newTestStrategies(server, nil)

			snapshot, err := strategies.Fetch(context.Background(), model.StrategyJSON)
			require.Error(t, err)
			assert.Nil(t, snapshot)
			assert.True(t, errors.Is(err, model.ErrFetchFailed))
			assert.Equal(t, tc.isParse, errors.Is(err, model.ErrMalformedPayload))
		})
	}
}

func TestStrategies_FetchXML(t *testing.T) {
	testCases := []struct {
		name      string
		response  stubResponse
		recovered float64
	}{
		{
			name:     "clean response",
			response: stubResponse{status: http.StatusOK, contentType: "application/xml; charset=utf-8", body: degradedXML},
		},
		{
			name:      "error status with rate body",
			response:  stubResponse{status: http.StatusInternalServerError, contentType: "text/plain", body: degradedXML},
			recovered: 1,
		},
		{
			name:      "ok status with unexpected content type",
			response:  stubResponse{status: http.StatusOK, contentType: "text/plain", body: degradedXML},
			recovered: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewMetrics(prometheus.NewRegistry())
			server := newFeedServer(t, stubResponse{status: http.StatusOK}, tc.response)
			strategies := newTestStrategies(server, m)

			snapshot, err := strategies.Fetch(context.Background(), model.StrategyXML)
			require.NoError(t, err)
			require.Equal(t, 1, snapshot.Len())

			usd, ok := snapshot.Lookup("USD")
			require.True(t, ok)
			assert.Equal(t, 89.7, usd.RateValue)
			assert.Equal(t, model.StrategyXML, snapshot.Source)
			assert.Equal(t, tc.recovered, testutil.ToFloat64(m.XMLRecoveredTotal))
		})
	}
}

func TestStrategies_FetchXMLFailures(t *testing.T) {
	testCases := []struct {
		name     string
		response stubResponse
	}{
		{name: "error page without rates", response: stubResponse{status: http.StatusServiceUnavailable, contentType: "text/html", body: "<html><body>down</body></html>"}},
		{name: "flagged body that is not xml", response: stubResponse{status: http.StatusInternalServerError, body: "oops <Valute"}},
		{name: "clean status but not xml", response: stubResponse{status: http.StatusOK, contentType: "application/xml", body: "not xml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := newFeedServer(t, stubResponse{status: http.StatusOK}, tc.response)
			strategies := newTestStrategies(server, nil)

			snapshot, err := strategies.Fetch(context.Background(), model.StrategyXML)
			require.Error(t, err)
			assert.Nil(t, snapshot)
			assert.True(t, errors.Is(err, model.ErrFetchFailed))
		})
	}
}

func TestStrategies_Unreachable(t *testing.T) {
	server := newFeedServer(t, stubResponse{status: http.StatusOK}, stubResponse{status: http.StatusOK})
	strategies := newTestStrategies(server, nil)
	server.Close()

	for _, strategy := range model.SupportedStrategies {
		_, err := strategies.Fetch(context.Background(), strategy)
		require.Error(t, err, strategy.String())
		assert.True(t, errors.Is(err, model.ErrFetchFailed))
	}
}

func TestStrategies_UnknownStrategy(t *testing.T) {
	strategies := NewStrategies("", "", &fakeTransport{}, nil, logger.Discard())

	_, err := strategies.Fetch(context.Background(), model.StrategyIdentity(9))
	assert.True(t, errors.Is(err, model.ErrFetchFailed))
	assert.True(t, errors.Is(err, model.ErrUnknownStrategy))
}

type fakeTransport struct {
	GetFunc func(ctx context.Context, url string, accepted ...string) TransportOutcome
	closed  bool
}

func (f *fakeTransport) Get(ctx context.Context, url string, accepted ...string) TransportOutcome {
	return f.GetFunc(ctx, url, accepted...)
}

func (f *fakeTransport) CloseIdleConnections() {
	f.closed = true
}

func TestStrategies_DispatchesByIdentity(t *testing.T) {
	var requested []string
	transport := &fakeTransport{
		GetFunc: func(ctx context.Context, url string, accepted ...string) TransportOutcome {
			requested = append(requested, url)
			if url == "xml-url" {
				return TransportOutcome{Body: []byte(degradedXML), Status: http.StatusOK}
			}
			return TransportOutcome{Body: []byte(eurJSON), Status: http.StatusOK}
		},
	}
	strategies := NewStrategies("json-url", "xml-url", transport, nil, logger.Discard())

	_, err := strategies.Fetch(context.Background(), model.StrategyXML)
	require.NoError(t, err)
	_, err = strategies.Fetch(context.Background(), model.StrategyJSON)
	require.NoError(t, err)

	assert.Equal(t, []string{"xml-url", "json-url"}, requested)
	assert.Equal(t, "xml-url", strategies.Endpoint(model.StrategyXML))
	assert.Equal(t, "json-url", strategies.Endpoint(model.StrategyJSON))

	require.NoError(t, strategies.Close())
	assert.True(t, transport.closed)
}

func TestContentTypeMatches(t *testing.T) {
	assert.True(t, contentTypeMatches("", jsonContentTypes))
	assert.True(t, contentTypeMatches("application/JSON", jsonContentTypes))
	assert.True(t, contentTypeMatches("text/xml; charset=windows-1251", xmlContentTypes))
	assert.False(t, contentTypeMatches("text/html", xmlContentTypes))
	assert.True(t, contentTypeMatches("text/html", nil))
}
