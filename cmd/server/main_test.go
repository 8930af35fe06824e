package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-rate-watcher/internal/config"
	"exchange-rate-watcher/internal/domain/model"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<ValCurs Date="10.05.2024" name="Foreign Currency Market">
<Valute ID="R01235"><NumCode>840</NumCode><CharCode>USD</CharCode><Nominal>1</Nominal><Name>US Dollar</Name><Value>91,7697</Value></Valute>
</ValCurs>`

func newFeed(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/daily.xml":
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(feedXML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchCommand(t *testing.T) {
	feed := newFeed(t)

	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"fetch", "--strategy", "xml", "--xml-url", feed.URL + "/daily.xml", "--log-level", "error"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), `"USD"`)
	assert.Contains(t, out.String(), "91.7697")
}

func TestFetchCommandFailure(t *testing.T) {
	feed := newFeed(t)

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"fetch", "--strategy", "json", "--json-url", feed.URL + "/missing.js", "--log-level", "error"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrFetchFailed))
}

func TestInvalidStrategyFlag(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"fetch", "--strategy", "yaml"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}
