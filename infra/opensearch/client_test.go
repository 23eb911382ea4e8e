package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mstgnz/gopos/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

// fakeOpenSearch answers every call with 200 unless an index is unknown.
type fakeOpenSearch struct {
	mu       sync.Mutex
	requests []recordedRequest
	existing map[string]bool
	search   string
}

func newFakeOpenSearch(t *testing.T) (*fakeOpenSearch, *httptest.Server) {
	f := &fakeOpenSearch{existing: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		exists := f.existing[r.URL.Path[1:]]
		search := f.search
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodHead && !exists:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && len(r.URL.Path) > 8 && r.URL.Path[len(r.URL.Path)-8:] == "/_search":
			io.WriteString(w, search)
		default:
			io.WriteString(w, `{"acknowledged":true,"result":"created"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOpenSearch) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func TestNewClient_CreatesMissingIndices(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)
	fake.existing["gopos-garanti-transactions"] = true

	client, err := NewClient(context.Background(), &config.AppConfig{
		OpenSearchURL: srv.URL,
		EnableLogging: true,
	}, "estpos", "garanti")
	require.NoError(t, err)
	require.NotNil(t, client.GetClient())
	assert.True(t, client.IsEnabled())

	var created []string
	for _, r := range fake.calls() {
		if r.Method == http.MethodPut {
			created = append(created, r.Path)
		}
	}
	assert.ElementsMatch(t, []string{"/gopos-estpos-transactions", "/gopos-system-logs"}, created)
}

func TestNewClient_TransactionMapping(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)

	_, err := NewClient(context.Background(), &config.AppConfig{OpenSearchURL: srv.URL, EnableLogging: true}, "akbank")
	require.NoError(t, err)

	for _, r := range fake.calls() {
		if r.Method != http.MethodPut || r.Path != "/gopos-akbank-transactions" {
			continue
		}
		var body map[string]any
		require.NoError(t, json.Unmarshal(r.Body, &body))
		props := body["mappings"].(map[string]any)["properties"].(map[string]any)
		assert.Equal(t, "keyword", props["order_id"].(map[string]any)["type"])
		assert.Equal(t, false, props["request"].(map[string]any)["enabled"])
		return
	}
	t.Fatal("transaction index was not created")
}

func TestNewClient_DisabledSkipsSetup(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)

	client, err := NewClient(context.Background(), &config.AppConfig{OpenSearchURL: srv.URL}, "estpos")
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Empty(t, fake.calls())
}

func TestClient_GetLogIndexName(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "gopos-estpos-transactions", c.GetLogIndexName("estpos"))
	assert.Equal(t, "gopos-kuveytpos-transactions", c.GetLogIndexName("KuveytPos"))
}
