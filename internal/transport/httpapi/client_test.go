package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/model"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   []byte
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, n int)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization"), body: body})
		n := len(rec.calls)
		rec.mu.Unlock()
		handler(w, r, n)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL+"/", "secret", WithRetry(3, time.Millisecond, 5*time.Millisecond))
	return c, rec
}

func TestSaveSectionContent(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusNoContent)
	})

	out, err := c.SaveSectionContent(context.Background(), "doc 1", "s/1", model.Text("Title"), model.Paragraphs("body"), 7)
	require.NoError(t, err)
	assert.Equal(t, autosave.Delivered, out)

	got := calls.all()
	require.Len(t, got, 1)
	call := got[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/v1/articles/doc%201/sections/s%2F1", call.path)
	assert.Equal(t, "Bearer secret", call.auth)

	var payload autosave.SectionPayload
	require.NoError(t, json.Unmarshal(call.body, &payload))
	assert.Equal(t, int64(7), payload.Seq)
	assert.Equal(t, "Title", payload.Heading.PlainText())
	assert.Equal(t, "body", payload.Body.PlainText())
}

func TestSaveStructureAndDocument(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusOK)
	})
	doc := model.MustBuild(model.Node{ID: "a", Children: []model.Node{{ID: "b"}}})

	_, err := c.SaveStructureSnapshot(context.Background(), "d", model.StructureSnapshot(doc))
	require.NoError(t, err)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = c.SaveFullDocument(context.Background(), "d", raw, 24)
	require.NoError(t, err)

	got := calls.all()
	require.Len(t, got, 2)
	assert.Equal(t, "/v1/articles/d/structure", got[0].path)
	var snap autosave.StructurePayload
	require.NoError(t, json.Unmarshal(got[0].body, &snap))
	assert.Len(t, snap.Nodes, 2)

	assert.Equal(t, "/v1/articles/d", got[1].path)
	var full autosave.DocumentPayload
	require.NoError(t, json.Unmarshal(got[1].body, &full))
	assert.Equal(t, 24, full.StaleVersionHours)
	assert.JSONEq(t, string(raw), string(full.Document))
}

func TestAcceptedMeansQueuedOffline(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusAccepted)
	})
	out, err := c.SaveFullDocument(context.Background(), "d", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	assert.Equal(t, autosave.QueuedOffline, out)
}

func TestRetriesServerErrors(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if n < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	_, err := c.SaveStructureSnapshot(context.Background(), "d", nil)
	require.NoError(t, err)
	assert.Len(t, calls.all(), 3)
}

func TestGivesUpAfterRetries(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"upstream","message":"down"}`))
	})
	_, err := c.SaveStructureSnapshot(context.Background(), "d", nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "upstream", httpErr.Code)
	assert.Len(t, calls.all(), 4, "first attempt plus three retries")
}

func TestConflictIsStaleSequence(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusConflict)
	})
	_, err := c.SaveSectionContent(context.Background(), "d", "s", nil, nil, 1)
	assert.ErrorIs(t, err, ErrStaleSequence)
	assert.Len(t, calls.all(), 1, "conflicts are not retried")
}

func TestFetchDocument(t *testing.T) {
	updated := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		if r.URL.Path == "/v1/articles/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"document":  json.RawMessage(`{"sections":[]}`),
			"updatedAt": updated,
		})
	})

	doc, err := c.FetchDocument(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, doc.HasContent())
	assert.True(t, doc.UpdatedAt.Equal(updated))

	_, err = c.FetchDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.False(t, RemoteDocument{Document: json.RawMessage("null")}.HasContent())
}

func TestRetryDelay(t *testing.T) {
	c := NewClient("", "")
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, 2*time.Second, c.retryDelay(10, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "1"))
	assert.Equal(t, 2*time.Second, c.retryDelay(1, "120"))
}

func TestContextCancelStopsRetries(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request, n int) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.baseDelay = time.Hour
	c.maxDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SaveStructureSnapshot(ctx, "d", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
