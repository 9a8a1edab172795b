package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	stdsync "sync"
	"testing"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/remote"
	"github.com/bradmartin/ksync/internal/storage"
)

// recordedRequest captures one remote call for assertions.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// requestLog collects remote calls across concurrent dispatches.
type requestLog struct {
	mu   stdsync.Mutex
	reqs []recordedRequest
}

func (l *requestLog) add(r recordedRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, r)
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]recordedRequest, len(l.reqs))
	copy(out, l.reqs)
	return out
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reqs)
}

// setupManager stands up a bolt-backed engine against an httptest
// remote. The handler sees every request after it is recorded.
func setupManager(t *testing.T, handler http.HandlerFunc) (*Manager, storage.Adapter, *requestLog) {
	t.Helper()

	logged := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(data) > 0 {
			json.Unmarshal(data, &body)
		}
		logged.add(recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		r.Body = io.NopCloser(bytes.NewReader(data))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	cfg := config.Config{
		Protocol:   "http",
		Host:       u.Host,
		AppKey:     "app1",
		InstanceID: "test-instance",
		DataDir:    t.TempDir(),
	}
	cfg.Normalize()

	adapter, err := storage.Open("testdb", storage.Options{
		DataDir:    cfg.DataDir,
		Preference: []string{config.BackendBolt},
	})
	if err != nil {
		t.Fatalf("open adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })

	return NewManager(adapter, remote.New(cfg), cfg), adapter, logged
}

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// echoHandler mirrors write bodies back and accepts deletes, the
// happy-path remote.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodDelete:
		respondJSON(w, http.StatusOK, map[string]any{"count": 1})
	default:
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(data, &body)
		if body == nil {
			body = map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	}
}

func ctx() context.Context { return context.Background() }
