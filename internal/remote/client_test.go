package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradmartin/ksync/internal/config"
	"github.com/bradmartin/ksync/internal/entity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := config.Config{Protocol: "http", Host: u.Host, AppKey: "app1"}
	cfg.Normalize()
	return New(cfg)
}

func TestCreatePostsToCollection(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"_id": "srv1", "v": 1})
	})

	out, err := c.Create(context.Background(), "books", entity.Entity{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/appdata/app1/books", gotPath)
	assert.Equal(t, float64(1), gotBody["v"])
	assert.Equal(t, "srv1", out.ID())
}

func TestUpdatePutsToEntity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/appdata/app1/books/a", r.URL.Path)
		io.Copy(w, r.Body)
	})
	out, err := c.Update(context.Background(), "books", "a", entity.Entity{"_id": "a", "v": 2})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["v"])
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusNotFound, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNotFound)
		}},
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrInsufficientCredentials)
		}},
		{http.StatusForbidden, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrInsufficientCredentials)
		}},
		{http.StatusInternalServerError, func(t *testing.T, err error) {
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		}},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			json.NewEncoder(w).Encode(map[string]any{"error": "SomeError", "description": "nope"})
		})
		err := c.Delete(context.Background(), "books", "a")
		require.Error(t, err, "status %d", tt.status)
		tt.check(t, err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	cfg := config.Config{Protocol: "http", Host: "127.0.0.1:1", AppKey: "app1"}
	cfg.Normalize()
	c := New(cfg)

	_, err := c.Get(context.Background(), "books", "a")
	require.Error(t, err)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestRequestTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	c.timeout = 20 * time.Millisecond

	err := c.Delete(context.Background(), "books", "a")
	require.Error(t, err)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestAuthorizeHeaderInjection(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	c.Authorize = func(r *http.Request) { r.Header.Set("Authorization", "Kinvey token-1") }

	require.NoError(t, c.Delete(context.Background(), "books", "a"))
	assert.Equal(t, "Kinvey token-1", gotAuth)
}
