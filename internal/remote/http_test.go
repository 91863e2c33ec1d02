package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/domain"
	"tasksync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu       sync.Mutex
	versions map[string]models.RemoteVersion
	status   int
	echo     bool
	methods  []string
	keys     []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, r.Header.Get("X-API-Key"))
	f.methods = append(f.methods, r.Method)

	if f.status != 0 {
		http.Error(w, "forced", f.status)
		return
	}

	id := r.URL.Path[len("/v1/tasks/"):]
	switch r.Method {
	case http.MethodGet:
		v, ok := f.versions[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(v)
	case http.MethodPut:
		var task models.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		version := models.RemoteVersion{Task: task, ServerModifiedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		f.versions[id] = version
		if f.echo {
			_ = json.NewEncoder(w).Encode(version)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if _, ok := f.versions[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(f.versions, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestHTTPRemote(t *testing.T) {
	fake := &fakeServer{versions: map[string]models.RemoteVersion{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := NewHTTP(config.RemoteHTTPConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", RPS: 1000, Burst: 100}, srv.Client())
	ctx := context.Background()

	v, err := h.FetchVersion(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, v)

	at, err := h.Push(ctx, &models.Task{ID: 5, Title: "over http"})
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	v, err = h.FetchVersion(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "over http", v.Task.Title)
	assert.Equal(t, 2024, v.ServerModifiedAt.Year())

	require.NoError(t, h.PushDelete(ctx, 5))
	require.NoError(t, h.PushDelete(ctx, 5))

	fake.mu.Lock()
	for _, k := range fake.keys {
		assert.Equal(t, "secret", k)
	}
	fake.mu.Unlock()
}

func TestHTTPRemote_StatusMapping(t *testing.T) {
	fake := &fakeServer{versions: map[string]models.RemoteVersion{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := NewHTTP(config.RemoteHTTPConfig{BaseURL: srv.URL + "/v1", RPS: 1000, Burst: 100}, srv.Client())
	ctx := context.Background()

	fake.status = http.StatusConflict
	_, err := h.Push(ctx, &models.Task{ID: 1, Title: "x"})
	var remoteErr *domain.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, OpPush, remoteErr.Op)
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)

	fake.status = http.StatusServiceUnavailable
	_, err = h.FetchVersion(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	srv.Close()
	fake.status = 0
	err = h.PushDelete(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestHTTPRemote_PushStamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("FromResponseBody", func(t *testing.T) {
		fake := &fakeServer{versions: map[string]models.RemoteVersion{}, echo: true}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		h := NewHTTP(config.RemoteHTTPConfig{BaseURL: srv.URL + "/v1", RPS: 1000, Burst: 100}, srv.Client())
		at, err := h.Push(context.Background(), &models.Task{ID: 3, Title: "x"})
		require.NoError(t, err)
		assert.True(t, at.Equal(want))

		fake.mu.Lock()
		assert.Equal(t, []string{http.MethodPut}, fake.methods)
		fake.mu.Unlock()
	})

	t.Run("FollowUpGet", func(t *testing.T) {
		fake := &fakeServer{versions: map[string]models.RemoteVersion{}}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		h := NewHTTP(config.RemoteHTTPConfig{BaseURL: srv.URL + "/v1", RPS: 1000, Burst: 100}, srv.Client())
		at, err := h.Push(context.Background(), &models.Task{ID: 3, Title: "x"})
		require.NoError(t, err)
		assert.True(t, at.Equal(want))

		fake.mu.Lock()
		assert.Equal(t, []string{http.MethodPut, http.MethodGet}, fake.methods)
		fake.mu.Unlock()
	})
}
