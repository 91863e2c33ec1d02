// Package api exposes the local task store and sync state over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/models"
	"tasksync/internal/service"
	"tasksync/internal/worker"

	"github.com/rs/zerolog"
)

// SyncController is the slice of the sync engine the API drives.
type SyncController interface {
	IsSyncing() bool
	SyncNow(ctx context.Context) (worker.Result, error)
	LastResult() *worker.Result
}

// SyncLedger reads outbox and conflict state from the store.
type SyncLedger interface {
	PendingSyncCount(ctx context.Context) (int, error)
	ListConflicts(ctx context.Context, limit int) ([]models.ConflictRecord, error)
}

// OnlineState reports current connectivity.
type OnlineState interface {
	CurrentState() bool
}

type Deps struct {
	Tasks   *service.TaskService
	Sync    SyncController
	Ledger  SyncLedger
	Monitor OnlineState
}

// HTTPServer serves the task API, sync status and a health check.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /api/v1/tasks", srv.handleListTasks)
	mux.HandleFunc("POST /api/v1/tasks", srv.handleCreateTask)
	mux.HandleFunc("GET /api/v1/tasks/nearby", srv.handleNearby)
	mux.HandleFunc("GET /api/v1/tasks/{id}", srv.handleGetTask)
	mux.HandleFunc("PUT /api/v1/tasks/{id}", srv.handleUpdateTask)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", srv.handleDeleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", srv.handleCompleteTask)
	mux.HandleFunc("GET /api/v1/sync/status", srv.handleSyncStatus)
	mux.HandleFunc("POST /api/v1/sync", srv.handleSyncNow)
	mux.HandleFunc("GET /api/v1/sync/conflicts", srv.handleConflicts)

	handler := loggingMiddleware(logger, recoverMiddleware(logger, srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
