package adminapi

import (
	"net/http"

	"github.com/wsuscatalog/wsuscatalog/internal/downstream"
	"github.com/wsuscatalog/wsuscatalog/internal/jobqueue"
	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/synchistory"
)

// Server is the operator-facing admin API: login, trigger/watch sync and
// reindex, inspect store stats and sync history. It shares the catalog
// daemon's store/queue/history/downstream server but owns none of them.
type Server struct {
	auth       *Authenticator
	store      *store.Store
	queue      *jobqueue.Queue
	history    *synchistory.Repository
	hub        *progress.Hub
	downstream *downstream.Server
}

// NewServer wires an admin API Server around the daemon's shared
// components. s may be swapped later via SetStore, mirroring the way
// internal/downstream.Server.SetPackageStore lets a reindex/resync refresh
// the serving state without restarting the process.
func NewServer(auth *Authenticator, s *store.Store, q *jobqueue.Queue, history *synchistory.Repository, hub *progress.Hub, ds *downstream.Server) *Server {
	return &Server{auth: auth, store: s, queue: q, history: history, hub: hub, downstream: ds}
}

// SetStore swaps the backing store the handlers read from.
func (s *Server) SetStore(st *store.Store) {
	s.store = st
}

// Handler builds the http.Handler mounting every admin endpoint this
// package implements, following the mounting shape of
// internal/downstream.Server.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", s.handleLogin)
	mux.HandleFunc("/admin/sync", s.requireAuth(s.handleSync))
	mux.HandleFunc("/admin/store/reindex", s.requireAuth(s.handleReindex))
	mux.HandleFunc("/admin/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("/admin/updates", s.requireAuth(s.handleUpdates))
	mux.HandleFunc("/admin/driver-match", s.requireAuth(s.handleDriverMatch))
	mux.HandleFunc("/admin/runs", s.requireAuth(s.handleRuns))
	mux.HandleFunc("/admin/ws", s.requireAuth(s.handleWebSocket))
	return mux
}
