// Package server wires the HTTP and WebSocket surface together: route
// queue CRUD, the manual-drive lock endpoints, the status/robot-check
// probes, and the two WebSocket upgrades (C8). It is the counterpart of
// the reference gateway's server/handler.go guard-clause pipeline, adapted
// from a single generic HandleMessage router into one small REST handler
// per endpoint, matching net/http's ServeMux-based routing already used by
// cmd/gateway/main.go.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/apperr"
	"github.com/tabledelivery/control-core/internal/auth"
	"github.com/tabledelivery/control-core/internal/bus"
	"github.com/tabledelivery/control-core/internal/dispatch"
	"github.com/tabledelivery/control-core/internal/lock"
	"github.com/tabledelivery/control-core/internal/middleware"
	"github.com/tabledelivery/control-core/internal/nodecache"
	"github.com/tabledelivery/control-core/internal/optimizer"
	"github.com/tabledelivery/control-core/internal/safety"
	"github.com/tabledelivery/control-core/internal/store"
)

// Server holds every collaborator the HTTP/WS surface needs.
type Server struct {
	store      *store.Store
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	lockMgr    *lock.Manager
	nodes      *nodecache.Fetcher
	issuer     *auth.Issuer
	limiter    *safety.VelocityLimiter
	logger     *zap.Logger

	httpClient *http.Client
}

func New(
	st *store.Store,
	b *bus.Bus,
	d *dispatch.Dispatcher,
	l *lock.Manager,
	nodes *nodecache.Fetcher,
	issuer *auth.Issuer,
	limiter *safety.VelocityLimiter,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:      st,
		bus:        b,
		dispatcher: d,
		lockMgr:    l,
		nodes:      nodes,
		issuer:     issuer,
		limiter:    limiter,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Routes builds the ServeMux, with bearer auth applied to every endpoint
// that needs it and left off the public and robot-authenticated ones.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	bearer := middleware.BearerAuth(s.issuer)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /nodes", bearer(http.HandlerFunc(s.handleGetNodes)))
	mux.Handle("POST /routes/select", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleOperator, s.handleRoutesSelect))))
	mux.Handle("GET /routes", bearer(http.HandlerFunc(s.handleGetRoutes)))
	mux.Handle("POST /routes", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleAdmin, s.handlePostRoutes))))
	mux.Handle("DELETE /routes/{id}", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleAdmin, s.handleDeleteRoute))))
	mux.Handle("POST /routes/optimize", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleAdmin, s.handleOptimize))))
	mux.Handle("POST /drive/lock", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleOperator, s.handleAcquireLock))))
	mux.Handle("DELETE /drive/lock", bearer(http.HandlerFunc(middleware.RequireRole(auth.RoleOperator, s.handleReleaseLock))))
	mux.Handle("GET /robot/check", bearer(http.HandlerFunc(s.handleRobotCheck)))

	mux.HandleFunc("GET /ws/robot/control", s.HandleRobotControlSocket)
	mux.HandleFunc("GET /ws/drive/manual", s.HandleManualDriveSocket)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps an apperr.Error to its status code, except DomainConflict
// which the existing wire contract expects as 200 with an error body.
func writeErr(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if ae.Kind == apperr.KindDomainConflict {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": ae.Message})
		return
	}
	writeJSON(w, ae.StatusCode(), map[string]string{"status": "error", "message": ae.Message})
}

type statusResponse struct {
	Telemetry      interface{} `json:"telemetry"`
	LockHolderName *string     `json:"manualLockHolderName"`
	RobotConnected bool        `json:"robotConnected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Telemetry:      s.store.Telemetry(),
		RobotConnected: s.store.RobotConnected(),
	}
	if l := s.store.EffectiveLock(); l != nil {
		name := l.HolderName
		resp.LockHolderName = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetNodes keeps the existing wire contract on failure: the original
// robot client's get_nodes route returns its mapped status with an empty
// node list, never a generic error envelope, so a fetch failure here must
// still respond with {"nodes":[]}.
func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.nodes.GetNodes(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if ae, ok := err.(*apperr.Error); ok {
			status = ae.StatusCode()
		}
		writeJSON(w, status, map[string]interface{}{"nodes": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

type routeView struct {
	ID          string `json:"id"`
	Start       string `json:"start"`
	Destination string `json:"destination"`
	AddedAt     string `json:"addedAt"`
	AddedBy     string `json:"addedBy"`
}

func toView(r store.QueuedRoute) routeView {
	return routeView{ID: r.ID, Start: r.Start, Destination: r.Destination, AddedAt: r.AddedAt.Format(time.RFC3339), AddedBy: r.AddedBy}
}

func (s *Server) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	views := []routeView{}
	if active := s.store.ActiveRoute(); active != nil {
		views = append(views, toView(*active))
	}
	for _, q := range s.store.Queue() {
		views = append(views, toView(q))
	}
	writeJSON(w, http.StatusOK, views)
}

type enqueueBody struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

func (s *Server) handleRoutesSelect(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var body enqueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed body"})
		return
	}

	if claims.Role.IsAdmin() {
		s.dispatcher.Preempt(claims.Sub, claims.Name, body.Start, body.Destination)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if locked := s.store.EffectiveLock(); locked != nil {
		writeErr(w, apperr.DomainConflict("cannot enqueue while the manual-drive lock is held"))
		return
	}

	s.store.Enqueue(body.Start, body.Destination, claims.Name)
	s.dispatcher.TryDispatch()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePostRoutes(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var body enqueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "malformed body"})
		return
	}

	route := s.store.Enqueue(body.Start, body.Destination, claims.Name)
	s.dispatcher.TryDispatch()
	writeJSON(w, http.StatusCreated, toView(route))
}

func (s *Server) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.RemoveFromQueue(id) {
		writeErr(w, apperr.NotFound("route not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	current := s.store.Queue()
	reordered := optimizer.Optimize(current, optimizer.DefaultCost)
	s.store.ReplaceQueue(reordered)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := s.lockMgr.Acquire(claims); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := s.lockMgr.Release(claims); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRobotCheck(w http.ResponseWriter, r *http.Request) {
	url := s.store.RobotURL()
	resp := map[string]interface{}{
		"robotConnected": s.store.RobotConnected(),
		"lastUpdate":     s.store.LastUpdate().UTC().Format(time.RFC3339),
	}
	if url == "" {
		resp["healthy"] = false
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		resp["healthy"] = false
		writeJSON(w, http.StatusOK, resp)
		return
	}
	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		resp["healthy"] = false
		writeJSON(w, http.StatusOK, resp)
		return
	}
	defer httpResp.Body.Close()
	resp["healthy"] = httpResp.StatusCode == http.StatusOK

	writeJSON(w, http.StatusOK, resp)
}
