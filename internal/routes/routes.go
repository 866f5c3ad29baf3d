package routes

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashdeck/hashdeck/internal/archive"
	"github.com/hashdeck/hashdeck/internal/config"
	wshandler "github.com/hashdeck/hashdeck/internal/handlers/ws"
	"github.com/hashdeck/hashdeck/internal/potfile"
	"github.com/hashdeck/hashdeck/internal/registry"
	"github.com/hashdeck/hashdeck/internal/session"
	"github.com/hashdeck/hashdeck/pkg/debug"
)

// Router wires the control surface: session start/stop/delete over HTTP
// and the observer event stream over WebSocket.
type Router struct {
	cfg     *config.Config
	manager *registry.Manager
	shared  *potfile.Shared
	store   *archive.Store
	ws      *wshandler.Handler
}

// NewRouter builds the HTTP router
func NewRouter(cfg *config.Config, manager *registry.Manager, shared *potfile.Shared, store *archive.Store, ws *wshandler.Handler) *mux.Router {
	rt := &Router{
		cfg:     cfg,
		manager: manager,
		shared:  shared,
		store:   store,
		ws:      ws,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", rt.ws.ServeWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", rt.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/sessions", rt.handleList).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stop", rt.handleStopSole).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/stop", rt.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", rt.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/potfile", rt.handlePotfile).Methods(http.MethodGet)
	api.HandleFunc("/history", rt.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/benchmark", rt.handleBenchmark).Methods(http.MethodPost)

	return r
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			debug.Error("Failed to encode response: %v", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// handleStart accepts a start request: a full config, raw custom args, or
// a restore marker.
func (rt *Router) handleStart(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var sess *session.Session
	var err error
	if cfg.Restore {
		sess, err = rt.manager.Restore(cfg.SessionID)
	} else {
		sess, err = rt.manager.Start(cfg)
	}
	if err != nil {
		debug.Warning("Start request rejected: %v", err)
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}

	respondJSON(w, http.StatusCreated, sess.View())
}

func (rt *Router) handleList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rt.manager.List())
}

func (rt *Router) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := rt.manager.StopByID(id); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": "stopping"})
}

func (rt *Router) handleStopSole(w http.ResponseWriter, r *http.Request) {
	if err := rt.manager.StopSoleActive(); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"state": "stopping"})
}

func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := rt.manager.Delete(id); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "state": "deleted"})
}

func (rt *Router) handlePotfile(w http.ResponseWriter, r *http.Request) {
	lines, err := rt.shared.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sums, err := rt.store.List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, sums)
}

func (rt *Router) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HashType int `json:"hash_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	speed, err := session.RunBenchmark(r.Context(), rt.cfg.HashcatBinary, req.HashType)
	if err != nil {
		respondError(w, http.StatusBadGateway, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{"hashrate": speed})
}
