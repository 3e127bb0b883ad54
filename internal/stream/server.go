package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tallyboard/backend/internal/config"
	"github.com/tallyboard/backend/internal/counter"
	"github.com/tallyboard/backend/internal/notify"
)

// Server carries the HTTP surface: the live websocket stream plus the
// JSON endpoints for increments, snapshot inspection, reinitialization,
// and health.
type Server struct {
	store      *counter.Store
	notifier   *notify.Notifier
	supervisor *Supervisor
	streamCfg  config.StreamConfig
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

func NewServer(store *counter.Store, notifier *notify.Notifier, supervisor *Supervisor, cfg config.StreamConfig, logger zerolog.Logger) *Server {
	return &Server{
		store:      store,
		notifier:   notifier,
		supervisor: supervisor,
		streamCfg:  cfg,
		upgrader: websocket.Upgrader{
			// Viewers are served from arbitrary origins and auth is out of
			// scope, matching the wide-open CORS policy below.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/api/incr", s.handleIncr)
	mux.HandleFunc("/api/items/", s.handleItem)
	mux.HandleFunc("/api/reinit", s.handleReinit)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	sess := NewSession(conn, s.store, s.notifier, s.streamCfg, s.log)
	s.log.Info().Str("session", sess.ID()).Str("remote", r.RemoteAddr).Msg("stream client connected")

	err = s.supervisor.Serve(sess)
	evt := s.log.Info().Str("session", sess.ID())
	if err != nil && !errors.Is(err, context.Canceled) {
		evt = evt.Err(err)
	}
	evt.Msg("stream client disconnected")
}

type incrRequest struct {
	Item int `json:"item"`
	Slot int `json:"i"`
}

func (s *Server) handleIncr(w http.ResponseWriter, r *http.Request) {
	if s.handleCORSPreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req incrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	count, err := s.store.Increment(r.Context(), req.Item, req.Slot)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	// A successful increment always publishes; viewers must never miss
	// the change.
	s.notifier.Publish(req.Item)

	writeJSON(w, http.StatusOK, map[string]any{
		"item":  req.Item,
		"i":     req.Slot,
		"count": count,
	})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	if s.handleCORSPreflight(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/items/")
	item, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid item id %q", raw))
		return
	}

	counts, err := s.store.Snapshot(r.Context(), item)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item":   item,
		"counts": counts,
	})
}

func (s *Server) handleReinit(w http.ResponseWriter, r *http.Request) {
	if s.handleCORSPreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.store.InitializeAll(r.Context()); err != nil {
		s.writeStoreError(w, err)
		return
	}

	// One change event per item so every connected viewer resyncs to the
	// zeroed state.
	for _, it := range s.store.Items() {
		s.notifier.Publish(it.ID)
	}

	s.log.Info().Int("items", len(s.store.Items())).Msg("counters reinitialized")
	writeJSON(w, http.StatusOK, map[string]any{"status": "initialized"})
}

// writeStoreError maps store errors onto the HTTP boundary: validation
// failures are the caller's fault, an unreachable backing service is
// retryable.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, counter.ErrUnknownItem), errors.Is(err, counter.ErrSlotOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, counter.ErrUnavailable):
		s.log.Error().Err(err).Msg("counter store unavailable")
		writeError(w, http.StatusServiceUnavailable, "counter store unavailable")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleCORSPreflight answers OPTIONS and stamps the permissive CORS
// header the JSON endpoints expose. Viewers and increment callers are
// served from arbitrary origins.
func (s *Server) handleCORSPreflight(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
