package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll/archive"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
	"github.com/mcdev12/livepoll/go/internal/poll/session"
)

// WebSocketHandler handles WebSocket upgrade requests for the poll channel
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	core              *session.Core
	counters          *archive.Counters
}

func NewWebSocketHandler(cm *ConnectionManager, core *session.Core, counters *archive.Counters) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		core:              core,
		counters:          counters,
	}
}

// HandleConnection upgrades the request. Identity is declared later over
// the channel with moderator:join or participant:join.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// the upgrader has already written the HTTP error
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

type statsResponse struct {
	Connections ConnectionStats          `json:"connections"`
	Session     session.Stats            `json:"session"`
	Archive     archive.CountersSnapshot `json:"archive"`
}

// HandleConnectionStats returns statistics about connections, the session and the archive writer
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	sessionStats, err := h.core.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read session stats")
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := statsResponse{
		Connections: h.connectionManager.GetConnectionStats(),
		Session:     sessionStats,
	}
	if h.counters != nil {
		resp.Archive = h.counters.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HistoryHandler serves archived polls over HTTP
type HistoryHandler struct {
	archive archive.Archive
}

func NewHistoryHandler(a archive.Archive) *HistoryHandler {
	return &HistoryHandler{archive: a}
}

// HandleList returns every archived poll, most recent first
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.archive.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list poll history")
		http.Error(w, "failed to load poll history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events.NewRecordPayloads(records))
}

// HandleGet returns a single archived poll
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.archive.Get(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		http.Error(w, "poll not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("record_id", id).Msg("failed to load poll record")
		http.Error(w, "failed to load poll record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events.NewRecordPayload(record))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
