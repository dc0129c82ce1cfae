package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/logflow/internal/domain"
	"github.com/V4T54L/logflow/internal/usecase"
)

// StatsProvider reports pipeline state.
type StatsProvider interface {
	Stats() domain.PipelineStats
}

// AdminHandler handles HTTP requests for pipeline and stream administration.
// Stream endpoints answer 501 when the storage backend has no stream admin.
type AdminHandler struct {
	stats  StatsProvider
	uc     *usecase.AdminStreamUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. uc may be nil.
func NewAdminHandler(stats StatsProvider, uc *usecase.AdminStreamUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{stats: stats, uc: uc, logger: logger.With("component", "admin_handler")}
}

// HealthCheck reports ok while the pipeline accepts events.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.stats.Stats().Closed {
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStats handles GET /admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.stats.Stats())
}

// GetStreamInfo handles GET /admin/streams/{stream}.
func (h *AdminHandler) GetStreamInfo(w http.ResponseWriter, r *http.Request) {
	if !h.streamsEnabled(w) {
		return
	}
	info, err := h.uc.GetStreamInfo(r.Context(), chi.URLParam(r, "stream"))
	if err != nil {
		h.logger.Error("failed to get stream info", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, info)
}

// GetGroupInfo handles GET /admin/streams/{stream}/groups.
func (h *AdminHandler) GetGroupInfo(w http.ResponseWriter, r *http.Request) {
	if !h.streamsEnabled(w) {
		return
	}
	groups, err := h.uc.GetGroupInfo(r.Context(), chi.URLParam(r, "stream"))
	if err != nil {
		h.logger.Error("failed to get group info", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, groups)
}

// GetPendingSummary handles GET /admin/streams/{stream}/groups/{group}/pending.
func (h *AdminHandler) GetPendingSummary(w http.ResponseWriter, r *http.Request) {
	if !h.streamsEnabled(w) {
		return
	}
	summary, err := h.uc.GetPendingSummary(r.Context(), chi.URLParam(r, "stream"), chi.URLParam(r, "group"))
	if err != nil {
		h.logger.Error("failed to get pending summary", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, summary)
}

// TrimStream handles POST /admin/streams/{stream}/trim with body {"maxlen": n}.
func (h *AdminHandler) TrimStream(w http.ResponseWriter, r *http.Request) {
	if !h.streamsEnabled(w) {
		return
	}

	var payload struct {
		MaxLen *int64 `json:"maxlen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.MaxLen == nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	trimmed, err := h.uc.TrimStream(r.Context(), chi.URLParam(r, "stream"), *payload.MaxLen)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidTrimLength) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to trim stream", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]int64{"trimmed": trimmed})
}

func (h *AdminHandler) streamsEnabled(w http.ResponseWriter) bool {
	if h.uc == nil {
		http.Error(w, "stream administration is not supported by the configured sink", http.StatusNotImplemented)
		return false
	}
	return true
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
