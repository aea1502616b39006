package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/jobs"
	"github.com/scanbridge/relay-server-go/internal/middleware"
	"github.com/scanbridge/relay-server-go/internal/model"
	"github.com/scanbridge/relay-server-go/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
	exportService  *service.ExportService
	sweeper        *jobs.RetentionSweeper
}

func NewSessionHandler(
	sessionService *service.SessionService,
	exportService *service.ExportService,
	sweeper *jobs.RetentionSweeper,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		exportService:  exportService,
		sweeper:        sweeper,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{sessionID}", h.Get)
	r.Patch("/{sessionID}", h.Rename)
	r.Delete("/{sessionID}", h.SoftDelete)
	r.Post("/{sessionID}/restore", h.Restore)
	r.Delete("/{sessionID}/purge", h.PermanentDelete)
	r.Get("/{sessionID}/export", h.Export)

	return r
}

// GET /v1/sessions?status=active|deleted&mine=true
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.SessionStatusActive
	if r.URL.Query().Get("status") == string(model.SessionStatusDeleted) {
		status = model.SessionStatusDeleted
	}

	var ownerID *string
	if r.URL.Query().Get("mine") == "true" {
		actor := middleware.GetActor(r.Context())
		if actor == nil {
			writeError(w, apperrors.Unauthorized("Authentication required to list your sessions"))
			return
		}
		ownerID = actor
	}

	sessions, err := h.sessionService.List(r.Context(), status, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type createSessionRequest struct {
	RequestedID *string `json:"requestedId,omitempty"`
	Name        *string `json:"name,omitempty"`
}

// POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.ValidationError("Invalid JSON body"))
			return
		}
	}

	actor := middleware.GetActor(r.Context())
	session, err := h.sessionService.Create(r.Context(), actor, service.CreateSessionParams{
		RequestedID: req.RequestedID,
		Name:        req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

type sessionDetail struct {
	model.Session
	ScanCount int `json:"scanCount"`
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	count, err := h.sessionService.ScanCount(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionDetail{Session: *session, ScanCount: count})
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

// PATCH /v1/sessions/{sessionID}
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeError(w, apperrors.MissingRequired("name"))
		return
	}

	actor := middleware.GetActor(r.Context())
	session, err := h.sessionService.Rename(r.Context(), chi.URLParam(r, "sessionID"), req.Name, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// DELETE /v1/sessions/{sessionID}
func (h *SessionHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := h.sessionService.SoftDelete(r.Context(), chi.URLParam(r, "sessionID"), actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /v1/sessions/{sessionID}/restore
func (h *SessionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := h.sessionService.Restore(r.Context(), chi.URLParam(r, "sessionID"), actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// DELETE /v1/sessions/{sessionID}/purge
func (h *SessionHandler) PermanentDelete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if err := h.sessionService.PermanentDelete(r.Context(), chi.URLParam(r, "sessionID"), actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// GET /v1/sessions/{sessionID}/export?format=csv|json
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	format := r.URL.Query().Get("format")

	result, err := h.exportService.Export(r.Context(), sessionID, format)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to write export")
	}
}

// POST /v1/cleanup?dryRun=true
func (h *SessionHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("dryRun") == "true" {
		count, err := h.sweeper.PendingCount(r.Context())
		if err != nil {
			writeError(w, apperrors.Database(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"eligible": count, "dryRun": true})
		return
	}

	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
