package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/service"
)

type ScanHandler struct {
	scanService *service.ScanService
}

func NewScanHandler(scanService *service.ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

func (h *ScanHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Delete("/{scanID}", h.DeleteOne)
	r.Post("/bulk-delete", h.BulkDelete)

	return r
}

// DELETE /v1/scans/{scanID} — deleting a missing id is a no-op count of zero.
func (h *ScanHandler) DeleteOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scanID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.InvalidInput("scanID", "must be an integer"))
		return
	}

	affected, err := h.scanService.DeleteOne(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": affected})
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// POST /v1/scans/bulk-delete
func (h *ScanHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	affected, err := h.scanService.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": affected})
}
