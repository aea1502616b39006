package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/scanbridge/relay-server-go/internal/errors"
	"github.com/scanbridge/relay-server-go/internal/middleware"
	"github.com/scanbridge/relay-server-go/internal/service"
)

type PolicyHandler struct {
	policyService *service.AccessPolicyService
}

func NewPolicyHandler(policyService *service.AccessPolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

func (h *PolicyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{sessionID}", h.Get)
	r.Put("/{sessionID}", h.Update)
	r.Post("/{sessionID}/verify", h.Verify)

	return r
}

// GET /v1/policies/{sessionID}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	policy, err := h.policyService.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"policy":      policy,
		"hasPassword": policy.HasPassword(),
	})
}

// PUT /v1/policies/{sessionID}
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdatePolicyParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	actor := middleware.GetActor(r.Context())
	policy, err := h.policyService.Update(r.Context(), chi.URLParam(r, "sessionID"), req, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

// POST /v1/policies/{sessionID}/verify — public, no ownership required.
func (h *PolicyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyPasswordRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.ValidationError("Invalid JSON body"))
			return
		}
	}

	if err := h.policyService.Verify(r.Context(), chi.URLParam(r, "sessionID"), req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"granted": true})
}
