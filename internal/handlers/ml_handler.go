package handlers

import (
	"net/http"

	"orienta/internal/service"
)

// RecomputeRequest selects the responses to score again
type RecomputeRequest struct {
	OnlyFinalized bool `json:"onlyFinalized"`
	Limit         int  `json:"limit" validate:"gte=0"`
	DryRun        bool `json:"dryRun"`
}

// MLHandler triggers scoring with the model bound to a version
type MLHandler struct {
	Base
	ml *service.MLService
}

// NewMLHandler creates a new ML handler
func NewMLHandler(base Base, ml *service.MLService) *MLHandler {
	return &MLHandler{Base: base, ml: ml}
}

// Recompute scores every selected response of a version
// @Summary Recompute ML scores
// @Tags ML
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param request body RecomputeRequest false "Selection"
// @Success 200 {object} Envelope{data=service.RecomputeResult}
// @Failure 400 {object} Envelope "Missing or invalid ml_binding"
// @Failure 404 {object} Envelope
// @Router /admin/versions/{id}/recompute-ml [post]
func (h *MLHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req RecomputeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.ml.Recompute(r.Context(), versionID, service.RecomputeOptions{
		OnlyFinalized: req.OnlyFinalized,
		Limit:         req.Limit,
		DryRun:        req.DryRun,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, result)
}
