package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"orienta/internal/models"
	"orienta/internal/service"
)

// VersionStatusRequest moves a version between draft and published
type VersionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published"`
}

// VersionHandler handles the version lifecycle
type VersionHandler struct {
	Base
	versions *service.VersionService
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(base Base, versions *service.VersionService) *VersionHandler {
	return &VersionHandler{Base: base, versions: versions}
}

// Get returns a version with sections, questions and options
// @Summary Get version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Success 200 {object} Envelope{data=models.VersionDetail}
// @Failure 404 {object} Envelope
// @Router /versions/{id} [get]
func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	detail, err := h.versions.GetVersion(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, detail)
}

// SetStatus publishes or unpublishes a version
// @Summary Change version status
// @Tags Versions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param request body VersionStatusRequest true "Target status"
// @Success 200 {object} Envelope{data=models.Version}
// @Failure 400 {object} Envelope
// @Router /versions/{id} [patch]
func (h *VersionHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req VersionStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.versions.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}

// Delete removes a version and renumbers the later ones
// @Summary Delete version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Success 200 {object} Envelope
// @Failure 409 {object} Envelope "Latest published or answered version"
// @Router /versions/{id} [delete]
func (h *VersionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.versions.DeleteVersion(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.message(w, http.StatusOK, "Version deleted")
}

// Clone copies a version into a new draft
// @Summary Clone version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Source version ID"
// @Success 201 {object} Envelope{data=models.Version}
// @Failure 404 {object} Envelope
// @Router /versions/{id}/clone [post]
func (h *VersionHandler) Clone(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, http.StatusCreated, h.versions.CloneVersion)
}

// Publish publishes a draft version
// @Summary Publish version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Success 200 {object} Envelope{data=models.Version}
// @Failure 400 {object} Envelope "Already published"
// @Router /versions/{id}/publish [post]
func (h *VersionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, http.StatusOK, h.versions.Publish)
}

// Unpublish moves a version back to draft
// @Summary Unpublish version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Success 200 {object} Envelope{data=models.Version}
// @Failure 400 {object} Envelope "Not published"
// @Router /versions/{id}/unpublish [post]
func (h *VersionHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, http.StatusOK, h.versions.Unpublish)
}

func (h *VersionHandler) transition(w http.ResponseWriter, r *http.Request, code int, fn func(ctx context.Context, id int64) (*models.Version, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, code, v)
}

// UpdateMetadata replaces the metadata document, including the ML binding
// @Summary Replace version metadata
// @Tags Versions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param request body object true "Metadata document"
// @Success 200 {object} Envelope{data=models.Version}
// @Failure 400 {object} Envelope
// @Router /versions/{id}/metadata [put]
func (h *VersionHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var doc json.RawMessage
	if err := decodeJSON(w, r, &doc); err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.versions.UpdateMetadata(r.Context(), id, doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, v)
}
