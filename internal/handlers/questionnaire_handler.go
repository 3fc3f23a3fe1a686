package handlers

import (
	"net/http"

	"orienta/internal/service"
)

// CreateQuestionnaireRequest represents the body of a questionnaire creation
type CreateQuestionnaireRequest struct {
	Code        string `json:"code" validate:"required,qncode"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateQuestionnaireRequest represents a partial questionnaire update
type UpdateQuestionnaireRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// SetPrimaryRequest toggles the primary designation. An empty body sets it.
type SetPrimaryRequest struct {
	IsPrimary *bool `json:"is_primary,omitempty"`
}

// QuestionnaireHandler handles the questionnaire catalogue
type QuestionnaireHandler struct {
	Base
	questionnaires *service.QuestionnaireService
	versions       *service.VersionService
}

// NewQuestionnaireHandler creates a new questionnaire handler
func NewQuestionnaireHandler(base Base, questionnaires *service.QuestionnaireService, versions *service.VersionService) *QuestionnaireHandler {
	return &QuestionnaireHandler{
		Base:           base,
		questionnaires: questionnaires,
		versions:       versions,
	}
}

// List lists all questionnaires
// @Summary List questionnaires
// @Tags Questionnaires
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=[]models.Questionnaire}
// @Failure 401 {object} Envelope
// @Router /questionnaires [get]
func (h *QuestionnaireHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.questionnaires.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, list)
}

// Create creates a questionnaire
// @Summary Create questionnaire
// @Tags Questionnaires
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateQuestionnaireRequest true "Questionnaire"
// @Success 201 {object} Envelope{data=models.Questionnaire}
// @Failure 400 {object} Envelope
// @Failure 409 {object} Envelope "Code already used"
// @Router /questionnaires [post]
func (h *QuestionnaireHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuestionnaireRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	q, err := h.questionnaires.Create(r.Context(), service.CreateQuestionnaireInput{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, q)
}

// Get returns a questionnaire with its versions
// @Summary Get questionnaire
// @Tags Questionnaires
// @Produce json
// @Security BearerAuth
// @Param code path string true "Questionnaire code"
// @Success 200 {object} Envelope{data=models.QuestionnaireDetail}
// @Failure 404 {object} Envelope
// @Router /questionnaires/{code} [get]
func (h *QuestionnaireHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.questionnaires.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, detail)
}

// Update changes title, description or status
// @Summary Update questionnaire
// @Tags Questionnaires
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Questionnaire code"
// @Param request body UpdateQuestionnaireRequest true "Fields to change"
// @Success 200 {object} Envelope{data=models.Questionnaire}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /questionnaires/{code} [patch]
func (h *QuestionnaireHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuestionnaireRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	q, err := h.questionnaires.Update(r.Context(), r.PathValue("code"), service.UpdateQuestionnaireInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, q)
}

// Delete removes a questionnaire without published versions or responses
// @Summary Delete questionnaire
// @Tags Questionnaires
// @Produce json
// @Security BearerAuth
// @Param code path string true "Questionnaire code"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Failure 409 {object} Envelope
// @Router /questionnaires/{code} [delete]
func (h *QuestionnaireHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.questionnaires.Delete(r.Context(), r.PathValue("code")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.message(w, http.StatusOK, "Questionnaire deleted")
}

// NewVersion appends a new empty draft version
// @Summary Create version
// @Tags Versions
// @Produce json
// @Security BearerAuth
// @Param code path string true "Questionnaire code"
// @Success 201 {object} Envelope{data=models.Version}
// @Failure 404 {object} Envelope
// @Router /questionnaires/{code}/new-version [post]
func (h *QuestionnaireHandler) NewVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.CreateVersion(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, v)
}

// SetPrimary designates the questionnaire as primary, or clears the flag
// @Summary Set primary questionnaire
// @Tags Questionnaires
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Questionnaire code"
// @Param request body SetPrimaryRequest false "Primary flag, default true"
// @Success 200 {object} Envelope{data=models.Questionnaire}
// @Failure 409 {object} Envelope "Another questionnaire is primary"
// @Router /questionnaires/{code}/set-primary [post]
func (h *QuestionnaireHandler) SetPrimary(w http.ResponseWriter, r *http.Request) {
	var req SetPrimaryRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	primary := req.IsPrimary == nil || *req.IsPrimary

	q, err := h.questionnaires.SetPrimary(r.Context(), r.PathValue("code"), primary)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, q)
}
