package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"orienta/internal/service"
)

// AnswersRequest represents the body of a save or finalize call
type AnswersRequest struct {
	UserCode  string                     `json:"user_code" validate:"required,max=64"`
	VersionID *int64                     `json:"version_id,omitempty" validate:"omitempty,gte=1"`
	Answers   map[string]json.RawMessage `json:"answers" swaggertype:"object"`
}

// RegisterUserRequest represents the body of a user registration
type RegisterUserRequest struct {
	UserCode string `json:"user_code" validate:"required,max=64"`
}

// DynamicHandler serves the student facing questionnaire endpoints
type DynamicHandler struct {
	Base
	responses *service.ResponseService
}

// NewDynamicHandler creates a new dynamic questionnaire handler
func NewDynamicHandler(base Base, responses *service.ResponseService) *DynamicHandler {
	return &DynamicHandler{Base: base, responses: responses}
}

// GetForm returns the structure of the version the user should answer
// @Summary Get questionnaire form
// @Tags Dynamic
// @Produce json
// @Param code path string true "Questionnaire code"
// @Param user_code query string false "Student code"
// @Param version_id query int false "Pinned published version"
// @Success 200 {object} Envelope{data=service.Form}
// @Failure 404 {object} Envelope "No published version"
// @Router /dynamic/questionnaires/{code} [get]
func (h *DynamicHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	pinned, err := queryInt64(r, "version_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	form, err := h.responses.GetForm(r.Context(), r.PathValue("code"), r.URL.Query().Get("user_code"), pinned)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, form)
}

// Save stores a partial set of answers
// @Summary Save answers
// @Tags Dynamic
// @Accept json
// @Produce json
// @Param code path string true "Questionnaire code"
// @Param request body AnswersRequest true "Answers keyed by question code"
// @Success 200 {object} Envelope{data=service.ResponseState}
// @Failure 400 {object} Envelope "Invalid or unknown answers"
// @Failure 409 {object} Envelope "Response already finalized"
// @Router /dynamic/questionnaires/{code}/save [post]
func (h *DynamicHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, h.responses.Save)
}

// Finalize stores answers and closes the response when every required answer is present
// @Summary Finalize response
// @Tags Dynamic
// @Accept json
// @Produce json
// @Param code path string true "Questionnaire code"
// @Param request body AnswersRequest true "Last answers keyed by question code"
// @Success 200 {object} Envelope{data=service.ResponseState}
// @Failure 400 {object} Envelope "Missing required answers"
// @Router /dynamic/questionnaires/{code}/finalize [post]
func (h *DynamicHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, h.responses.Finalize)
}

type recordFunc func(ctx context.Context, versionID int64, userCode string, answers map[string]json.RawMessage) (*service.ResponseState, error)

func (h *DynamicHandler) record(w http.ResponseWriter, r *http.Request, fn recordFunc) {
	var req AnswersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	v, err := h.responses.ResolveVersion(r.Context(), r.PathValue("code"), req.UserCode, req.VersionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	state, err := fn(r.Context(), v.ID, req.UserCode, req.Answers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, state)
}

// Mine returns the status, answers and progress of the user's response
// @Summary Get own response
// @Tags Dynamic
// @Produce json
// @Param code path string true "Questionnaire code"
// @Param user_code query string true "Student code"
// @Param version_id query int false "Pinned published version"
// @Success 200 {object} Envelope{data=service.ResponseState}
// @Failure 400 {object} Envelope
// @Router /dynamic/questionnaires/{code}/mine [get]
func (h *DynamicHandler) Mine(w http.ResponseWriter, r *http.Request) {
	pinned, err := queryInt64(r, "version_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	userCode := r.URL.Query().Get("user_code")

	v, err := h.responses.ResolveVersion(r.Context(), r.PathValue("code"), userCode, pinned)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	state, err := h.responses.StatusFor(r.Context(), v.ID, userCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, state)
}

// Overview lists the questionnaires available to the user
// @Summary Questionnaire overview
// @Tags Dynamic
// @Produce json
// @Param user_code query string true "Student code"
// @Success 200 {object} Envelope{data=service.Overview}
// @Failure 400 {object} Envelope
// @Router /dynamic/overview [get]
func (h *DynamicHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.responses.Overview(r.Context(), r.URL.Query().Get("user_code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, overview)
}

// RegisterUser creates the user record for a student code
// @Summary Register student
// @Tags Dynamic
// @Accept json
// @Produce json
// @Param request body RegisterUserRequest true "Student code"
// @Success 200 {object} Envelope{data=models.User}
// @Failure 400 {object} Envelope
// @Router /dynamic/users [post]
func (h *DynamicHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.responses.RegisterUser(r.Context(), req.UserCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, user)
}
