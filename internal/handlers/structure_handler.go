package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"orienta/internal/models"
	"orienta/internal/service"
)

// SectionRequest represents the body of a section create or update
type SectionRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// ReorderSectionsRequest swaps the order of two sections
type ReorderSectionsRequest struct {
	FirstID  int64 `json:"first_id" validate:"required,gte=1"`
	SecondID int64 `json:"second_id" validate:"required,gte=1"`
}

// OptionRequest represents the body of an option create or update
type OptionRequest struct {
	Value   string `json:"value" validate:"required,max=200"`
	Label   string `json:"label" validate:"max=500"`
	Order   *int   `json:"order,omitempty" validate:"omitempty,gte=0"`
	IsOther bool   `json:"is_other"`
}

// QuestionRequest represents the body of a question create or update
type QuestionRequest struct {
	Code            string          `json:"code" validate:"required,qcode"`
	Text            string          `json:"text" validate:"required,max=2000"`
	Type            string          `json:"type" validate:"required"`
	Required        bool            `json:"required"`
	Order           *int            `json:"order,omitempty" validate:"omitempty,gte=0"`
	ValidationRules json.RawMessage `json:"validation_rules,omitempty" swaggertype:"object"`
	VisibleIf       json.RawMessage `json:"visible_if,omitempty" swaggertype:"object"`
	Options         []OptionRequest `json:"options,omitempty" validate:"dive"`
}

func (o OptionRequest) input() service.OptionInput {
	return service.OptionInput{Value: o.Value, Label: o.Label, Order: o.Order, IsOther: o.IsOther}
}

func (q QuestionRequest) input() service.QuestionInput {
	in := service.QuestionInput{
		Code:            q.Code,
		Text:            q.Text,
		Type:            models.QuestionType(q.Type),
		Required:        q.Required,
		Order:           q.Order,
		ValidationRules: q.ValidationRules,
		VisibleIf:       q.VisibleIf,
	}
	for _, o := range q.Options {
		in.Options = append(in.Options, o.input())
	}
	return in
}

// StructureHandler edits sections, questions and options of draft versions
type StructureHandler struct {
	Base
	structure *service.StructureService
}

// NewStructureHandler creates a new structure handler
func NewStructureHandler(base Base, structure *service.StructureService) *StructureHandler {
	return &StructureHandler{Base: base, structure: structure}
}

// CreateSection appends a section to a draft version
// @Summary Create section
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param request body SectionRequest true "Section"
// @Success 201 {object} Envelope{data=models.Section}
// @Failure 400 {object} Envelope "Version is not a draft"
// @Router /versions/{id}/sections [post]
func (h *StructureHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req SectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	section, err := h.structure.CreateSection(r.Context(), versionID, service.SectionInput{Title: req.Title, Description: req.Description})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, section)
}

// ReorderSections swaps two sections of a draft version
// @Summary Swap section order
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Version ID"
// @Param request body ReorderSectionsRequest true "Sections to swap"
// @Success 200 {object} Envelope{data=[]models.Section}
// @Failure 400 {object} Envelope
// @Router /versions/{id}/sections/reorder [post]
func (h *StructureHandler) ReorderSections(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req ReorderSectionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	sections, err := h.structure.ReorderSections(r.Context(), versionID, req.FirstID, req.SecondID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, sections)
}

// UpdateSection changes title and description
// @Summary Update section
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Section ID"
// @Param request body SectionRequest true "Section"
// @Success 200 {object} Envelope{data=models.Section}
// @Router /sections/{id} [put]
func (h *StructureHandler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req SectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	section, err := h.structure.UpdateSection(r.Context(), id, service.SectionInput{Title: req.Title, Description: req.Description})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, section)
}

// DeleteSection removes a section with its questions
// @Summary Delete section
// @Tags Structure
// @Produce json
// @Security BearerAuth
// @Param id path int true "Section ID"
// @Success 200 {object} Envelope
// @Router /sections/{id} [delete]
func (h *StructureHandler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "Section deleted", h.structure.DeleteSection)
}

// CreateQuestion adds a question to a section
// @Summary Create question
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Section ID"
// @Param request body QuestionRequest true "Question"
// @Success 201 {object} Envelope{data=models.Question}
// @Failure 409 {object} Envelope "Code already used in the version"
// @Router /sections/{id}/questions [post]
func (h *StructureHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	sectionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req QuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	question, err := h.structure.CreateQuestion(r.Context(), sectionID, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, question)
}

// UpdateQuestion replaces the editable fields of a question
// @Summary Update question
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Question ID"
// @Param request body QuestionRequest true "Question"
// @Success 200 {object} Envelope{data=models.Question}
// @Router /questions/{id} [put]
func (h *StructureHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req QuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	question, err := h.structure.UpdateQuestion(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, question)
}

// DeleteQuestion removes a question
// @Summary Delete question
// @Tags Structure
// @Produce json
// @Security BearerAuth
// @Param id path int true "Question ID"
// @Success 200 {object} Envelope
// @Router /questions/{id} [delete]
func (h *StructureHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "Question deleted", h.structure.DeleteQuestion)
}

// CreateOption adds an option to a choice question
// @Summary Create option
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Question ID"
// @Param request body OptionRequest true "Option"
// @Success 201 {object} Envelope{data=models.Option}
// @Router /questions/{id}/options [post]
func (h *StructureHandler) CreateOption(w http.ResponseWriter, r *http.Request) {
	questionID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req OptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	option, err := h.structure.CreateOption(r.Context(), questionID, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, option)
}

// UpdateOption replaces the editable fields of an option
// @Summary Update option
// @Tags Structure
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Option ID"
// @Param request body OptionRequest true "Option"
// @Success 200 {object} Envelope{data=models.Option}
// @Router /options/{id} [put]
func (h *StructureHandler) UpdateOption(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req OptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	option, err := h.structure.UpdateOption(r.Context(), id, req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, option)
}

// DeleteOption removes an option
// @Summary Delete option
// @Tags Structure
// @Produce json
// @Security BearerAuth
// @Param id path int true "Option ID"
// @Success 200 {object} Envelope
// @Router /options/{id} [delete]
func (h *StructureHandler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "Option deleted", h.structure.DeleteOption)
}

func (h *StructureHandler) remove(w http.ResponseWriter, r *http.Request, message string, fn func(ctx context.Context, id int64) error) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.message(w, http.StatusOK, message)
}
