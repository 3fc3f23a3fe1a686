package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reason codes carried by conflict and invalid state errors
const (
	ReasonQuestionnaireExists       = "questionnaire_exists"
	ReasonQuestionnaireHasPublished = "questionnaire_has_published_versions"
	ReasonQuestionnaireHasResponses = "questionnaire_has_responses"
	ReasonAnotherPrimaryExists      = "another_primary_exists"
	ReasonVersionIsLatestPublished  = "version_is_latest_published"
	ReasonVersionHasResponses       = "version_has_responses"
	ReasonQuestionCodeExists        = "question_code_exists"
	ReasonOptionValueExists         = "option_value_exists"
	ReasonResponseFinalized         = "response_finalized"
	ReasonVersionNotEditable        = "version_not_editable"
	ReasonVersionNotPublished       = "version_not_published"
	ReasonQuestionnaireInactive     = "questionnaire_inactive"
	ReasonVersionAlreadyPublished   = "version_already_published"
)

// ValidationError reports bad or missing input
type ValidationError struct {
	Message string
	Fields  map[string]string
	Unknown []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown question codes: "+strings.Join(e.Unknown, ", "))
	}
	if len(parts) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NewValidationError creates a validation error without field details
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown code or id
type NotFoundError struct {
	Resource string
	Key      any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Key)
}

// ConflictError reports a state invariant violation
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// InvalidStateError reports an operation not allowed in the current state
type InvalidStateError struct {
	Reason  string
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// MissingSection lists the unanswered required questions of one section
type MissingSection struct {
	SectionID    int64    `json:"section_id"`
	SectionTitle string   `json:"section_title"`
	Questions    []string `json:"questions"`
}

// MissingFieldsError is returned by finalize when required answers are missing
type MissingFieldsError struct {
	Sections []MissingSection
}

func (e *MissingFieldsError) Error() string {
	var codes []string
	for _, s := range e.Sections {
		codes = append(codes, s.Questions...)
	}
	return "missing required answers: " + strings.Join(codes, ", ")
}

// Codes returns every missing question code
func (e *MissingFieldsError) Codes() []string {
	var codes []string
	for _, s := range e.Sections {
		codes = append(codes, s.Questions...)
	}
	return codes
}

// UpstreamError wraps a database or scoring runtime failure
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// upstream wraps err unless it already carries a domain error
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
		state      *InvalidStateError
		missing    *MissingFieldsError
		up         *UpstreamError
	)
	return errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &conflict) ||
		errors.As(err, &state) ||
		errors.As(err, &missing) ||
		errors.As(err, &up)
}
