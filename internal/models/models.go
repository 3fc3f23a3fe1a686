package models

import (
	"encoding/json"
	"time"
)

// Questionnaire status values
const (
	QuestionnaireActive   = "active"
	QuestionnaireInactive = "inactive"
)

// Version status values
const (
	VersionDraft     = "draft"
	VersionPublished = "published"
)

// Response status values. ResponseNew is a pseudo status for users without a response row.
const (
	ResponseNew        = "new"
	ResponseInProgress = "in_progress"
	ResponseSubmitted  = "submitted"
	ResponseFinalized  = "finalized"
)

// Questionnaire represents a named, versioned survey definition
type Questionnaire struct {
	ID          int64     `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	IsPrimary   bool      `json:"is_primary" db:"is_primary"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether students may answer the questionnaire
func (q *Questionnaire) IsActive() bool {
	return q.Status == QuestionnaireActive
}

// QuestionnaireDetail is a questionnaire together with its versions
type QuestionnaireDetail struct {
	Questionnaire
	Versions                 []Version `json:"versions"`
	LatestPublishedVersionID *int64    `json:"latest_published_version_id,omitempty"`
}

// Version is a snapshot of a questionnaire's structure
type Version struct {
	ID                int64           `json:"id" db:"id"`
	QuestionnaireID   int64           `json:"questionnaire_id" db:"questionnaire_id"`
	QuestionnaireCode string          `json:"questionnaire_code" db:"questionnaire_code"`
	Number            int             `json:"number" db:"number"`
	Status            string          `json:"status" db:"status"`
	Metadata          json.RawMessage `json:"metadata" db:"metadata" swaggertype:"object"`
	IsLatestPublished bool            `json:"is_latest_published" db:"-"`
	PublishedAt       *time.Time      `json:"published_at,omitempty" db:"published_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsPublished reports whether the version is published
func (v *Version) IsPublished() bool {
	return v.Status == VersionPublished
}

// VersionDetail is a version with its full structure
type VersionDetail struct {
	Version
	Sections []Section `json:"sections"`
}

// Questions returns every question of the version in display order
func (d *VersionDetail) Questions() []Question {
	var questions []Question
	for _, s := range d.Sections {
		questions = append(questions, s.Questions...)
	}
	return questions
}

// Section groups questions of a version
type Section struct {
	ID          int64      `json:"id" db:"id"`
	VersionID   int64      `json:"version_id" db:"version_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Order       int        `json:"order" db:"sort_order"`
	Questions   []Question `json:"questions" db:"-"`
}

// Question is a single item of a section
type Question struct {
	ID              int64           `json:"id" db:"id"`
	SectionID       int64           `json:"section_id" db:"section_id"`
	VersionID       int64           `json:"version_id" db:"version_id"`
	Code            string          `json:"code" db:"code"`
	Text            string          `json:"text" db:"text"`
	Type            QuestionType    `json:"type" db:"type"`
	Required        bool            `json:"required" db:"required"`
	Order           int             `json:"order" db:"sort_order"`
	ValidationRules json.RawMessage `json:"validation_rules,omitempty" db:"validation_rules" swaggertype:"object"`
	VisibleIf       json.RawMessage `json:"visible_if,omitempty" db:"visible_if" swaggertype:"object"`
	Options         []Option        `json:"options,omitempty" db:"-"`
}

// Option is a selectable value of a choice question
type Option struct {
	ID         int64  `json:"id" db:"id"`
	QuestionID int64  `json:"question_id" db:"question_id"`
	Value      string `json:"value" db:"value"`
	Label      string `json:"label" db:"label"`
	Order      int    `json:"order" db:"sort_order"`
	IsOther    bool   `json:"is_other" db:"is_other"`
}

// User is a student identified by a student code
type User struct {
	ID        int64     `json:"id_usuario" db:"id_usuario"`
	Code      string    `json:"codigo_estudiante" db:"codigo_estudiante"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Response is one student's attempt at one version
type Response struct {
	ID             int64      `json:"id" db:"id"`
	VersionID      int64      `json:"version_id" db:"version_id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	UserCode       string     `json:"user_code" db:"-"`
	Status         string     `json:"status" db:"status"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty" db:"submitted_at"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty" db:"finalized_at"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	MLProb         *float64   `json:"ml_prob,omitempty" db:"ml_prob"`
	MLDecision     *bool      `json:"ml_decision,omitempty" db:"ml_decision"`
	MLLabel        *string    `json:"ml_label,omitempty" db:"ml_label"`
	MLStatus       *string    `json:"ml_status,omitempty" db:"ml_status"`
	MLReason       *string    `json:"ml_reason,omitempty" db:"ml_reason"`
	MLScoredAt     *time.Time `json:"ml_scored_at,omitempty" db:"ml_scored_at"`
}

// IsFinalized reports whether the response reached its terminal status
func (r *Response) IsFinalized() bool {
	return r.Status == ResponseFinalized
}

// Answer is the stored value of one question in a response
type Answer struct {
	ResponseID   int64           `json:"response_id" db:"response_id"`
	QuestionCode string          `json:"question_code" db:"question_code"`
	Value        json.RawMessage `json:"value" db:"value" swaggertype:"object"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// MLResult is the outcome of scoring one response
type MLResult struct {
	Prob     *float64 `json:"ml_prob"`
	Decision *bool    `json:"ml_decision"`
	Label    *string  `json:"ml_label"`
	Status   string   `json:"ml_status"`
	Reason   *string  `json:"ml_reason"`
}

// Admin is a principal of the authoring console
type Admin struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Name         string     `json:"name" db:"name"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	AdminID   *int64    `json:"admin_id,omitempty" db:"admin_id"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Details   string    `json:"details" db:"details"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuditLogFilter narrows audit log listings
type AuditLogFilter struct {
	Action   string
	Resource string
}
