package testutil

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"orienta/internal/models"
)

// CreateQuestionnaire inserts an active questionnaire
func CreateQuestionnaire(t *testing.T, db *sql.DB, code string) *models.Questionnaire {
	t.Helper()

	q := &models.Questionnaire{Code: code, Title: "Questionnaire " + code, Status: models.QuestionnaireActive}
	err := db.QueryRow(`
		INSERT INTO questionnaires (code, title, description, status)
		VALUES ($1, $2, '', $3)
		RETURNING id, created_at, updated_at
	`, q.Code, q.Title, q.Status).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create questionnaire: %v", err)
	}
	return q
}

// CreateVersion inserts a version with the given number and status
func CreateVersion(t *testing.T, db *sql.DB, questionnaireID int64, number int, status string) *models.Version {
	t.Helper()

	v := &models.Version{QuestionnaireID: questionnaireID, Number: number, Status: status}
	var publishedAt *time.Time
	if status == models.VersionPublished {
		now := time.Now().UTC()
		publishedAt = &now
	}
	err := db.QueryRow(`
		INSERT INTO questionnaire_versions (questionnaire_id, number, status, metadata, published_at)
		VALUES ($1, $2, $3, '{}', $4)
		RETURNING id, created_at, updated_at
	`, questionnaireID, number, status, publishedAt).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
	v.PublishedAt = publishedAt
	return v
}

// CreateSection inserts a section
func CreateSection(t *testing.T, db *sql.DB, versionID int64, title string, order int) *models.Section {
	t.Helper()

	s := &models.Section{VersionID: versionID, Title: title, Order: order}
	err := db.QueryRow(`
		INSERT INTO sections (version_id, title, description, sort_order)
		VALUES ($1, $2, '', $3)
		RETURNING id
	`, versionID, title, order).Scan(&s.ID)
	if err != nil {
		t.Fatalf("Failed to create section: %v", err)
	}
	return s
}

// CreateQuestion inserts a question into a section
func CreateQuestion(t *testing.T, db *sql.DB, section *models.Section, code string, qType models.QuestionType, required bool, order int) *models.Question {
	t.Helper()

	q := &models.Question{
		SectionID: section.ID,
		VersionID: section.VersionID,
		Code:      code,
		Text:      "Question " + code,
		Type:      qType,
		Required:  required,
		Order:     order,
	}
	err := db.QueryRow(`
		INSERT INTO questions (section_id, version_id, code, text, type, required, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, q.SectionID, q.VersionID, q.Code, q.Text, q.Type, q.Required, q.Order).Scan(&q.ID)
	if err != nil {
		t.Fatalf("Failed to create question: %v", err)
	}
	return q
}

// CreateOption inserts an option of a choice question
func CreateOption(t *testing.T, db *sql.DB, questionID int64, value string, order int) *models.Option {
	t.Helper()

	o := &models.Option{QuestionID: questionID, Value: value, Label: value, Order: order}
	err := db.QueryRow(`
		INSERT INTO question_options (question_id, value, label, sort_order, is_other)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id
	`, questionID, value, value, order).Scan(&o.ID)
	if err != nil {
		t.Fatalf("Failed to create option: %v", err)
	}
	return o
}

// CreateAdmin inserts an active administrator with the given password
func CreateAdmin(t *testing.T, db *sql.DB, email, password string) *models.Admin {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	a := &models.Admin{Email: email, PasswordHash: string(hash), Name: "Test Admin", IsActive: true}
	err = db.QueryRow(`
		INSERT INTO admins (email, password_hash, name, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at
	`, a.Email, a.PasswordHash, a.Name).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	return a
}
