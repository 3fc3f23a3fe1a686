package repository

import (
	"context"
	"database/sql"
	"fmt"

	"orienta/internal/models"
)

const questionnaireColumns = `id, code, title, description, status, is_primary, created_at, updated_at`

// QuestionnaireRepository handles database operations for questionnaires
type QuestionnaireRepository struct {
	db DBTX
}

// NewQuestionnaireRepository creates a new questionnaire repository
func NewQuestionnaireRepository(db DBTX) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *QuestionnaireRepository) WithTx(tx *sql.Tx) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: tx}
}

func scanQuestionnaire(row rowScanner, q *models.Questionnaire) error {
	return row.Scan(
		&q.ID,
		&q.Code,
		&q.Title,
		&q.Description,
		&q.Status,
		&q.IsPrimary,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
}

// Create inserts a new questionnaire
func (r *QuestionnaireRepository) Create(ctx context.Context, q *models.Questionnaire) error {
	query := `
		INSERT INTO questionnaires (code, title, description, status, is_primary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query, q.Code, q.Title, q.Description, q.Status, q.IsPrimary).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// GetByCode retrieves a questionnaire by code
func (r *QuestionnaireRepository) GetByCode(ctx context.Context, code string) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE code = $1`
	return r.getOne(ctx, query, code)
}

// GetByCodeForUpdate retrieves a questionnaire by code and locks its row
func (r *QuestionnaireRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE code = $1 FOR UPDATE`
	return r.getOne(ctx, query, code)
}

// GetByID retrieves a questionnaire by ID
func (r *QuestionnaireRepository) GetByID(ctx context.Context, id int64) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves a questionnaire by ID and locks its row
func (r *QuestionnaireRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetPrimary retrieves the primary questionnaire
func (r *QuestionnaireRepository) GetPrimary(ctx context.Context) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE is_primary`
	return r.getOne(ctx, query)
}

// GetPrimaryForUpdate retrieves the primary questionnaire and locks its row
func (r *QuestionnaireRepository) GetPrimaryForUpdate(ctx context.Context) (*models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires WHERE is_primary FOR UPDATE`
	return r.getOne(ctx, query)
}

func (r *QuestionnaireRepository) getOne(ctx context.Context, query string, args ...any) (*models.Questionnaire, error) {
	q := &models.Questionnaire{}
	err := scanQuestionnaire(r.db.QueryRowContext(ctx, query, args...), q)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// List retrieves all questionnaires, primary first
func (r *QuestionnaireRepository) List(ctx context.Context) ([]models.Questionnaire, error) {
	query := `SELECT ` + questionnaireColumns + ` FROM questionnaires ORDER BY is_primary DESC, code`
	return r.list(ctx, query)
}

// ListActiveWithPublishedVersion retrieves active questionnaires that have at least one published version
func (r *QuestionnaireRepository) ListActiveWithPublishedVersion(ctx context.Context) ([]models.Questionnaire, error) {
	query := `
		SELECT ` + questionnaireColumns + `
		FROM questionnaires q
		WHERE q.status = 'active'
		  AND EXISTS (
			SELECT 1 FROM questionnaire_versions v
			WHERE v.questionnaire_id = q.id AND v.status = 'published'
		  )
		ORDER BY q.is_primary DESC, q.code
	`
	return r.list(ctx, query)
}

func (r *QuestionnaireRepository) list(ctx context.Context, query string, args ...any) ([]models.Questionnaire, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	questionnaires := []models.Questionnaire{}
	for rows.Next() {
		var q models.Questionnaire
		if err := scanQuestionnaire(rows, &q); err != nil {
			return nil, err
		}
		questionnaires = append(questionnaires, q)
	}

	return questionnaires, rows.Err()
}

// Update updates title, description and status
func (r *QuestionnaireRepository) Update(ctx context.Context, q *models.Questionnaire) error {
	query := `
		UPDATE questionnaires
		SET title = $2, description = $3, status = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`
	return r.db.QueryRowContext(ctx, query, q.ID, q.Title, q.Description, q.Status).Scan(&q.UpdatedAt)
}

// SetPrimary sets the primary flag of one questionnaire
func (r *QuestionnaireRepository) SetPrimary(ctx context.Context, id int64, primary bool) error {
	query := `UPDATE questionnaires SET is_primary = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, primary)
	return err
}

// ClearPrimaryExcept clears the primary flag of every other questionnaire
func (r *QuestionnaireRepository) ClearPrimaryExcept(ctx context.Context, id int64) error {
	query := `UPDATE questionnaires SET is_primary = FALSE, updated_at = CURRENT_TIMESTAMP WHERE is_primary AND id <> $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// CountPrimary returns the number of primary questionnaires
func (r *QuestionnaireRepository) CountPrimary(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questionnaires WHERE is_primary`).Scan(&count)
	return count, err
}

// Delete removes a questionnaire and, by cascade, its versions
func (r *QuestionnaireRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM questionnaires WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("questionnaire %d not found", id)
	}
	return nil
}
