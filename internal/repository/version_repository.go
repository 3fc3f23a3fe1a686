package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"orienta/internal/models"
)

// latestPublishedID selects the latest published version of the questionnaire referenced by v
const latestPublishedID = `(
	SELECT lv.id FROM questionnaire_versions lv
	WHERE lv.questionnaire_id = v.questionnaire_id AND lv.status = 'published'
	ORDER BY lv.published_at DESC NULLS LAST, lv.number DESC
	LIMIT 1
)`

const versionSelect = `
	SELECT v.id, v.questionnaire_id, q.code, v.number, v.status, v.metadata,
	       v.published_at, v.created_at, v.updated_at,
	       (v.status = 'published' AND v.id = ` + latestPublishedID + `) AS is_latest_published
	FROM questionnaire_versions v
	JOIN questionnaires q ON q.id = v.questionnaire_id
`

// VersionRepository handles database operations for questionnaire versions
type VersionRepository struct {
	db DBTX
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db DBTX) *VersionRepository {
	return &VersionRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *VersionRepository) WithTx(tx *sql.Tx) *VersionRepository {
	return &VersionRepository{db: tx}
}

func scanVersion(row rowScanner, v *models.Version) error {
	var metadata []byte
	err := row.Scan(
		&v.ID,
		&v.QuestionnaireID,
		&v.QuestionnaireCode,
		&v.Number,
		&v.Status,
		&metadata,
		&v.PublishedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.IsLatestPublished,
	)
	if err != nil {
		return err
	}
	v.Metadata = json.RawMessage(metadata)
	return nil
}

// NextNumber returns the number the next version of a questionnaire receives
func (r *VersionRepository) NextNumber(ctx context.Context, questionnaireID int64) (int, error) {
	var next int
	query := `SELECT COALESCE(MAX(number), 0) + 1 FROM questionnaire_versions WHERE questionnaire_id = $1`
	err := r.db.QueryRowContext(ctx, query, questionnaireID).Scan(&next)
	return next, err
}

// Create inserts a new version
func (r *VersionRepository) Create(ctx context.Context, v *models.Version) error {
	if len(v.Metadata) == 0 {
		v.Metadata = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO questionnaire_versions (questionnaire_id, number, status, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, v.QuestionnaireID, v.Number, v.Status, string(v.Metadata)).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID retrieves a version by ID
func (r *VersionRepository) GetByID(ctx context.Context, id int64) (*models.Version, error) {
	v := &models.Version{}
	err := scanVersion(r.db.QueryRowContext(ctx, versionSelect+` WHERE v.id = $1`, id), v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetLatestPublished retrieves the latest published version of a questionnaire
func (r *VersionRepository) GetLatestPublished(ctx context.Context, questionnaireID int64) (*models.Version, error) {
	query := versionSelect + `
		WHERE v.questionnaire_id = $1 AND v.status = 'published'
		ORDER BY v.published_at DESC NULLS LAST, v.number DESC
		LIMIT 1
	`
	v := &models.Version{}
	err := scanVersion(r.db.QueryRowContext(ctx, query, questionnaireID), v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListByQuestionnaire retrieves all versions of a questionnaire ordered by number
func (r *VersionRepository) ListByQuestionnaire(ctx context.Context, questionnaireID int64) ([]models.Version, error) {
	rows, err := r.db.QueryContext(ctx, versionSelect+` WHERE v.questionnaire_id = $1 ORDER BY v.number`, questionnaireID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	versions := []models.Version{}
	for rows.Next() {
		var v models.Version
		if err := scanVersion(rows, &v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// UpdateStatus changes the status and publication timestamp of a version
func (r *VersionRepository) UpdateStatus(ctx context.Context, id int64, status string, publishedAt *time.Time) error {
	query := `
		UPDATE questionnaire_versions
		SET status = $2, published_at = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, publishedAt)
	return err
}

// UpdateMetadata replaces the metadata document of a version
func (r *VersionRepository) UpdateMetadata(ctx context.Context, id int64, metadata json.RawMessage) error {
	query := `UPDATE questionnaire_versions SET metadata = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, string(metadata))
	return err
}

// Delete removes a version and its structure
func (r *VersionRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM questionnaire_versions WHERE id = $1`, id)
	return err
}

// ShiftNumbersDown closes the gap left by a deleted version
func (r *VersionRepository) ShiftNumbersDown(ctx context.Context, questionnaireID int64, deletedNumber int) error {
	query := `
		UPDATE questionnaire_versions
		SET number = number - 1, updated_at = CURRENT_TIMESTAMP
		WHERE questionnaire_id = $1 AND number > $2
	`
	_, err := r.db.ExecContext(ctx, query, questionnaireID, deletedNumber)
	return err
}

// CountNonDraft returns the number of versions of a questionnaire that are not drafts
func (r *VersionRepository) CountNonDraft(ctx context.Context, questionnaireID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM questionnaire_versions WHERE questionnaire_id = $1 AND status <> 'draft'`
	err := r.db.QueryRowContext(ctx, query, questionnaireID).Scan(&count)
	return count, err
}
