package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"orienta/internal/models"
)

const responseSelect = `
	SELECT r.id, r.version_id, r.user_id, u.codigo_estudiante, r.status, r.started_at,
	       r.submitted_at, r.finalized_at, r.last_activity_at,
	       r.ml_prob, r.ml_decision, r.ml_label, r.ml_status, r.ml_reason, r.ml_scored_at
	FROM responses r
	JOIN users u ON u.id_usuario = r.user_id
`

// ResponseFilter narrows response listings
type ResponseFilter struct {
	UserCode      string // case-insensitive substring
	Status        string
	OnlyFinalized bool
}

// ResponseRepository handles responses and their answers
type ResponseRepository struct {
	db DBTX
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db DBTX) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *ResponseRepository) WithTx(tx *sql.Tx) *ResponseRepository {
	return &ResponseRepository{db: tx}
}

func scanResponse(row rowScanner, resp *models.Response) error {
	return row.Scan(
		&resp.ID,
		&resp.VersionID,
		&resp.UserID,
		&resp.UserCode,
		&resp.Status,
		&resp.StartedAt,
		&resp.SubmittedAt,
		&resp.FinalizedAt,
		&resp.LastActivityAt,
		&resp.MLProb,
		&resp.MLDecision,
		&resp.MLLabel,
		&resp.MLStatus,
		&resp.MLReason,
		&resp.MLScoredAt,
	)
}

func (r *ResponseRepository) getOne(ctx context.Context, query string, args ...any) (*models.Response, error) {
	resp := &models.Response{}
	err := scanResponse(r.db.QueryRowContext(ctx, query, args...), resp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// EnsureForUpdate creates the response of (version, user) when absent and returns it locked.
// Concurrent callers serialize on the unique (version_id, user_id) constraint and the row lock.
func (r *ResponseRepository) EnsureForUpdate(ctx context.Context, versionID, userID int64) (*models.Response, error) {
	insert := `
		INSERT INTO responses (version_id, user_id, status)
		VALUES ($1, $2, 'in_progress')
		ON CONFLICT (version_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, versionID, userID); err != nil {
		return nil, err
	}

	resp, err := r.getOne(ctx, responseSelect+` WHERE r.version_id = $1 AND r.user_id = $2 FOR UPDATE OF r`, versionID, userID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("response for version %d and user %d vanished", versionID, userID)
	}
	return resp, nil
}

// Get retrieves the response of a user to a version
func (r *ResponseRepository) Get(ctx context.Context, versionID, userID int64) (*models.Response, error) {
	return r.getOne(ctx, responseSelect+` WHERE r.version_id = $1 AND r.user_id = $2`, versionID, userID)
}

// GetByID retrieves a response by ID
func (r *ResponseRepository) GetByID(ctx context.Context, id int64) (*models.Response, error) {
	return r.getOne(ctx, responseSelect+` WHERE r.id = $1`, id)
}

// GetLatestForQuestionnaire retrieves the most recently active response of a user
// to any version of a questionnaire
func (r *ResponseRepository) GetLatestForQuestionnaire(ctx context.Context, userID, questionnaireID int64) (*models.Response, error) {
	query := responseSelect + `
		JOIN questionnaire_versions v ON v.id = r.version_id
		WHERE r.user_id = $1 AND v.questionnaire_id = $2
		ORDER BY r.last_activity_at DESC, r.id DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID, questionnaireID)
}

// Touch stamps last_activity_at
func (r *ResponseRepository) Touch(ctx context.Context, resp *models.Response, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE responses SET last_activity_at = $2 WHERE id = $1`, resp.ID, at)
	if err != nil {
		return err
	}
	resp.LastActivityAt = at
	return nil
}

// MarkFinalized moves a response to the finalized status
func (r *ResponseRepository) MarkFinalized(ctx context.Context, resp *models.Response, at time.Time) error {
	query := `
		UPDATE responses
		SET status = 'finalized',
		    submitted_at = COALESCE(submitted_at, $2),
		    finalized_at = $2,
		    last_activity_at = $2
		WHERE id = $1
		RETURNING submitted_at
	`
	if err := r.db.QueryRowContext(ctx, query, resp.ID, at).Scan(&resp.SubmittedAt); err != nil {
		return err
	}
	resp.Status = models.ResponseFinalized
	resp.FinalizedAt = &at
	resp.LastActivityAt = at
	return nil
}

// UpsertAnswer stores the value of one question, overwriting any prior value
func (r *ResponseRepository) UpsertAnswer(ctx context.Context, responseID int64, code string, value json.RawMessage, at time.Time) error {
	query := `
		INSERT INTO answers (response_id, question_code, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (response_id, question_code)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, responseID, code, string(value), at)
	return err
}

// DeleteAnswer removes the value of one question
func (r *ResponseRepository) DeleteAnswer(ctx context.Context, responseID int64, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM answers WHERE response_id = $1 AND question_code = $2`, responseID, code)
	return err
}

// ListAnswers returns question code -> stored value of a response
func (r *ResponseRepository) ListAnswers(ctx context.Context, responseID int64) (map[string]json.RawMessage, error) {
	byResponse, err := r.ListAnswersFor(ctx, []int64{responseID})
	if err != nil {
		return nil, err
	}
	if answers, ok := byResponse[responseID]; ok {
		return answers, nil
	}
	return map[string]json.RawMessage{}, nil
}

// ListAnswersFor returns the answers of several responses keyed by response ID
func (r *ResponseRepository) ListAnswersFor(ctx context.Context, responseIDs []int64) (map[int64]map[string]json.RawMessage, error) {
	result := make(map[int64]map[string]json.RawMessage, len(responseIDs))
	if len(responseIDs) == 0 {
		return result, nil
	}

	query := `SELECT response_id, question_code, value FROM answers WHERE response_id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(responseIDs))
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	for rows.Next() {
		var (
			responseID int64
			code       string
			value      []byte
		)
		if err := rows.Scan(&responseID, &code, &value); err != nil {
			return nil, err
		}
		if result[responseID] == nil {
			result[responseID] = make(map[string]json.RawMessage)
		}
		result[responseID][code] = json.RawMessage(value)
	}

	return result, rows.Err()
}

// CountByVersion returns the number of responses referencing a version
func (r *ResponseRepository) CountByVersion(ctx context.Context, versionID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE version_id = $1`, versionID).Scan(&count)
	return count, err
}

// CountByQuestionnaire returns the number of responses to any version of a questionnaire
func (r *ResponseRepository) CountByQuestionnaire(ctx context.Context, questionnaireID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM responses r
		JOIN questionnaire_versions v ON v.id = r.version_id
		WHERE v.questionnaire_id = $1
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, questionnaireID).Scan(&count)
	return count, err
}

func filterClause(versionID int64, filter ResponseFilter) (string, []any) {
	conditions := []string{"r.version_id = $1"}
	args := []any{versionID}

	if code := strings.TrimSpace(filter.UserCode); code != "" {
		args = append(args, "%"+escapeLike(code)+"%")
		conditions = append(conditions, fmt.Sprintf("u.codigo_estudiante ILIKE $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.OnlyFinalized {
		conditions = append(conditions, "r.status = 'finalized'")
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Count returns the number of responses of a version matching the filter
func (r *ResponseRepository) Count(ctx context.Context, versionID int64, filter ResponseFilter) (int, error) {
	where, args := filterClause(versionID, filter)
	query := `SELECT COUNT(*) FROM responses r JOIN users u ON u.id_usuario = r.user_id` + where

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// List returns responses of a version matching the filter ordered by ID.
// A limit below 1 returns every matching row.
func (r *ResponseRepository) List(ctx context.Context, versionID int64, filter ResponseFilter, limit, offset int) ([]models.Response, error) {
	where, args := filterClause(versionID, filter)
	query := responseSelect + where + ` ORDER BY r.id`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	responses := []models.Response{}
	for rows.Next() {
		var resp models.Response
		if err := scanResponse(rows, &resp); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	return responses, rows.Err()
}

// UpdateScore stores the scoring outcome of a response
func (r *ResponseRepository) UpdateScore(ctx context.Context, responseID int64, result models.MLResult, at time.Time) error {
	query := `
		UPDATE responses
		SET ml_prob = $2, ml_decision = $3, ml_label = $4, ml_status = $5, ml_reason = $6, ml_scored_at = $7
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, responseID, result.Prob, result.Decision, result.Label, result.Status, result.Reason, at)
	return err
}
