package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"orienta/internal/models"
)

// StructureRepository handles sections, questions and options of a version
type StructureRepository struct {
	db DBTX
}

// NewStructureRepository creates a new structure repository
func NewStructureRepository(db DBTX) *StructureRepository {
	return &StructureRepository{db: db}
}

// WithTx returns a repository bound to the transaction
func (r *StructureRepository) WithTx(tx *sql.Tx) *StructureRepository {
	return &StructureRepository{db: tx}
}

// Sections

// NextSectionOrder returns the order a section appended to the version receives
func (r *StructureRepository) NextSectionOrder(ctx context.Context, versionID int64) (int, error) {
	var next int
	query := `SELECT COALESCE(MAX(sort_order), 0) + 1 FROM sections WHERE version_id = $1`
	err := r.db.QueryRowContext(ctx, query, versionID).Scan(&next)
	return next, err
}

// CreateSection inserts a section
func (r *StructureRepository) CreateSection(ctx context.Context, s *models.Section) error {
	query := `
		INSERT INTO sections (version_id, title, description, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query, s.VersionID, s.Title, s.Description, s.Order).Scan(&s.ID)
}

// GetSection retrieves a section by ID
func (r *StructureRepository) GetSection(ctx context.Context, id int64) (*models.Section, error) {
	query := `SELECT id, version_id, title, description, sort_order FROM sections WHERE id = $1`

	s := &models.Section{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.VersionID, &s.Title, &s.Description, &s.Order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSections retrieves the sections of a version in display order
func (r *StructureRepository) ListSections(ctx context.Context, versionID int64) ([]models.Section, error) {
	query := `
		SELECT id, version_id, title, description, sort_order
		FROM sections
		WHERE version_id = $1
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	sections := []models.Section{}
	for rows.Next() {
		var s models.Section
		if err := rows.Scan(&s.ID, &s.VersionID, &s.Title, &s.Description, &s.Order); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}

	return sections, rows.Err()
}

// UpdateSection updates title and description of a section
func (r *StructureRepository) UpdateSection(ctx context.Context, s *models.Section) error {
	query := `UPDATE sections SET title = $2, description = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.Title, s.Description)
	return err
}

// SwapSectionOrder exchanges the order of two sections
func (r *StructureRepository) SwapSectionOrder(ctx context.Context, a, b *models.Section) error {
	query := `
		UPDATE sections
		SET sort_order = CASE WHEN id = $1 THEN $4::int ELSE $3::int END
		WHERE id IN ($1, $2)
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, b.ID, a.Order, b.Order)
	return err
}

// DeleteSection removes a section and its questions
func (r *StructureRepository) DeleteSection(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	return err
}

// Questions

const questionColumns = `q.id, q.section_id, q.version_id, q.code, q.text, q.type, q.required,
	q.sort_order, q.validation_rules, q.visible_if`

func scanQuestion(row rowScanner, q *models.Question) error {
	var rules, visibleIf []byte
	err := row.Scan(
		&q.ID,
		&q.SectionID,
		&q.VersionID,
		&q.Code,
		&q.Text,
		&q.Type,
		&q.Required,
		&q.Order,
		&rules,
		&visibleIf,
	)
	if err != nil {
		return err
	}
	if len(rules) > 0 {
		q.ValidationRules = json.RawMessage(rules)
	}
	if len(visibleIf) > 0 {
		q.VisibleIf = json.RawMessage(visibleIf)
	}
	return nil
}

// NextQuestionOrder returns the order a question appended to the section receives
func (r *StructureRepository) NextQuestionOrder(ctx context.Context, sectionID int64) (int, error) {
	var next int
	query := `SELECT COALESCE(MAX(sort_order), 0) + 1 FROM questions WHERE section_id = $1`
	err := r.db.QueryRowContext(ctx, query, sectionID).Scan(&next)
	return next, err
}

// CreateQuestion inserts a question
func (r *StructureRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	query := `
		INSERT INTO questions (section_id, version_id, code, text, type, required, sort_order, validation_rules, visible_if)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		q.SectionID,
		q.VersionID,
		q.Code,
		q.Text,
		q.Type,
		q.Required,
		q.Order,
		nullJSON(q.ValidationRules),
		nullJSON(q.VisibleIf),
	).Scan(&q.ID)
}

// GetQuestion retrieves a question by ID
func (r *StructureRepository) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions q WHERE q.id = $1`

	q := &models.Question{}
	err := scanQuestion(r.db.QueryRowContext(ctx, query, id), q)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions retrieves the questions of a version ordered by section and question order
func (r *StructureRepository) ListQuestions(ctx context.Context, versionID int64) ([]models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		JOIN sections s ON s.id = q.section_id
		WHERE q.version_id = $1
		ORDER BY s.sort_order, s.id, q.sort_order, q.id
	`

	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	questions := []models.Question{}
	for rows.Next() {
		var q models.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}

// UpdateQuestion updates every editable field of a question
func (r *StructureRepository) UpdateQuestion(ctx context.Context, q *models.Question) error {
	query := `
		UPDATE questions
		SET code = $2, text = $3, type = $4, required = $5, sort_order = $6,
		    validation_rules = $7, visible_if = $8
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID,
		q.Code,
		q.Text,
		q.Type,
		q.Required,
		q.Order,
		nullJSON(q.ValidationRules),
		nullJSON(q.VisibleIf),
	)
	return err
}

// DeleteQuestion removes a question and its options
func (r *StructureRepository) DeleteQuestion(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}

// DeleteOptionsOfQuestion removes every option of a question
func (r *StructureRepository) DeleteOptionsOfQuestion(ctx context.Context, questionID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, questionID)
	return err
}

// Options

// NextOptionOrder returns the order an option appended to the question receives
func (r *StructureRepository) NextOptionOrder(ctx context.Context, questionID int64) (int, error) {
	var next int
	query := `SELECT COALESCE(MAX(sort_order), 0) + 1 FROM question_options WHERE question_id = $1`
	err := r.db.QueryRowContext(ctx, query, questionID).Scan(&next)
	return next, err
}

// CreateOption inserts an option
func (r *StructureRepository) CreateOption(ctx context.Context, o *models.Option) error {
	query := `
		INSERT INTO question_options (question_id, value, label, sort_order, is_other)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query, o.QuestionID, o.Value, o.Label, o.Order, o.IsOther).Scan(&o.ID)
}

// GetOption retrieves an option by ID
func (r *StructureRepository) GetOption(ctx context.Context, id int64) (*models.Option, error) {
	query := `SELECT id, question_id, value, label, sort_order, is_other FROM question_options WHERE id = $1`

	o := &models.Option{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.Order, &o.IsOther)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOptions retrieves every option of a version's questions
func (r *StructureRepository) ListOptions(ctx context.Context, versionID int64) ([]models.Option, error) {
	query := `
		SELECT o.id, o.question_id, o.value, o.label, o.sort_order, o.is_other
		FROM question_options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.version_id = $1
		ORDER BY o.question_id, o.sort_order, o.id
	`

	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	options := []models.Option{}
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.Order, &o.IsOther); err != nil {
			return nil, err
		}
		options = append(options, o)
	}

	return options, rows.Err()
}

// UpdateOption updates an option
func (r *StructureRepository) UpdateOption(ctx context.Context, o *models.Option) error {
	query := `UPDATE question_options SET value = $2, label = $3, sort_order = $4, is_other = $5 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, o.ID, o.Value, o.Label, o.Order, o.IsOther)
	return err
}

// DeleteOption removes an option
func (r *StructureRepository) DeleteOption(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM question_options WHERE id = $1`, id)
	return err
}

// GetStructure loads sections, questions and options of a version as a tree
func (r *StructureRepository) GetStructure(ctx context.Context, versionID int64) ([]models.Section, error) {
	sections, err := r.ListSections(ctx, versionID)
	if err != nil {
		return nil, err
	}
	questions, err := r.ListQuestions(ctx, versionID)
	if err != nil {
		return nil, err
	}
	options, err := r.ListOptions(ctx, versionID)
	if err != nil {
		return nil, err
	}

	return AssembleStructure(sections, questions, options), nil
}

// AssembleStructure nests questions into sections and options into questions,
// keeping the order of the input slices
func AssembleStructure(sections []models.Section, questions []models.Question, options []models.Option) []models.Section {
	optionsByQuestion := make(map[int64][]models.Option)
	for _, o := range options {
		optionsByQuestion[o.QuestionID] = append(optionsByQuestion[o.QuestionID], o)
	}

	questionsBySection := make(map[int64][]models.Question)
	for _, q := range questions {
		q.Options = optionsByQuestion[q.ID]
		questionsBySection[q.SectionID] = append(questionsBySection[q.SectionID], q)
	}

	result := make([]models.Section, len(sections))
	for i, s := range sections {
		s.Questions = questionsBySection[s.ID]
		if s.Questions == nil {
			s.Questions = []models.Question{}
		}
		result[i] = s
	}
	return result
}
