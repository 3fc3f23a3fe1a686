package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"orienta/internal/database"
	"orienta/internal/models"
	"orienta/internal/repository"
	"orienta/pkg/validator"
)

// ReservedColumns are the fixed columns of the wide report; question codes may not reuse them
var ReservedColumns = []string{
	"response_id", "assignment_id", "user_code", "status",
	"started_at", "submitted_at", "finalized_at", "last_activity_at",
	"ml_prob", "ml_decision", "ml_label", "ml_status", "ml_reason",
}

// SectionInput holds the editable fields of a section
type SectionInput struct {
	Title       string
	Description string
}

// QuestionInput holds the editable fields of a question
type QuestionInput struct {
	Code            string
	Text            string
	Type            models.QuestionType
	Required        bool
	Order           *int
	ValidationRules json.RawMessage
	VisibleIf       json.RawMessage
	Options         []OptionInput
}

// OptionInput holds the editable fields of an option
type OptionInput struct {
	Value   string
	Label   string
	Order   *int
	IsOther bool
}

// StructureService authors sections, questions and options of draft versions
type StructureService struct {
	db                *sql.DB
	questionnaireRepo *repository.QuestionnaireRepository
	versionRepo       *repository.VersionRepository
	structureRepo     *repository.StructureRepository
	responseRepo      *repository.ResponseRepository
}

// NewStructureService creates a new structure service
func NewStructureService(
	db *sql.DB,
	questionnaireRepo *repository.QuestionnaireRepository,
	versionRepo *repository.VersionRepository,
	structureRepo *repository.StructureRepository,
	responseRepo *repository.ResponseRepository,
) *StructureService {
	return &StructureService{
		db:                db,
		questionnaireRepo: questionnaireRepo,
		versionRepo:       versionRepo,
		structureRepo:     structureRepo,
		responseRepo:      responseRepo,
	}
}

// editable locks the version and rejects published ones. A draft that was
// unpublished after collecting answers stays frozen so stored answers keep
// referencing existing questions.
func (s *StructureService) editable(ctx context.Context, tx *sql.Tx, versionID int64) (*models.Version, error) {
	v, err := lockVersion(ctx, tx, s.questionnaireRepo, s.versionRepo, versionID)
	if err != nil {
		return nil, err
	}
	if v.IsPublished() {
		return nil, &InvalidStateError{
			Reason:  ReasonVersionNotEditable,
			Message: fmt.Sprintf("version %d is published; clone it to make changes", versionID),
		}
	}

	responses, err := s.responseRepo.WithTx(tx).CountByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if responses > 0 {
		return nil, &ConflictError{
			Reason:  ReasonVersionHasResponses,
			Message: fmt.Sprintf("version %d has %d responses; clone it to make changes", versionID, responses),
		}
	}
	return v, nil
}

func (s *StructureService) inTx(ctx context.Context, op string, fn func(tx *sql.Tx, repo *repository.StructureRepository) error) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(tx, s.structureRepo.WithTx(tx))
	})
	return upstream(op, err)
}

// Sections

// CreateSection appends a section to a draft version
func (s *StructureService) CreateSection(ctx context.Context, versionID int64, in SectionInput) (*models.Section, error) {
	title := validator.SanitizeString(in.Title)
	if title == "" {
		return nil, &ValidationError{Message: "invalid section", Fields: map[string]string{"title": "is required"}}
	}

	section := &models.Section{
		VersionID:   versionID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Questions:   []models.Question{},
	}

	err := s.inTx(ctx, "create section", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		if _, err := s.editable(ctx, tx, versionID); err != nil {
			return err
		}
		order, err := repo.NextSectionOrder(ctx, versionID)
		if err != nil {
			return err
		}
		section.Order = order
		return repo.CreateSection(ctx, section)
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

// UpdateSection changes title and description of a section
func (s *StructureService) UpdateSection(ctx context.Context, id int64, in SectionInput) (*models.Section, error) {
	title := validator.SanitizeString(in.Title)
	if title == "" {
		return nil, &ValidationError{Message: "invalid section", Fields: map[string]string{"title": "is required"}}
	}

	var section *models.Section
	err := s.inTx(ctx, "update section", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		var err error
		section, err = s.lockSection(ctx, tx, repo, id)
		if err != nil {
			return err
		}
		section.Title = title
		section.Description = strings.TrimSpace(in.Description)
		return repo.UpdateSection(ctx, section)
	})
	if err != nil {
		return nil, err
	}
	return section, nil
}

// DeleteSection removes a section with its questions
func (s *StructureService) DeleteSection(ctx context.Context, id int64) error {
	return s.inTx(ctx, "delete section", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		if _, err := s.lockSection(ctx, tx, repo, id); err != nil {
			return err
		}
		return repo.DeleteSection(ctx, id)
	})
}

// ReorderSections swaps the order of two sections of the same version
func (s *StructureService) ReorderSections(ctx context.Context, versionID, firstID, secondID int64) ([]models.Section, error) {
	if firstID == secondID {
		return nil, NewValidationError("cannot swap a section with itself")
	}

	var sections []models.Section
	err := s.inTx(ctx, "reorder sections", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		if _, err := s.editable(ctx, tx, versionID); err != nil {
			return err
		}

		first, err := repo.GetSection(ctx, firstID)
		if err != nil {
			return err
		}
		second, err := repo.GetSection(ctx, secondID)
		if err != nil {
			return err
		}
		if first == nil || first.VersionID != versionID {
			return &NotFoundError{Resource: "section", Key: firstID}
		}
		if second == nil || second.VersionID != versionID {
			return &NotFoundError{Resource: "section", Key: secondID}
		}

		if err := repo.SwapSectionOrder(ctx, first, second); err != nil {
			return err
		}

		sections, err = repo.ListSections(ctx, versionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *StructureService) lockSection(ctx context.Context, tx *sql.Tx, repo *repository.StructureRepository, id int64) (*models.Section, error) {
	section, err := repo.GetSection(ctx, id)
	if err != nil {
		return nil, err
	}
	if section == nil {
		return nil, &NotFoundError{Resource: "section", Key: id}
	}
	if _, err := s.editable(ctx, tx, section.VersionID); err != nil {
		return nil, err
	}
	return section, nil
}

// Questions

func validateQuestionInput(in *QuestionInput) error {
	fields := map[string]string{}

	in.Code = strings.TrimSpace(in.Code)
	if err := validator.ValidateQuestionCode(in.Code); err != nil {
		fields["code"] = err.Error()
	}
	for _, reserved := range ReservedColumns {
		if strings.EqualFold(in.Code, reserved) {
			fields["code"] = fmt.Sprintf("%q is reserved", in.Code)
		}
	}

	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		fields["text"] = "is required"
	}
	if !in.Type.IsValid() {
		fields["type"] = fmt.Sprintf("must be one of %v", models.QuestionTypes)
	}
	if err := checkRulesDocument(in.ValidationRules); err != nil {
		fields["validation_rules"] = err.Error()
	}
	if err := checkVisibilityDocument(in.VisibleIf); err != nil {
		fields["visible_if"] = err.Error()
	}
	if len(in.Options) > 0 && !in.Type.IsChoice() {
		fields["options"] = "only choice questions take options"
	}
	for i := range in.Options {
		if err := validateOptionInput(&in.Options[i]); err != nil {
			fields[fmt.Sprintf("options[%d]", i)] = err.Error()
			continue
		}
		for j := 0; j < i; j++ {
			if in.Options[j].Value == in.Options[i].Value {
				fields[fmt.Sprintf("options[%d]", i)] = fmt.Sprintf("duplicate value %q", in.Options[i].Value)
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Message: "invalid question", Fields: fields}
	}
	if isEmptyDocument(in.ValidationRules) {
		in.ValidationRules = nil
	}
	if isEmptyDocument(in.VisibleIf) {
		in.VisibleIf = nil
	}
	return nil
}

func validateOptionInput(in *OptionInput) error {
	in.Value = strings.TrimSpace(in.Value)
	in.Label = strings.TrimSpace(in.Label)
	if in.Value == "" {
		return fmt.Errorf("value is required")
	}
	if in.Label == "" {
		in.Label = in.Value
	}
	return nil
}

func questionCodeConflict(err error, code string) error {
	if database.IsUniqueViolation(err, "questions_version_code_key") {
		return &ConflictError{
			Reason:  ReasonQuestionCodeExists,
			Message: fmt.Sprintf("question code %q already exists in this version", code),
		}
	}
	return err
}

func optionValueConflict(err error, value string) error {
	if database.IsUniqueViolation(err, "question_options_value_key") {
		return &ConflictError{
			Reason:  ReasonOptionValueExists,
			Message: fmt.Sprintf("option value %q already exists for this question", value),
		}
	}
	return err
}

// CreateQuestion adds a question, with optional inline options, to a section
func (s *StructureService) CreateQuestion(ctx context.Context, sectionID int64, in QuestionInput) (*models.Question, error) {
	if err := validateQuestionInput(&in); err != nil {
		return nil, err
	}

	var question *models.Question
	err := s.inTx(ctx, "create question", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		section, err := s.lockSection(ctx, tx, repo, sectionID)
		if err != nil {
			return err
		}

		order := 0
		if in.Order != nil {
			order = *in.Order
		} else if order, err = repo.NextQuestionOrder(ctx, sectionID); err != nil {
			return err
		}

		question = &models.Question{
			SectionID:       section.ID,
			VersionID:       section.VersionID,
			Code:            in.Code,
			Text:            in.Text,
			Type:            in.Type,
			Required:        in.Required,
			Order:           order,
			ValidationRules: in.ValidationRules,
			VisibleIf:       in.VisibleIf,
		}
		if err := repo.CreateQuestion(ctx, question); err != nil {
			return questionCodeConflict(err, in.Code)
		}

		for i, o := range in.Options {
			option := models.Option{
				QuestionID: question.ID,
				Value:      o.Value,
				Label:      o.Label,
				Order:      i + 1,
				IsOther:    o.IsOther,
			}
			if o.Order != nil {
				option.Order = *o.Order
			}
			if err := repo.CreateOption(ctx, &option); err != nil {
				return optionValueConflict(err, o.Value)
			}
			question.Options = append(question.Options, option)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// UpdateQuestion replaces the editable fields of a question. Options are kept unless
// the question stops being a choice question, in which case they are removed.
func (s *StructureService) UpdateQuestion(ctx context.Context, id int64, in QuestionInput) (*models.Question, error) {
	in.Options = nil
	if err := validateQuestionInput(&in); err != nil {
		return nil, err
	}

	var question *models.Question
	err := s.inTx(ctx, "update question", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		var err error
		question, err = s.lockQuestion(ctx, tx, repo, id)
		if err != nil {
			return err
		}

		question.Code = in.Code
		question.Text = in.Text
		question.Type = in.Type
		question.Required = in.Required
		question.ValidationRules = in.ValidationRules
		question.VisibleIf = in.VisibleIf
		if in.Order != nil {
			question.Order = *in.Order
		}

		if err := repo.UpdateQuestion(ctx, question); err != nil {
			return questionCodeConflict(err, in.Code)
		}
		if !question.Type.IsChoice() {
			return repo.DeleteOptionsOfQuestion(ctx, question.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return question, nil
}

// DeleteQuestion removes a question with its options
func (s *StructureService) DeleteQuestion(ctx context.Context, id int64) error {
	return s.inTx(ctx, "delete question", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		if _, err := s.lockQuestion(ctx, tx, repo, id); err != nil {
			return err
		}
		return repo.DeleteQuestion(ctx, id)
	})
}

func (s *StructureService) lockQuestion(ctx context.Context, tx *sql.Tx, repo *repository.StructureRepository, id int64) (*models.Question, error) {
	question, err := repo.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if question == nil {
		return nil, &NotFoundError{Resource: "question", Key: id}
	}
	if _, err := s.editable(ctx, tx, question.VersionID); err != nil {
		return nil, err
	}
	return question, nil
}

// Options

// CreateOption adds an option to a choice question
func (s *StructureService) CreateOption(ctx context.Context, questionID int64, in OptionInput) (*models.Option, error) {
	if err := validateOptionInput(&in); err != nil {
		return nil, &ValidationError{Message: "invalid option", Fields: map[string]string{"value": "is required"}}
	}

	var option *models.Option
	err := s.inTx(ctx, "create option", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		question, err := s.lockQuestion(ctx, tx, repo, questionID)
		if err != nil {
			return err
		}
		if !question.Type.IsChoice() {
			return NewValidationError("question %q of type %s does not take options", question.Code, question.Type)
		}

		option = &models.Option{
			QuestionID: questionID,
			Value:      in.Value,
			Label:      in.Label,
			IsOther:    in.IsOther,
		}
		if in.Order != nil {
			option.Order = *in.Order
		} else if option.Order, err = repo.NextOptionOrder(ctx, questionID); err != nil {
			return err
		}

		if err := repo.CreateOption(ctx, option); err != nil {
			return optionValueConflict(err, in.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return option, nil
}

// UpdateOption changes an option
func (s *StructureService) UpdateOption(ctx context.Context, id int64, in OptionInput) (*models.Option, error) {
	if err := validateOptionInput(&in); err != nil {
		return nil, &ValidationError{Message: "invalid option", Fields: map[string]string{"value": "is required"}}
	}

	var option *models.Option
	err := s.inTx(ctx, "update option", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		var err error
		option, err = s.lockOption(ctx, tx, repo, id)
		if err != nil {
			return err
		}

		option.Value = in.Value
		option.Label = in.Label
		option.IsOther = in.IsOther
		if in.Order != nil {
			option.Order = *in.Order
		}

		if err := repo.UpdateOption(ctx, option); err != nil {
			return optionValueConflict(err, in.Value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return option, nil
}

// DeleteOption removes an option
func (s *StructureService) DeleteOption(ctx context.Context, id int64) error {
	return s.inTx(ctx, "delete option", func(tx *sql.Tx, repo *repository.StructureRepository) error {
		if _, err := s.lockOption(ctx, tx, repo, id); err != nil {
			return err
		}
		return repo.DeleteOption(ctx, id)
	})
}

func (s *StructureService) lockOption(ctx context.Context, tx *sql.Tx, repo *repository.StructureRepository, id int64) (*models.Option, error) {
	option, err := repo.GetOption(ctx, id)
	if err != nil {
		return nil, err
	}
	if option == nil {
		return nil, &NotFoundError{Resource: "option", Key: id}
	}
	if _, err := s.lockQuestion(ctx, tx, repo, option.QuestionID); err != nil {
		return nil, err
	}
	return option, nil
}
