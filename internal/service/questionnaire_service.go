package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"orienta/internal/database"
	"orienta/internal/models"
	"orienta/internal/repository"
	"orienta/pkg/validator"
)

// CreateQuestionnaireInput holds the fields of a new questionnaire
type CreateQuestionnaireInput struct {
	Code        string
	Title       string
	Description string
}

// UpdateQuestionnaireInput holds the optional fields of a questionnaire update
type UpdateQuestionnaireInput struct {
	Title       *string
	Description *string
	Status      *string
}

// QuestionnaireService handles the questionnaire catalogue and the primary designation
type QuestionnaireService struct {
	db                *sql.DB
	questionnaireRepo *repository.QuestionnaireRepository
	versionRepo       *repository.VersionRepository
	responseRepo      *repository.ResponseRepository
}

// NewQuestionnaireService creates a new questionnaire service
func NewQuestionnaireService(
	db *sql.DB,
	questionnaireRepo *repository.QuestionnaireRepository,
	versionRepo *repository.VersionRepository,
	responseRepo *repository.ResponseRepository,
) *QuestionnaireService {
	return &QuestionnaireService{
		db:                db,
		questionnaireRepo: questionnaireRepo,
		versionRepo:       versionRepo,
		responseRepo:      responseRepo,
	}
}

// NormalizeCode trims and lower-cases a questionnaire code
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Create creates an active, non-primary questionnaire
func (s *QuestionnaireService) Create(ctx context.Context, in CreateQuestionnaireInput) (*models.Questionnaire, error) {
	code := NormalizeCode(in.Code)
	if err := validator.ValidateQuestionnaireCode(code); err != nil {
		return nil, &ValidationError{Message: "invalid questionnaire", Fields: map[string]string{"code": err.Error()}}
	}
	title := validator.SanitizeString(in.Title)
	if title == "" {
		return nil, &ValidationError{Message: "invalid questionnaire", Fields: map[string]string{"title": "is required"}}
	}

	q := &models.Questionnaire{
		Code:        code,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      models.QuestionnaireActive,
	}

	if err := s.questionnaireRepo.Create(ctx, q); err != nil {
		if database.IsUniqueViolation(err, "questionnaires_code_key") {
			return nil, &ConflictError{
				Reason:  ReasonQuestionnaireExists,
				Message: fmt.Sprintf("questionnaire %q already exists", code),
			}
		}
		return nil, upstream("create questionnaire", err)
	}

	return q, nil
}

// List returns every questionnaire
func (s *QuestionnaireService) List(ctx context.Context) ([]models.Questionnaire, error) {
	questionnaires, err := s.questionnaireRepo.List(ctx)
	if err != nil {
		return nil, upstream("list questionnaires", err)
	}
	return questionnaires, nil
}

// Get returns a questionnaire with its versions
func (s *QuestionnaireService) Get(ctx context.Context, code string) (*models.QuestionnaireDetail, error) {
	q, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	versions, err := s.versionRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, upstream("list versions", err)
	}

	detail := &models.QuestionnaireDetail{Questionnaire: *q, Versions: versions}
	for _, v := range versions {
		if v.IsLatestPublished {
			id := v.ID
			detail.LatestPublishedVersionID = &id
		}
	}
	return detail, nil
}

func (s *QuestionnaireService) getByCode(ctx context.Context, code string) (*models.Questionnaire, error) {
	q, err := s.questionnaireRepo.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, upstream("get questionnaire", err)
	}
	if q == nil {
		return nil, &NotFoundError{Resource: "questionnaire", Key: code}
	}
	return q, nil
}

// Update changes title, description and status
func (s *QuestionnaireService) Update(ctx context.Context, code string, in UpdateQuestionnaireInput) (*models.Questionnaire, error) {
	q, err := s.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := validator.SanitizeString(*in.Title)
		if title == "" {
			return nil, &ValidationError{Message: "invalid questionnaire", Fields: map[string]string{"title": "is required"}}
		}
		q.Title = title
	}
	if in.Description != nil {
		q.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if status != models.QuestionnaireActive && status != models.QuestionnaireInactive {
			return nil, &ValidationError{Message: "invalid questionnaire", Fields: map[string]string{"status": "must be active or inactive"}}
		}
		q.Status = status
	}

	if err := s.questionnaireRepo.Update(ctx, q); err != nil {
		return nil, upstream("update questionnaire", err)
	}
	return q, nil
}

// Delete removes a questionnaire whose versions are all drafts without responses
func (s *QuestionnaireService) Delete(ctx context.Context, code string) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		questionnaireRepo := s.questionnaireRepo.WithTx(tx)

		q, err := questionnaireRepo.GetByCodeForUpdate(ctx, NormalizeCode(code))
		if err != nil {
			return err
		}
		if q == nil {
			return &NotFoundError{Resource: "questionnaire", Key: code}
		}

		nonDraft, err := s.versionRepo.WithTx(tx).CountNonDraft(ctx, q.ID)
		if err != nil {
			return err
		}
		if nonDraft > 0 {
			return &ConflictError{
				Reason:  ReasonQuestionnaireHasPublished,
				Message: fmt.Sprintf("questionnaire %q has published versions", q.Code),
			}
		}

		responses, err := s.responseRepo.WithTx(tx).CountByQuestionnaire(ctx, q.ID)
		if err != nil {
			return err
		}
		if responses > 0 {
			return &ConflictError{
				Reason:  ReasonQuestionnaireHasResponses,
				Message: fmt.Sprintf("questionnaire %q has %d responses", q.Code, responses),
			}
		}

		return questionnaireRepo.Delete(ctx, q.ID)
	})
	return upstream("delete questionnaire", err)
}

// SetPrimary designates or clears the primary questionnaire.
// Setting fails when a different questionnaire already holds the flag.
func (s *QuestionnaireService) SetPrimary(ctx context.Context, code string, primary bool) (*models.Questionnaire, error) {
	var result *models.Questionnaire

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.questionnaireRepo.WithTx(tx)

		q, err := repo.GetByCodeForUpdate(ctx, NormalizeCode(code))
		if err != nil {
			return err
		}
		if q == nil {
			return &NotFoundError{Resource: "questionnaire", Key: code}
		}

		if primary {
			current, err := repo.GetPrimaryForUpdate(ctx)
			if err != nil {
				return err
			}
			if current != nil && current.ID != q.ID {
				return &ConflictError{
					Reason:  ReasonAnotherPrimaryExists,
					Message: fmt.Sprintf("questionnaire %q is already primary", current.Code),
				}
			}
			if err := repo.ClearPrimaryExcept(ctx, q.ID); err != nil {
				return err
			}
		}

		if err := repo.SetPrimary(ctx, q.ID, primary); err != nil {
			if database.IsUniqueViolation(err, "questionnaires_single_primary") {
				return &ConflictError{
					Reason:  ReasonAnotherPrimaryExists,
					Message: "another questionnaire became primary concurrently",
				}
			}
			return err
		}

		q.IsPrimary = primary
		result = q
		return nil
	})
	if err != nil {
		return nil, upstream("set primary questionnaire", err)
	}

	return result, nil
}
