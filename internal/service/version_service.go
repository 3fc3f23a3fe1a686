package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"orienta/internal/database"
	"orienta/internal/models"
	"orienta/internal/repository"
)

// VersionService manages the lifecycle of questionnaire versions
type VersionService struct {
	db                *sql.DB
	questionnaireRepo *repository.QuestionnaireRepository
	versionRepo       *repository.VersionRepository
	structureRepo     *repository.StructureRepository
	responseRepo      *repository.ResponseRepository
}

// NewVersionService creates a new version service
func NewVersionService(
	db *sql.DB,
	questionnaireRepo *repository.QuestionnaireRepository,
	versionRepo *repository.VersionRepository,
	structureRepo *repository.StructureRepository,
	responseRepo *repository.ResponseRepository,
) *VersionService {
	return &VersionService{
		db:                db,
		questionnaireRepo: questionnaireRepo,
		versionRepo:       versionRepo,
		structureRepo:     structureRepo,
		responseRepo:      responseRepo,
	}
}

// lockVersion loads a version inside tx after locking its questionnaire row,
// so lifecycle changes of one questionnaire are serialized
func lockVersion(ctx context.Context, tx *sql.Tx, questionnaireRepo *repository.QuestionnaireRepository, versionRepo *repository.VersionRepository, id int64) (*models.Version, error) {
	v, err := versionRepo.WithTx(tx).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "version", Key: id}
	}

	if _, err := questionnaireRepo.WithTx(tx).GetByIDForUpdate(ctx, v.QuestionnaireID); err != nil {
		return nil, err
	}

	// Reload: the version may have changed while waiting for the lock
	v, err = versionRepo.WithTx(tx).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "version", Key: id}
	}
	return v, nil
}

// CreateVersion allocates the next draft version of a questionnaire
func (s *VersionService) CreateVersion(ctx context.Context, code string) (*models.Version, error) {
	var id int64

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		q, err := s.questionnaireRepo.WithTx(tx).GetByCodeForUpdate(ctx, NormalizeCode(code))
		if err != nil {
			return err
		}
		if q == nil {
			return &NotFoundError{Resource: "questionnaire", Key: code}
		}

		v, err := s.newDraft(ctx, tx, q.ID, nil)
		if err != nil {
			return err
		}
		id = v.ID
		return nil
	})
	if err != nil {
		return nil, upstream("create version", err)
	}

	return s.getVersion(ctx, id)
}

func (s *VersionService) newDraft(ctx context.Context, tx *sql.Tx, questionnaireID int64, metadata json.RawMessage) (*models.Version, error) {
	versionRepo := s.versionRepo.WithTx(tx)

	number, err := versionRepo.NextNumber(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}

	v := &models.Version{
		QuestionnaireID: questionnaireID,
		Number:          number,
		Status:          models.VersionDraft,
		Metadata:        metadata,
	}
	if err := versionRepo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// CloneVersion deep-copies the structure and metadata of a version into a new draft
func (s *VersionService) CloneVersion(ctx context.Context, sourceID int64) (*models.Version, error) {
	var id int64

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		source, err := lockVersion(ctx, tx, s.questionnaireRepo, s.versionRepo, sourceID)
		if err != nil {
			return err
		}

		structureRepo := s.structureRepo.WithTx(tx)
		sections, err := structureRepo.GetStructure(ctx, source.ID)
		if err != nil {
			return err
		}

		clone, err := s.newDraft(ctx, tx, source.QuestionnaireID, source.Metadata)
		if err != nil {
			return err
		}

		if err := copyStructure(ctx, structureRepo, clone.ID, sections); err != nil {
			return err
		}

		id = clone.ID
		return nil
	})
	if err != nil {
		return nil, upstream("clone version", err)
	}

	return s.getVersion(ctx, id)
}

// copyStructure inserts sections, questions and options under the target version,
// keeping codes, texts and orders
func copyStructure(ctx context.Context, repo *repository.StructureRepository, versionID int64, sections []models.Section) error {
	for _, section := range sections {
		newSection := models.Section{
			VersionID:   versionID,
			Title:       section.Title,
			Description: section.Description,
			Order:       section.Order,
		}
		if err := repo.CreateSection(ctx, &newSection); err != nil {
			return fmt.Errorf("copy section %q: %w", section.Title, err)
		}

		for _, question := range section.Questions {
			newQuestion := question
			newQuestion.ID = 0
			newQuestion.SectionID = newSection.ID
			newQuestion.VersionID = versionID
			if err := repo.CreateQuestion(ctx, &newQuestion); err != nil {
				return fmt.Errorf("copy question %q: %w", question.Code, err)
			}

			for _, option := range question.Options {
				newOption := option
				newOption.ID = 0
				newOption.QuestionID = newQuestion.ID
				if err := repo.CreateOption(ctx, &newOption); err != nil {
					return fmt.Errorf("copy option %q of %q: %w", option.Value, question.Code, err)
				}
			}
		}
	}
	return nil
}

// Publish moves a draft to published and makes it the latest published version
func (s *VersionService) Publish(ctx context.Context, id int64) (*models.Version, error) {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		v, err := lockVersion(ctx, tx, s.questionnaireRepo, s.versionRepo, id)
		if err != nil {
			return err
		}
		if v.IsPublished() {
			return &InvalidStateError{
				Reason:  ReasonVersionAlreadyPublished,
				Message: fmt.Sprintf("version %d is already published", id),
			}
		}

		now := time.Now().UTC()
		return s.versionRepo.WithTx(tx).UpdateStatus(ctx, id, models.VersionPublished, &now)
	})
	if err != nil {
		return nil, upstream("publish version", err)
	}

	return s.getVersion(ctx, id)
}

// Unpublish moves a published version back to draft
func (s *VersionService) Unpublish(ctx context.Context, id int64) (*models.Version, error) {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		v, err := lockVersion(ctx, tx, s.questionnaireRepo, s.versionRepo, id)
		if err != nil {
			return err
		}
		if !v.IsPublished() {
			return &InvalidStateError{
				Reason:  ReasonVersionNotPublished,
				Message: fmt.Sprintf("version %d is not published", id),
			}
		}

		return s.versionRepo.WithTx(tx).UpdateStatus(ctx, id, models.VersionDraft, nil)
	})
	if err != nil {
		return nil, upstream("unpublish version", err)
	}

	return s.getVersion(ctx, id)
}

// SetStatus dispatches a status change to Publish or Unpublish
func (s *VersionService) SetStatus(ctx context.Context, id int64, status string) (*models.Version, error) {
	switch strings.TrimSpace(status) {
	case models.VersionPublished:
		return s.Publish(ctx, id)
	case models.VersionDraft:
		return s.Unpublish(ctx, id)
	default:
		return nil, &ValidationError{
			Message: "invalid version status",
			Fields:  map[string]string{"status": "must be draft or published"},
		}
	}
}

// DeleteVersion removes a version that is neither the latest published one nor
// referenced by responses, then closes the numbering gap
func (s *VersionService) DeleteVersion(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		v, err := lockVersion(ctx, tx, s.questionnaireRepo, s.versionRepo, id)
		if err != nil {
			return err
		}

		if v.IsLatestPublished {
			return &ConflictError{
				Reason:  ReasonVersionIsLatestPublished,
				Message: fmt.Sprintf("version %d is the latest published version of %q", id, v.QuestionnaireCode),
			}
		}

		responses, err := s.responseRepo.WithTx(tx).CountByVersion(ctx, id)
		if err != nil {
			return err
		}
		if responses > 0 {
			return &ConflictError{
				Reason:  ReasonVersionHasResponses,
				Message: fmt.Sprintf("version %d has %d responses", id, responses),
			}
		}

		versionRepo := s.versionRepo.WithTx(tx)
		if err := versionRepo.Delete(ctx, id); err != nil {
			return err
		}
		return versionRepo.ShiftNumbersDown(ctx, v.QuestionnaireID, v.Number)
	})
	return upstream("delete version", err)
}

// UpdateMetadata replaces the metadata document of a version
func (s *VersionService) UpdateMetadata(ctx context.Context, id int64, metadata json.RawMessage) (*models.Version, error) {
	var doc map[string]any
	if err := json.Unmarshal(metadata, &doc); err != nil || doc == nil {
		return nil, &ValidationError{
			Message: "invalid metadata",
			Fields:  map[string]string{"metadata": "must be a JSON object"},
		}
	}

	v, err := s.getVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.versionRepo.UpdateMetadata(ctx, v.ID, metadata); err != nil {
		return nil, upstream("update metadata", err)
	}

	return s.getVersion(ctx, id)
}

// GetVersion returns a version with its full structure
func (s *VersionService) GetVersion(ctx context.Context, id int64) (*models.VersionDetail, error) {
	v, err := s.getVersion(ctx, id)
	if err != nil {
		return nil, err
	}

	sections, err := s.structureRepo.GetStructure(ctx, id)
	if err != nil {
		return nil, upstream("load structure", err)
	}

	return &models.VersionDetail{Version: *v, Sections: sections}, nil
}

func (s *VersionService) getVersion(ctx context.Context, id int64) (*models.Version, error) {
	v, err := s.versionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, upstream("get version", err)
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "version", Key: id}
	}
	return v, nil
}
