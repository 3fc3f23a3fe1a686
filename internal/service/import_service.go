package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"orienta/internal/models"
	"orienta/pkg/validator"
)

// Definition is a questionnaire described in a YAML file
type Definition struct {
	Code        string              `yaml:"code"`
	Title       string              `yaml:"title"`
	Description string              `yaml:"description"`
	Metadata    map[string]any      `yaml:"metadata"`
	Sections    []SectionDefinition `yaml:"sections"`
}

// SectionDefinition is one section of a definition
type SectionDefinition struct {
	Title       string               `yaml:"title"`
	Description string               `yaml:"description"`
	Questions   []QuestionDefinition `yaml:"questions"`
}

// QuestionDefinition is one question of a definition
type QuestionDefinition struct {
	Code            string             `yaml:"code"`
	Text            string             `yaml:"text"`
	Type            string             `yaml:"type"`
	Required        bool               `yaml:"required"`
	ValidationRules map[string]any     `yaml:"validation_rules"`
	VisibleIf       map[string]any     `yaml:"visible_if"`
	Options         []OptionDefinition `yaml:"options"`
}

// OptionDefinition is one option of a choice question
type OptionDefinition struct {
	Value   string `yaml:"value"`
	Label   string `yaml:"label"`
	IsOther bool   `yaml:"is_other"`
}

// ImportOptions controls what happens after the draft is built
type ImportOptions struct {
	Publish bool
	Primary bool
}

// ImportResult reports what an import created
type ImportResult struct {
	Questionnaire        *models.Questionnaire `json:"questionnaire"`
	Version              *models.Version       `json:"version"`
	CreatedQuestionnaire bool                  `json:"created_questionnaire"`
	Sections             int                   `json:"sections"`
	Questions            int                   `json:"questions"`
}

// ParseDefinition decodes a YAML definition, rejecting unknown keys
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, NewValidationError("invalid definition: %v", err)
	}
	return &def, nil
}

func toJSON(doc map[string]any) (json.RawMessage, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// questionInputs converts and validates every question of the definition
func (d *Definition) questionInputs() ([][]QuestionInput, error) {
	fields := map[string]string{}
	seen := map[string]string{}
	inputs := make([][]QuestionInput, len(d.Sections))

	for i, sec := range d.Sections {
		if validator.SanitizeString(sec.Title) == "" {
			fields[fmt.Sprintf("sections[%d].title", i)] = "is required"
		}

		for j, qd := range sec.Questions {
			path := fmt.Sprintf("sections[%d].questions[%d]", i, j)

			rules, err := toJSON(qd.ValidationRules)
			if err != nil {
				fields[path+".validation_rules"] = err.Error()
				continue
			}
			visibleIf, err := toJSON(qd.VisibleIf)
			if err != nil {
				fields[path+".visible_if"] = err.Error()
				continue
			}

			in := QuestionInput{
				Code:            qd.Code,
				Text:            qd.Text,
				Type:            models.QuestionType(qd.Type),
				Required:        qd.Required,
				ValidationRules: rules,
				VisibleIf:       visibleIf,
			}
			for _, od := range qd.Options {
				in.Options = append(in.Options, OptionInput{Value: od.Value, Label: od.Label, IsOther: od.IsOther})
			}

			if err := validateQuestionInput(&in); err != nil {
				fields[path] = err.Error()
				continue
			}
			if prev, dup := seen[in.Code]; dup {
				fields[path+".code"] = fmt.Sprintf("duplicates %s", prev)
				continue
			}
			seen[in.Code] = path
			inputs[i] = append(inputs[i], in)
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Message: "invalid definition", Fields: fields}
	}
	return inputs, nil
}

// QuestionCount is the number of questions across all sections
func (d *Definition) QuestionCount() int {
	n := 0
	for _, sec := range d.Sections {
		n += len(sec.Questions)
	}
	return n
}

// Validate checks the definition without touching the database
func (d *Definition) Validate() error {
	fields := map[string]string{}
	if err := validator.ValidateQuestionnaireCode(NormalizeCode(d.Code)); err != nil {
		fields["code"] = err.Error()
	}
	if validator.SanitizeString(d.Title) == "" {
		fields["title"] = "is required"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "invalid definition", Fields: fields}
	}
	if _, err := toJSON(d.Metadata); err != nil {
		return &ValidationError{Message: "invalid definition", Fields: map[string]string{"metadata": err.Error()}}
	}

	_, err := d.questionInputs()
	return err
}

// ImportService creates questionnaires and versions from definitions through the
// authoring services
type ImportService struct {
	questionnaires *QuestionnaireService
	versions       *VersionService
	structure      *StructureService
}

// NewImportService creates a new import service
func NewImportService(questionnaires *QuestionnaireService, versions *VersionService, structure *StructureService) *ImportService {
	return &ImportService{
		questionnaires: questionnaires,
		versions:       versions,
		structure:      structure,
	}
}

// Import creates the questionnaire when absent and a new draft version holding the
// definition's structure. A failed import removes the partial draft.
func (s *ImportService) Import(ctx context.Context, def *Definition, opts ImportOptions) (*ImportResult, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	inputs, err := def.questionInputs()
	if err != nil {
		return nil, err
	}
	metadata, err := toJSON(def.Metadata)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	code := NormalizeCode(def.Code)

	if _, err := s.questionnaires.Get(ctx, code); err != nil {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		if _, err := s.questionnaires.Create(ctx, CreateQuestionnaireInput{
			Code:        code,
			Title:       def.Title,
			Description: def.Description,
		}); err != nil {
			return nil, err
		}
		result.CreatedQuestionnaire = true
	}

	version, err := s.versions.CreateVersion(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.fill(ctx, version.ID, def, inputs, metadata, result); err != nil {
		if delErr := s.versions.DeleteVersion(ctx, version.ID); delErr != nil {
			slog.Error("Failed to remove partial import", "version_id", version.ID, "error", delErr)
		}
		return nil, err
	}

	if opts.Publish {
		if version, err = s.versions.Publish(ctx, version.ID); err != nil {
			return nil, err
		}
	} else if version, err = s.versions.getVersion(ctx, version.ID); err != nil {
		return nil, err
	}
	result.Version = version

	var q *models.Questionnaire
	if opts.Primary {
		q, err = s.questionnaires.SetPrimary(ctx, code, true)
	} else {
		q, err = s.questionnaires.getByCode(ctx, code)
	}
	if err != nil {
		return nil, err
	}
	result.Questionnaire = q

	slog.Info("Imported questionnaire definition",
		"code", code,
		"version_id", version.ID,
		"number", version.Number,
		"sections", result.Sections,
		"questions", result.Questions,
	)
	return result, nil
}

func (s *ImportService) fill(ctx context.Context, versionID int64, def *Definition, inputs [][]QuestionInput, metadata json.RawMessage, result *ImportResult) error {
	if metadata != nil {
		if _, err := s.versions.UpdateMetadata(ctx, versionID, metadata); err != nil {
			return err
		}
	}

	for i, sd := range def.Sections {
		section, err := s.structure.CreateSection(ctx, versionID, SectionInput{Title: sd.Title, Description: sd.Description})
		if err != nil {
			return err
		}
		result.Sections++

		for _, in := range inputs[i] {
			if _, err := s.structure.CreateQuestion(ctx, section.ID, in); err != nil {
				return err
			}
			result.Questions++
		}
	}
	return nil
}
