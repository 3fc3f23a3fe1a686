package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"orienta/internal/database"
	"orienta/internal/models"
	"orienta/internal/repository"
)

const maxUserCodeLength = 64

// ResponseState is what a student sees of their response to a version
type ResponseState struct {
	QuestionnaireCode string                        `json:"questionnaire_code"`
	VersionID         int64                         `json:"version_id"`
	ResponseID        *int64                        `json:"response_id,omitempty"`
	AssignmentID      *int64                        `json:"assignment_id,omitempty"`
	UserCode          string                        `json:"user_code"`
	Status            string                        `json:"status"`
	Answers           map[string]models.AnswerValue `json:"answers" swaggertype:"object"`
	Progress          int                           `json:"progress"`
	StartedAt         *time.Time                    `json:"started_at,omitempty"`
	SubmittedAt       *time.Time                    `json:"submitted_at,omitempty"`
	FinalizedAt       *time.Time                    `json:"finalized_at,omitempty"`
	LastActivityAt    *time.Time                    `json:"last_activity_at,omitempty"`
}

// Form is the published structure a student renders
type Form struct {
	Questionnaire models.Questionnaire `json:"questionnaire"`
	Version       models.VersionDetail `json:"version"`
}

// OverviewItem summarizes one questionnaire on the student dashboard
type OverviewItem struct {
	Code          string     `json:"code"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	IsPrimary     bool       `json:"is_primary"`
	VersionID     int64      `json:"version_id"`
	VersionNumber int        `json:"version_number"`
	ResponseID    *int64     `json:"response_id,omitempty"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	FinalizedAt   *time.Time `json:"finalized_at,omitempty"`
}

// Overview is the student dashboard
type Overview struct {
	UserCode string         `json:"user_code"`
	Primary  *OverviewItem  `json:"primary"`
	Items    []OverviewItem `json:"items"`
}

// ResponseService records student answers
type ResponseService struct {
	db                *sql.DB
	questionnaireRepo *repository.QuestionnaireRepository
	versionRepo       *repository.VersionRepository
	structureRepo     *repository.StructureRepository
	userRepo          *repository.UserRepository
	responseRepo      *repository.ResponseRepository
	scorer            *MLService
}

// NewResponseService creates a new response service
func NewResponseService(
	db *sql.DB,
	questionnaireRepo *repository.QuestionnaireRepository,
	versionRepo *repository.VersionRepository,
	structureRepo *repository.StructureRepository,
	userRepo *repository.UserRepository,
	responseRepo *repository.ResponseRepository,
) *ResponseService {
	return &ResponseService{
		db:                db,
		questionnaireRepo: questionnaireRepo,
		versionRepo:       versionRepo,
		structureRepo:     structureRepo,
		userRepo:          userRepo,
		responseRepo:      responseRepo,
	}
}

// ScoreOnFinalize makes Finalize score the response with the version's model
func (s *ResponseService) ScoreOnFinalize(scorer *MLService) {
	s.scorer = scorer
}

// NormalizeUserCode trims a student code and checks its shape
func NormalizeUserCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return "", &ValidationError{Message: "invalid user code", Fields: map[string]string{"user_code": "is required"}}
	case len(code) > maxUserCodeLength:
		return "", &ValidationError{Message: "invalid user code", Fields: map[string]string{"user_code": "must be at most 64 characters"}}
	}
	return code, nil
}

// RegisterUser creates the student when absent
func (s *ResponseService) RegisterUser(ctx context.Context, code string) (*models.User, error) {
	code, err := NormalizeUserCode(code)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.Ensure(ctx, code)
	if err != nil {
		return nil, upstream("register user", err)
	}
	return user, nil
}

// ResolveVersion picks the version a student answers for a questionnaire: the pinned
// version when given, else the version the student already answers while it is still
// published, else the latest published version.
func (s *ResponseService) ResolveVersion(ctx context.Context, code, userCode string, pinned *int64) (*models.Version, error) {
	q, err := s.questionnaireRepo.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, upstream("get questionnaire", err)
	}
	if q == nil {
		return nil, &NotFoundError{Resource: "questionnaire", Key: code}
	}

	if pinned != nil {
		v, err := s.versionRepo.GetByID(ctx, *pinned)
		if err != nil {
			return nil, upstream("get version", err)
		}
		if v == nil || v.QuestionnaireID != q.ID {
			return nil, &NotFoundError{Resource: "version", Key: *pinned}
		}
		if !v.IsPublished() {
			return nil, &InvalidStateError{Reason: ReasonVersionNotPublished, Message: "version is not published"}
		}
		return v, nil
	}

	if userCode = strings.TrimSpace(userCode); userCode != "" {
		v, err := s.currentVersion(ctx, q.ID, userCode)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}

	v, err := s.versionRepo.GetLatestPublished(ctx, q.ID)
	if err != nil {
		return nil, upstream("get latest published version", err)
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "published version", Key: q.Code}
	}
	return v, nil
}

// currentVersion returns the still published version the user last answered, or nil
func (s *ResponseService) currentVersion(ctx context.Context, questionnaireID int64, userCode string) (*models.Version, error) {
	user, err := s.userRepo.GetByCode(ctx, userCode)
	if err != nil {
		return nil, upstream("get user", err)
	}
	if user == nil {
		return nil, nil
	}

	resp, err := s.responseRepo.GetLatestForQuestionnaire(ctx, user.ID, questionnaireID)
	if err != nil {
		return nil, upstream("get latest response", err)
	}
	if resp == nil {
		return nil, nil
	}

	v, err := s.versionRepo.GetByID(ctx, resp.VersionID)
	if err != nil {
		return nil, upstream("get version", err)
	}
	if v == nil || !v.IsPublished() {
		return nil, nil
	}
	return v, nil
}

// GetForm returns the published structure of the resolved version
func (s *ResponseService) GetForm(ctx context.Context, code, userCode string, pinned *int64) (*Form, error) {
	v, err := s.ResolveVersion(ctx, code, userCode, pinned)
	if err != nil {
		return nil, err
	}

	q, err := s.questionnaireRepo.GetByID(ctx, v.QuestionnaireID)
	if err != nil {
		return nil, upstream("get questionnaire", err)
	}
	if q == nil {
		return nil, &NotFoundError{Resource: "questionnaire", Key: code}
	}

	sections, err := s.structureRepo.GetStructure(ctx, v.ID)
	if err != nil {
		return nil, upstream("load structure", err)
	}

	return &Form{
		Questionnaire: *q,
		Version:       models.VersionDetail{Version: *v, Sections: sections},
	}, nil
}

// answerTarget holds what save and finalize need to know about a version
type answerTarget struct {
	version  *models.Version
	sections []models.Section
	byCode   map[string]models.Question
}

func (t *answerTarget) questions() []models.Question {
	questions := make([]models.Question, 0, len(t.byCode))
	for _, s := range t.sections {
		questions = append(questions, s.Questions...)
	}
	return questions
}

// target loads a version that accepts answers
func (s *ResponseService) target(ctx context.Context, versionID int64) (*answerTarget, error) {
	v, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, upstream("get version", err)
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "version", Key: versionID}
	}

	q, err := s.questionnaireRepo.GetByID(ctx, v.QuestionnaireID)
	if err != nil {
		return nil, upstream("get questionnaire", err)
	}
	if q == nil {
		return nil, &NotFoundError{Resource: "questionnaire", Key: v.QuestionnaireID}
	}
	if !q.IsActive() {
		return nil, &InvalidStateError{Reason: ReasonQuestionnaireInactive, Message: "questionnaire is inactive"}
	}
	if !v.IsPublished() {
		return nil, &InvalidStateError{Reason: ReasonVersionNotPublished, Message: "version is not published"}
	}

	sections, err := s.structureRepo.GetStructure(ctx, versionID)
	if err != nil {
		return nil, upstream("load structure", err)
	}

	t := &answerTarget{version: v, sections: sections, byCode: map[string]models.Question{}}
	for _, sec := range sections {
		for _, q := range sec.Questions {
			t.byCode[q.Code] = q
		}
	}
	return t, nil
}

// checkAnswers decodes every submitted value against its question. Nulls are kept
// so they clear stored answers.
func (t *answerTarget) checkAnswers(answers map[string]json.RawMessage) (map[string]models.AnswerValue, error) {
	values := make(map[string]models.AnswerValue, len(answers))
	fields := map[string]string{}
	var unknown []string

	for code, raw := range answers {
		q, ok := t.byCode[code]
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		v, err := decodeAndCheck(q, raw)
		if err != nil {
			fields[code] = err.Error()
			continue
		}
		values[code] = v
	}

	if len(unknown) > 0 || len(fields) > 0 {
		sort.Strings(unknown)
		verr := &ValidationError{Message: "invalid answers", Unknown: unknown}
		if len(fields) > 0 {
			verr.Fields = fields
		}
		return nil, verr
	}
	return values, nil
}

// writeAnswers upserts non-null values and deletes cleared ones
func writeAnswers(ctx context.Context, repo *repository.ResponseRepository, responseID int64, values map[string]models.AnswerValue, at time.Time) error {
	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		v := values[code]
		if v.IsNull() {
			if err := repo.DeleteAnswer(ctx, responseID, code); err != nil {
				return err
			}
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := repo.UpsertAnswer(ctx, responseID, code, raw, at); err != nil {
			return err
		}
	}
	return nil
}

// Save records a partial answer set. The response is created on first save.
func (s *ResponseService) Save(ctx context.Context, versionID int64, userCode string, answers map[string]json.RawMessage) (*ResponseState, error) {
	userCode, err := NormalizeUserCode(userCode)
	if err != nil {
		return nil, err
	}
	t, err := s.target(ctx, versionID)
	if err != nil {
		return nil, err
	}
	values, err := t.checkAnswers(answers)
	if err != nil {
		return nil, err
	}

	var responseID int64
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		user, err := s.userRepo.WithTx(tx).Ensure(ctx, userCode)
		if err != nil {
			return err
		}

		responseRepo := s.responseRepo.WithTx(tx)
		resp, err := responseRepo.EnsureForUpdate(ctx, versionID, user.ID)
		if err != nil {
			return err
		}
		if resp.IsFinalized() {
			return &ConflictError{Reason: ReasonResponseFinalized, Message: "response is already finalized"}
		}
		responseID = resp.ID

		now := time.Now().UTC()
		if err := writeAnswers(ctx, responseRepo, resp.ID, values, now); err != nil {
			return err
		}
		return responseRepo.Touch(ctx, resp, now)
	})
	if err != nil {
		return nil, upstream("save answers", err)
	}

	return s.stateOf(ctx, t.version, t.questions(), responseID)
}

// Finalize saves the given answers and then submits the response. When required
// answers are missing the saved answers stay committed, the status is unchanged
// and a MissingFieldsError is returned. Finalizing a finalized response returns
// its stored state and ignores the given answers.
func (s *ResponseService) Finalize(ctx context.Context, versionID int64, userCode string, answers map[string]json.RawMessage) (*ResponseState, error) {
	userCode, err := NormalizeUserCode(userCode)
	if err != nil {
		return nil, err
	}

	// finalized responses never reopen, so the stored state is final even if the
	// version was unpublished or the answers no longer validate
	current, err := s.StatusFor(ctx, versionID, userCode)
	if err != nil {
		return nil, err
	}
	if current.Status == models.ResponseFinalized {
		return current, nil
	}

	t, err := s.target(ctx, versionID)
	if err != nil {
		return nil, err
	}
	values, err := t.checkAnswers(answers)
	if err != nil {
		return nil, err
	}
	questions := t.questions()

	var (
		responseID  int64
		missing     []MissingSection
		alreadyDone bool
	)
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		user, err := s.userRepo.WithTx(tx).Ensure(ctx, userCode)
		if err != nil {
			return err
		}

		responseRepo := s.responseRepo.WithTx(tx)
		resp, err := responseRepo.EnsureForUpdate(ctx, versionID, user.ID)
		if err != nil {
			return err
		}
		responseID = resp.ID
		if resp.IsFinalized() {
			alreadyDone = true
			return nil
		}

		now := time.Now().UTC()
		if err := writeAnswers(ctx, responseRepo, resp.ID, values, now); err != nil {
			return err
		}
		if err := responseRepo.Touch(ctx, resp, now); err != nil {
			return err
		}

		stored, err := responseRepo.ListAnswers(ctx, resp.ID)
		if err != nil {
			return err
		}
		missing = missingRequired(t.sections, decodeStored(questions, stored))
		if len(missing) > 0 {
			return nil
		}

		return responseRepo.MarkFinalized(ctx, resp, now)
	})
	if err != nil {
		return nil, upstream("finalize response", err)
	}

	if len(missing) > 0 {
		return nil, &MissingFieldsError{Sections: missing}
	}

	if !alreadyDone && s.scorer != nil {
		if _, err := s.scorer.ScoreResponse(ctx, responseID); err != nil {
			slog.Warn("Failed to score finalized response", "response_id", responseID, "error", err)
		}
	}

	return s.stateOf(ctx, t.version, questions, responseID)
}

// StatusFor returns the response of a user to a version, or the "new" pseudo
// status when the user has not answered yet
func (s *ResponseService) StatusFor(ctx context.Context, versionID int64, userCode string) (*ResponseState, error) {
	userCode, err := NormalizeUserCode(userCode)
	if err != nil {
		return nil, err
	}

	v, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, upstream("get version", err)
	}
	if v == nil {
		return nil, &NotFoundError{Resource: "version", Key: versionID}
	}

	questions, err := s.structureRepo.ListQuestions(ctx, versionID)
	if err != nil {
		return nil, upstream("list questions", err)
	}

	user, err := s.userRepo.GetByCode(ctx, userCode)
	if err != nil {
		return nil, upstream("get user", err)
	}
	if user == nil {
		return newState(v, userCode), nil
	}

	resp, err := s.responseRepo.Get(ctx, versionID, user.ID)
	if err != nil {
		return nil, upstream("get response", err)
	}
	if resp == nil {
		return newState(v, userCode), nil
	}

	return s.buildState(ctx, v, questions, resp)
}

func newState(v *models.Version, userCode string) *ResponseState {
	return &ResponseState{
		QuestionnaireCode: v.QuestionnaireCode,
		VersionID:         v.ID,
		UserCode:          userCode,
		Status:            models.ResponseNew,
		Answers:           map[string]models.AnswerValue{},
	}
}

func (s *ResponseService) stateOf(ctx context.Context, v *models.Version, questions []models.Question, responseID int64) (*ResponseState, error) {
	resp, err := s.responseRepo.GetByID(ctx, responseID)
	if err != nil {
		return nil, upstream("get response", err)
	}
	if resp == nil {
		return nil, &NotFoundError{Resource: "response", Key: responseID}
	}
	return s.buildState(ctx, v, questions, resp)
}

func (s *ResponseService) buildState(ctx context.Context, v *models.Version, questions []models.Question, resp *models.Response) (*ResponseState, error) {
	stored, err := s.responseRepo.ListAnswers(ctx, resp.ID)
	if err != nil {
		return nil, upstream("list answers", err)
	}
	values := decodeStored(questions, stored)

	id := resp.ID
	started := resp.StartedAt
	lastActivity := resp.LastActivityAt
	return &ResponseState{
		QuestionnaireCode: v.QuestionnaireCode,
		VersionID:         v.ID,
		ResponseID:        &id,
		AssignmentID:      &id,
		UserCode:          resp.UserCode,
		Status:            resp.Status,
		Answers:           values,
		Progress:          Progress(countAnswered(questions, values), len(questions), resp.Status),
		StartedAt:         &started,
		SubmittedAt:       resp.SubmittedAt,
		FinalizedAt:       resp.FinalizedAt,
		LastActivityAt:    &lastActivity,
	}, nil
}

// Overview aggregates the status of the primary questionnaire and every other
// active questionnaire with a published version for one student
func (s *ResponseService) Overview(ctx context.Context, userCode string) (*Overview, error) {
	userCode, err := NormalizeUserCode(userCode)
	if err != nil {
		return nil, err
	}

	questionnaires, err := s.questionnaireRepo.ListActiveWithPublishedVersion(ctx)
	if err != nil {
		return nil, upstream("list questionnaires", err)
	}

	user, err := s.userRepo.GetByCode(ctx, userCode)
	if err != nil {
		return nil, upstream("get user", err)
	}

	overview := &Overview{UserCode: userCode, Items: []OverviewItem{}}
	for _, q := range questionnaires {
		item, err := s.overviewItem(ctx, q, user)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		if q.IsPrimary {
			overview.Primary = item
			continue
		}
		overview.Items = append(overview.Items, *item)
	}

	return overview, nil
}

func (s *ResponseService) overviewItem(ctx context.Context, q models.Questionnaire, user *models.User) (*OverviewItem, error) {
	var (
		v   *models.Version
		err error
	)
	if user != nil {
		v, err = s.currentVersion(ctx, q.ID, user.Code)
		if err != nil {
			return nil, err
		}
	}
	if v == nil {
		v, err = s.versionRepo.GetLatestPublished(ctx, q.ID)
		if err != nil {
			return nil, upstream("get latest published version", err)
		}
		if v == nil {
			return nil, nil
		}
	}

	item := &OverviewItem{
		Code:          q.Code,
		Title:         q.Title,
		Description:   q.Description,
		IsPrimary:     q.IsPrimary,
		VersionID:     v.ID,
		VersionNumber: v.Number,
		Status:        models.ResponseNew,
	}
	if user == nil {
		return item, nil
	}

	resp, err := s.responseRepo.Get(ctx, v.ID, user.ID)
	if err != nil {
		return nil, upstream("get response", err)
	}
	if resp == nil {
		return item, nil
	}

	questions, err := s.structureRepo.ListQuestions(ctx, v.ID)
	if err != nil {
		return nil, upstream("list questions", err)
	}
	stored, err := s.responseRepo.ListAnswers(ctx, resp.ID)
	if err != nil {
		return nil, upstream("list answers", err)
	}

	id := resp.ID
	item.ResponseID = &id
	item.Status = resp.Status
	item.Progress = Progress(countAnswered(questions, decodeStored(questions, stored)), len(questions), resp.Status)
	item.FinalizedAt = resp.FinalizedAt
	return item, nil
}
