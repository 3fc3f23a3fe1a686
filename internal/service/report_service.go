package service

import (
	"context"
	"io"

	"orienta/internal/config"
	"orienta/internal/export"
	"orienta/internal/models"
	"orienta/internal/repository"
)

// WideFilter narrows the rows of the wide report
type WideFilter struct {
	UserCode string
	Status   string
}

// WideTable is one page of the pivoted responses of a version
type WideTable struct {
	VersionID     int64            `json:"version_id"`
	Items         []map[string]any `json:"items"`
	Total         int              `json:"total"`
	Page          int              `json:"page"`
	PageSize      int              `json:"page_size"`
	BaseColumns   []string         `json:"base_columns"`
	QuestionCodes []string         `json:"question_codes"`
}

// Columns returns the base columns followed by the question codes
func (t *WideTable) Columns() []string {
	columns := make([]string, 0, len(t.BaseColumns)+len(t.QuestionCodes))
	columns = append(columns, t.BaseColumns...)
	return append(columns, t.QuestionCodes...)
}

// ReportService builds the admin views over responses
type ReportService struct {
	versionRepo   *repository.VersionRepository
	structureRepo *repository.StructureRepository
	responseRepo  *repository.ResponseRepository
	cfg           config.ReportConfig
}

// NewReportService creates a new report service
func NewReportService(
	versionRepo *repository.VersionRepository,
	structureRepo *repository.StructureRepository,
	responseRepo *repository.ResponseRepository,
	cfg config.ReportConfig,
) *ReportService {
	return &ReportService{
		versionRepo:   versionRepo,
		structureRepo: structureRepo,
		responseRepo:  responseRepo,
		cfg:           cfg,
	}
}

func (s *ReportService) checkFilter(filter WideFilter) error {
	switch filter.Status {
	case "", models.ResponseInProgress, models.ResponseSubmitted, models.ResponseFinalized:
		return nil
	}
	return &ValidationError{
		Message: "invalid filter",
		Fields:  map[string]string{"status": "must be one of in_progress, submitted, finalized"},
	}
}

// pagination applies defaults; zero means "not given"
func (s *ReportService) pagination(page, pageSize int) (int, int, error) {
	fields := map[string]string{}
	if page < 0 {
		fields["page"] = "must be at least 1"
	}
	if pageSize < 0 {
		fields["page_size"] = "must be at least 1"
	}
	if len(fields) > 0 {
		return 0, 0, &ValidationError{Message: "invalid pagination", Fields: fields}
	}

	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	return page, pageSize, nil
}

// WideTable returns one row per response and one column per question code in
// the version's question order
func (s *ReportService) WideTable(ctx context.Context, versionID int64, filter WideFilter, page, pageSize int) (*WideTable, error) {
	if err := s.checkFilter(filter); err != nil {
		return nil, err
	}
	page, pageSize, err := s.pagination(page, pageSize)
	if err != nil {
		return nil, err
	}

	questions, err := s.questions(ctx, versionID)
	if err != nil {
		return nil, err
	}

	repoFilter := repository.ResponseFilter{UserCode: filter.UserCode, Status: filter.Status}
	total, err := s.responseRepo.Count(ctx, versionID, repoFilter)
	if err != nil {
		return nil, upstream("count responses", err)
	}

	responses, err := s.responseRepo.List(ctx, versionID, repoFilter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, upstream("list responses", err)
	}

	table, err := s.pivot(ctx, versionID, questions, responses)
	if err != nil {
		return nil, err
	}
	table.Total = total
	table.Page = page
	table.PageSize = pageSize
	return table, nil
}

// ExportCSV writes every filtered row of the wide report as CSV
func (s *ReportService) ExportCSV(ctx context.Context, versionID int64, filter WideFilter, w io.Writer) error {
	if err := s.checkFilter(filter); err != nil {
		return err
	}

	questions, err := s.questions(ctx, versionID)
	if err != nil {
		return err
	}

	responses, err := s.responseRepo.List(ctx, versionID, repository.ResponseFilter{UserCode: filter.UserCode, Status: filter.Status}, 0, 0)
	if err != nil {
		return upstream("list responses", err)
	}

	table, err := s.pivot(ctx, versionID, questions, responses)
	if err != nil {
		return err
	}

	if err := export.Write(w, table.Columns(), table.Items); err != nil {
		return upstream("write csv", err)
	}
	return nil
}

func (s *ReportService) questions(ctx context.Context, versionID int64) ([]models.Question, error) {
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
	return questions, nil
}

func (s *ReportService) pivot(ctx context.Context, versionID int64, questions []models.Question, responses []models.Response) (*WideTable, error) {
	ids := make([]int64, len(responses))
	for i, r := range responses {
		ids[i] = r.ID
	}
	stored, err := s.responseRepo.ListAnswersFor(ctx, ids)
	if err != nil {
		return nil, upstream("list answers", err)
	}

	codes := make([]string, len(questions))
	for i, q := range questions {
		codes[i] = q.Code
	}

	items := make([]map[string]any, 0, len(responses))
	for _, resp := range responses {
		items = append(items, wideRow(resp, questions, decodeStored(questions, stored[resp.ID])))
	}

	return &WideTable{
		VersionID:     versionID,
		Items:         items,
		BaseColumns:   ReservedColumns,
		QuestionCodes: codes,
	}, nil
}

// wideRow flattens a response; unanswered questions are nil
func wideRow(resp models.Response, questions []models.Question, values map[string]models.AnswerValue) map[string]any {
	row := map[string]any{
		"response_id":      resp.ID,
		"assignment_id":    resp.ID,
		"user_code":        resp.UserCode,
		"status":           resp.Status,
		"started_at":       resp.StartedAt,
		"submitted_at":     resp.SubmittedAt,
		"finalized_at":     resp.FinalizedAt,
		"last_activity_at": resp.LastActivityAt,
		"ml_prob":          resp.MLProb,
		"ml_decision":      resp.MLDecision,
		"ml_label":         resp.MLLabel,
		"ml_status":        resp.MLStatus,
		"ml_reason":        resp.MLReason,
	}
	for _, q := range questions {
		if v, ok := values[q.Code]; ok {
			row[q.Code] = v
		} else {
			row[q.Code] = nil
		}
	}
	return row
}
