package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/config"
	"orienta/internal/models"
)

func TestReportPagination(t *testing.T) {
	s := &ReportService{cfg: config.ReportConfig{DefaultPageSize: 50, MaxPageSize: 500}}

	page, size, err := s.pagination(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, size)

	page, size, err = s.pagination(3, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, 500, size)

	_, _, err = s.pagination(-1, 10)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestReportStatusFilter(t *testing.T) {
	s := &ReportService{}
	assert.NoError(t, s.checkFilter(WideFilter{}))
	assert.NoError(t, s.checkFilter(WideFilter{Status: models.ResponseFinalized}))
	assert.Error(t, s.checkFilter(WideFilter{Status: "new"}))
}

func TestWideRow(t *testing.T) {
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	label := "stem"
	resp := models.Response{
		ID:             7,
		UserCode:       "A001",
		Status:         models.ResponseInProgress,
		StartedAt:      started,
		LastActivityAt: started,
		MLLabel:        &label,
	}
	questions := []models.Question{{Code: "q1"}, {Code: "q2"}}
	values := map[string]models.AnswerValue{"q1": models.ListValue([]string{"a", "b"})}

	row := wideRow(resp, questions, values)

	for _, col := range ReservedColumns {
		assert.Contains(t, row, col)
	}
	assert.Equal(t, int64(7), row["response_id"])
	assert.Equal(t, int64(7), row["assignment_id"])
	assert.Equal(t, "A001", row["user_code"])
	assert.Equal(t, models.ListValue([]string{"a", "b"}), row["q1"])
	assert.Nil(t, row["q2"])

	table := &WideTable{BaseColumns: ReservedColumns, QuestionCodes: []string{"q1", "q2"}}
	columns := table.Columns()
	assert.Len(t, columns, len(ReservedColumns)+2)
	assert.Equal(t, "q2", columns[len(columns)-1])
}
