package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/models"
)

func conditional(code, cond string) models.Question {
	return models.Question{Code: code, Type: models.TypeText, Required: true, VisibleIf: json.RawMessage(cond)}
}

func TestIsVisible(t *testing.T) {
	answers := map[string]models.AnswerValue{
		"works":   models.BoolValue(true),
		"age":     models.NumberValue(17),
		"city":    models.StringValue("Lima"),
		"hobbies": models.ListValue([]string{"art", "music"}),
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"no condition", ``, true},
		{"equals bool", `{"question": "works", "equals": true}`, true},
		{"equals bool string", `{"question": "works", "equals": "true"}`, true},
		{"equals number", `{"question": "age", "equals": 17}`, true},
		{"equals mismatch", `{"question": "city", "equals": "Cusco"}`, false},
		{"not equals", `{"question": "city", "not_equals": "Cusco"}`, true},
		{"in list answer", `{"question": "hobbies", "in": ["sport", "music"]}`, true},
		{"in miss", `{"question": "city", "in": ["Cusco", "Puno"]}`, false},
		{"unanswered equals", `{"question": "missing", "equals": "x"}`, false},
		{"unanswered not equals", `{"question": "missing", "not_equals": "x"}`, true},
		{"malformed json", `{"question": `, true},
		{"no question", `{"equals": 1}`, true},
		{"object target", `{"question": "city", "equals": {"a": 1}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := conditional("q", tt.cond)
			if tt.cond == "" {
				q.VisibleIf = nil
			}
			assert.Equal(t, tt.want, IsVisible(q, answers))
		})
	}
}

func TestCheckVisibilityDocument(t *testing.T) {
	assert.NoError(t, checkVisibilityDocument(nil))
	assert.NoError(t, checkVisibilityDocument(json.RawMessage(`{"question": "a", "in": ["x"]}`)))
	assert.Error(t, checkVisibilityDocument(json.RawMessage(`{"question": "a"}`)))
	assert.Error(t, checkVisibilityDocument(json.RawMessage(`{"question": "a", "equals": 1, "in": [1]}`)))
	assert.Error(t, checkVisibilityDocument(json.RawMessage(`{"equals": 1}`)))
	assert.Error(t, checkVisibilityDocument(json.RawMessage(`{"question": "a", "equal": 1}`)))
}

func TestMissingRequired(t *testing.T) {
	sections := []models.Section{
		{
			ID:    1,
			Title: "Cognitive",
			Questions: []models.Question{
				{Code: "q1", Type: models.TypeBoolean, Required: true},
				{Code: "q2", Type: models.TypeText},
			},
		},
		{
			ID:    2,
			Title: "Work",
			Questions: []models.Question{
				{Code: "works", Type: models.TypeBoolean, Required: true},
				conditional("employer", `{"question": "works", "equals": true}`),
			},
		},
	}

	missing := missingRequired(sections, map[string]models.AnswerValue{})
	require.Len(t, missing, 2)
	assert.Equal(t, int64(1), missing[0].SectionID)
	assert.Equal(t, []string{"q1"}, missing[0].Questions)
	assert.Equal(t, []string{"works"}, missing[1].Questions)

	missing = missingRequired(sections, map[string]models.AnswerValue{
		"q1":    models.BoolValue(false),
		"works": models.BoolValue(true),
	})
	require.Len(t, missing, 1)
	assert.Equal(t, "Work", missing[0].SectionTitle)
	assert.Equal(t, []string{"employer"}, missing[0].Questions)

	missing = missingRequired(sections, map[string]models.AnswerValue{
		"q1":    models.BoolValue(true),
		"works": models.BoolValue(false),
	})
	assert.Empty(t, missing)

	err := &MissingFieldsError{Sections: missingRequired(sections, nil)}
	assert.Equal(t, []string{"q1", "works"}, err.Codes())
}
