package service

import (
	"encoding/json"
	"testing"

	"orienta/internal/models"
)

func choiceQuestion(t models.QuestionType, rules string, options ...models.Option) models.Question {
	q := models.Question{Code: "q", Type: t, Options: options}
	if rules != "" {
		q.ValidationRules = json.RawMessage(rules)
	}
	return q
}

func TestDecodeAndCheck(t *testing.T) {
	options := []models.Option{{Value: "a"}, {Value: "b"}}
	withOther := append([]models.Option{}, models.Option{Value: "a"}, models.Option{Value: "other", IsOther: true})

	tests := []struct {
		name    string
		q       models.Question
		raw     string
		wantErr bool
	}{
		{"text ok", choiceQuestion(models.TypeText, ""), `"hola"`, false},
		{"text not string", choiceQuestion(models.TypeText, ""), `12`, true},
		{"text too short", choiceQuestion(models.TypeText, `{"min_length": 3}`), `"ab"`, true},
		{"text pattern", choiceQuestion(models.TypeText, `{"pattern": "^[0-9]+$"}`), `"12a"`, true},
		{"textarea max length", choiceQuestion(models.TypeTextarea, `{"max_length": 3}`), `"ñañá"`, true},
		{"email ok", choiceQuestion(models.TypeEmail, ""), `"ana@example.com"`, false},
		{"email bad", choiceQuestion(models.TypeEmail, ""), `"not-an-email"`, true},
		{"date ok", choiceQuestion(models.TypeDate, ""), `"2024-02-29"`, false},
		{"date bad", choiceQuestion(models.TypeDate, ""), `"29/02/2024"`, true},
		{"number in range", choiceQuestion(models.TypeNumber, `{"min": 0, "max": 10}`), `7.5`, false},
		{"number string", choiceQuestion(models.TypeNumber, ""), `"7"`, false},
		{"number below min", choiceQuestion(models.TypeNumber, `{"min": 0}`), `-1`, true},
		{"number above max", choiceQuestion(models.TypeNumber, `{"max": 10}`), `11`, true},
		{"scale ok", choiceQuestion(models.TypeScale15, ""), `5`, false},
		{"scale fraction", choiceQuestion(models.TypeScale15, ""), `2.5`, true},
		{"scale out of range", choiceQuestion(models.TypeScale15, ""), `6`, true},
		{"boolean", choiceQuestion(models.TypeBoolean, ""), `false`, false},
		{"boolean string", choiceQuestion(models.TypeBoolean, ""), `"true"`, false},
		{"boolean bad", choiceQuestion(models.TypeBoolean, ""), `"maybe"`, true},
		{"single ok", choiceQuestion(models.TypeSingleChoice, "", options...), `"a"`, false},
		{"single unknown", choiceQuestion(models.TypeSingleChoice, "", options...), `"z"`, true},
		{"single other free text", choiceQuestion(models.TypeSingleChoice, "", withOther...), `"beekeeping"`, false},
		{"multi ok", choiceQuestion(models.TypeMultiChoice, "", options...), `["a", "b"]`, false},
		{"multi duplicate", choiceQuestion(models.TypeMultiChoice, "", options...), `["a", "a"]`, true},
		{"multi unknown", choiceQuestion(models.TypeMultiChoice, "", options...), `["a", "z"]`, true},
		{"multi max selected", choiceQuestion(models.TypeMultiChoice, `{"max_selected": 1}`, options...), `["a", "b"]`, true},
		{"multi not list", choiceQuestion(models.TypeMultiChoice, "", options...), `"a"`, true},
		{"null clears", choiceQuestion(models.TypeNumber, `{"min": 5}`), `null`, false},
		{"malformed rules ignored", choiceQuestion(models.TypeNumber, `{"min": "x"}`), `1`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeAndCheck(tt.q, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeAndCheck(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestCheckRulesDocument(t *testing.T) {
	tests := []struct {
		doc     string
		wantErr bool
	}{
		{``, false},
		{`null`, false},
		{`{"min": 1, "max": 2}`, false},
		{`{"minimum": 1}`, true},
		{`{"pattern": "("}`, true},
		{`[]`, true},
	}

	for _, tt := range tests {
		err := checkRulesDocument(json.RawMessage(tt.doc))
		if (err != nil) != tt.wantErr {
			t.Errorf("checkRulesDocument(%q) error = %v, wantErr %v", tt.doc, err, tt.wantErr)
		}
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name     string
		answered int
		total    int
		status   string
		want     int
	}{
		{"no questions", 0, 0, models.ResponseInProgress, 0},
		{"nothing answered", 0, 4, models.ResponseInProgress, 0},
		{"rounds half up", 1, 8, models.ResponseInProgress, 13},
		{"two thirds", 2, 3, models.ResponseInProgress, 67},
		{"complete", 4, 4, models.ResponseInProgress, 100},
		{"capped", 5, 4, models.ResponseInProgress, 100},
		{"finalized forced", 1, 4, models.ResponseFinalized, 100},
		{"finalized without questions", 0, 0, models.ResponseFinalized, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.answered, tt.total, tt.status); got != tt.want {
				t.Errorf("Progress(%d, %d, %s) = %d, want %d", tt.answered, tt.total, tt.status, got, tt.want)
			}
		})
	}
}

func TestProgressMonotonicWhenAddingAnswers(t *testing.T) {
	questions := []models.Question{{Code: "a"}, {Code: "b"}, {Code: "c"}}
	values := map[string]models.AnswerValue{}

	last := Progress(countAnswered(questions, values), len(questions), models.ResponseInProgress)
	for _, q := range questions {
		values[q.Code] = models.StringValue("x")
		p := Progress(countAnswered(questions, values), len(questions), models.ResponseInProgress)
		if p < last {
			t.Fatalf("progress decreased from %d to %d", last, p)
		}
		last = p
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestCountAnsweredIgnoresEmpty(t *testing.T) {
	questions := []models.Question{{Code: "a"}, {Code: "b"}, {Code: "c"}}
	values := map[string]models.AnswerValue{
		"a": models.StringValue("  "),
		"b": models.ListValue(nil),
		"c": models.BoolValue(false),
		"z": models.StringValue("ignored"),
	}
	if got := countAnswered(questions, values); got != 1 {
		t.Errorf("countAnswered = %d, want 1", got)
	}
}

func TestDecodeStored(t *testing.T) {
	questions := []models.Question{
		{Code: "n", Type: models.TypeNumber},
		{Code: "m", Type: models.TypeMultiChoice},
	}
	stored := map[string]json.RawMessage{
		"n":    json.RawMessage(`3`),
		"m":    json.RawMessage(`["a","b"]`),
		"gone": json.RawMessage(`"x"`),
	}

	values := decodeStored(questions, stored)
	if len(values) != 2 {
		t.Fatalf("decodeStored returned %d values, want 2", len(values))
	}
	if values["n"].Num != 3 || values["n"].Kind != models.KindNumber {
		t.Errorf("n = %+v", values["n"])
	}
	if len(values["m"].List) != 2 {
		t.Errorf("m = %+v", values["m"])
	}
}
