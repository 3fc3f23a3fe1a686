package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"orienta/internal/models"
	"orienta/pkg/validator"
)

// ValidationRules are the optional per-question constraints
type ValidationRules struct {
	Min         *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength   *int     `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern     string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinSelected *int     `json:"min_selected,omitempty" yaml:"min_selected,omitempty"`
	MaxSelected *int     `json:"max_selected,omitempty" yaml:"max_selected,omitempty"`
}

// parseRules decodes validation rules; malformed documents impose no constraint
func parseRules(raw json.RawMessage) ValidationRules {
	var rules ValidationRules
	if len(raw) == 0 {
		return rules
	}
	if err := json.Unmarshal(raw, &rules); err != nil {
		return ValidationRules{}
	}
	return rules
}

// checkRulesDocument validates a rules document at authoring time
func checkRulesDocument(raw json.RawMessage) error {
	if isEmptyDocument(raw) {
		return nil
	}
	var rules ValidationRules
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rules); err != nil {
		return fmt.Errorf("invalid validation_rules: %v", err)
	}
	if rules.Pattern != "" {
		if _, err := regexp.Compile(rules.Pattern); err != nil {
			return fmt.Errorf("invalid validation_rules pattern: %v", err)
		}
	}
	return nil
}

func isEmptyDocument(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

// decodeAndCheck decodes a submitted value and validates it against the question
func decodeAndCheck(q models.Question, raw json.RawMessage) (models.AnswerValue, error) {
	value, err := models.DecodeAnswer(q.Type, raw)
	if err != nil {
		return value, err
	}
	if value.IsNull() {
		return value, nil
	}
	return value, checkAnswer(q, value)
}

// checkAnswer validates a decoded value against type specific constraints,
// options and validation rules. Empty strings skip format checks.
func checkAnswer(q models.Question, v models.AnswerValue) error {
	rules := parseRules(q.ValidationRules)

	switch q.Type {
	case models.TypeText, models.TypeTextarea:
		return checkText(v.Str, rules)

	case models.TypeEmail:
		if v.Str == "" {
			return nil
		}
		if err := validator.ValidateEmail(strings.TrimSpace(v.Str)); err != nil {
			return fmt.Errorf("must be a valid email")
		}
		return checkText(v.Str, rules)

	case models.TypeDate:
		if v.Str == "" {
			return nil
		}
		if _, err := time.Parse("2006-01-02", v.Str); err != nil {
			return fmt.Errorf("must be a date in YYYY-MM-DD format")
		}
		return nil

	case models.TypeNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return fmt.Errorf("must be a finite number")
		}
		if rules.Min != nil && v.Num < *rules.Min {
			return fmt.Errorf("must be at least %s", formatNumber(*rules.Min))
		}
		if rules.Max != nil && v.Num > *rules.Max {
			return fmt.Errorf("must be at most %s", formatNumber(*rules.Max))
		}
		return nil

	case models.TypeScale15:
		if v.Num != math.Trunc(v.Num) || v.Num < 1 || v.Num > 5 {
			return fmt.Errorf("must be an integer between 1 and 5")
		}
		return nil

	case models.TypeBoolean:
		return nil

	case models.TypeSingleChoice:
		if v.Str == "" {
			return nil
		}
		return checkOption(q, v.Str)

	case models.TypeMultiChoice:
		seen := make(map[string]bool, len(v.List))
		for _, item := range v.List {
			if seen[item] {
				return fmt.Errorf("option %q selected more than once", item)
			}
			seen[item] = true
			if err := checkOption(q, item); err != nil {
				return err
			}
		}
		if rules.MinSelected != nil && len(v.List) > 0 && len(v.List) < *rules.MinSelected {
			return fmt.Errorf("select at least %d options", *rules.MinSelected)
		}
		if rules.MaxSelected != nil && len(v.List) > *rules.MaxSelected {
			return fmt.Errorf("select at most %d options", *rules.MaxSelected)
		}
		return nil
	}

	return fmt.Errorf("unsupported question type %q", q.Type)
}

func checkText(s string, rules ValidationRules) error {
	if s == "" {
		return nil
	}
	length := utf8.RuneCountInString(s)
	if rules.MinLength != nil && length < *rules.MinLength {
		return fmt.Errorf("must be at least %d characters", *rules.MinLength)
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		return fmt.Errorf("must be at most %d characters", *rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err == nil && !re.MatchString(s) {
			return fmt.Errorf("does not match the expected format")
		}
	}
	return nil
}

// checkOption accepts declared option values. A question with an "other" option
// also accepts free text captured inline.
func checkOption(q models.Question, value string) error {
	hasOther := false
	for _, o := range q.Options {
		if o.Value == value {
			return nil
		}
		if o.IsOther {
			hasOther = true
		}
	}
	if hasOther && strings.TrimSpace(value) != "" {
		return nil
	}
	return fmt.Errorf("%q is not a valid option", value)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// decodeStored decodes persisted answers by question type, skipping codes that
// no longer match a question or a decodable value
func decodeStored(questions []models.Question, stored map[string]json.RawMessage) map[string]models.AnswerValue {
	byCode := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byCode[q.Code] = q
	}

	values := make(map[string]models.AnswerValue, len(stored))
	for code, raw := range stored {
		q, ok := byCode[code]
		if !ok {
			continue
		}
		v, err := models.DecodeAnswer(q.Type, raw)
		if err != nil || v.IsNull() {
			continue
		}
		values[code] = v
	}
	return values
}

// Progress returns the completion percentage of a response
func Progress(answered, total int, status string) int {
	if status == models.ResponseFinalized {
		return 100
	}
	if total <= 0 || answered <= 0 {
		return 0
	}
	pct := int(math.Round(float64(answered) * 100 / float64(total)))
	if pct > 100 {
		return 100
	}
	return pct
}

// countAnswered returns how many questions carry a non-empty answer
func countAnswered(questions []models.Question, values map[string]models.AnswerValue) int {
	answered := 0
	for _, q := range questions {
		if v, ok := values[q.Code]; ok && !v.IsEmpty() {
			answered++
		}
	}
	return answered
}
