package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"orienta/internal/models"
)

// visibilityCondition is the visible_if document of a question
type visibilityCondition struct {
	Question  string            `json:"question"`
	Equals    json.RawMessage   `json:"equals"`
	NotEquals json.RawMessage   `json:"not_equals"`
	In        []json.RawMessage `json:"in"`
}

// IsVisible evaluates the visible_if condition of q against the current answers.
// Questions without a condition and malformed conditions are visible.
func IsVisible(q models.Question, answers map[string]models.AnswerValue) bool {
	if isEmptyDocument(q.VisibleIf) {
		return true
	}

	var cond visibilityCondition
	if err := json.Unmarshal(q.VisibleIf, &cond); err != nil || cond.Question == "" {
		return true
	}

	var current []string
	if v, ok := answers[cond.Question]; ok {
		current = v.Strings()
	}

	switch {
	case cond.Equals != nil:
		target, ok := scalarString(cond.Equals)
		if !ok {
			return true
		}
		return containsString(current, target)

	case cond.NotEquals != nil:
		target, ok := scalarString(cond.NotEquals)
		if !ok {
			return true
		}
		return !containsString(current, target)

	case cond.In != nil:
		for _, raw := range cond.In {
			target, ok := scalarString(raw)
			if !ok {
				return true
			}
			if containsString(current, target) {
				return true
			}
		}
		return false
	}

	return true
}

// checkVisibilityDocument validates a visible_if document at authoring time
func checkVisibilityDocument(raw json.RawMessage) error {
	if isEmptyDocument(raw) {
		return nil
	}
	var cond visibilityCondition
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cond); err != nil {
		return fmt.Errorf("invalid visible_if: %v", err)
	}
	if cond.Question == "" {
		return fmt.Errorf("invalid visible_if: question is required")
	}
	operators := 0
	for _, present := range []bool{cond.Equals != nil, cond.NotEquals != nil, cond.In != nil} {
		if present {
			operators++
		}
	}
	if operators != 1 {
		return fmt.Errorf("invalid visible_if: exactly one of equals, not_equals or in is required")
	}
	return nil
}

// scalarString normalizes a JSON scalar into the comparison form used by AnswerValue.Strings
func scalarString(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}

	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		f, err := s.Float64()
		if err != nil {
			return "", false
		}
		return formatNumber(f), true
	default:
		return "", false
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// missingRequired lists visible required questions without an answer, grouped by section
func missingRequired(sections []models.Section, answers map[string]models.AnswerValue) []MissingSection {
	var missing []MissingSection
	for _, s := range sections {
		var codes []string
		for _, q := range s.Questions {
			if !q.Required || !IsVisible(q, answers) {
				continue
			}
			if v, ok := answers[q.Code]; !ok || v.IsEmpty() {
				codes = append(codes, q.Code)
			}
		}
		if len(codes) > 0 {
			missing = append(missing, MissingSection{
				SectionID:    s.ID,
				SectionTitle: s.Title,
				Questions:    codes,
			})
		}
	}
	return missing
}
