package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionType is the declared input type of a question
type QuestionType string

// Supported question types
const (
	TypeText         QuestionType = "text"
	TypeTextarea     QuestionType = "textarea"
	TypeNumber       QuestionType = "number"
	TypeDate         QuestionType = "date"
	TypeEmail        QuestionType = "email"
	TypeBoolean      QuestionType = "boolean"
	TypeSingleChoice QuestionType = "single_choice"
	TypeMultiChoice  QuestionType = "multi_choice"
	TypeScale15      QuestionType = "scale_1_5"
)

// QuestionTypes lists every supported type
var QuestionTypes = []QuestionType{
	TypeText, TypeTextarea, TypeNumber, TypeDate, TypeEmail,
	TypeBoolean, TypeSingleChoice, TypeMultiChoice, TypeScale15,
}

// IsValid reports whether t is a supported type
func (t QuestionType) IsValid() bool {
	for _, known := range QuestionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsChoice reports whether the type takes options
func (t QuestionType) IsChoice() bool {
	return t == TypeSingleChoice || t == TypeMultiChoice
}

// ValueKind is the variant held by an AnswerValue
type ValueKind int

// Answer value variants
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

// AnswerValue is a decoded answer. The active field depends on Kind.
type AnswerValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// StringValue builds a string answer
func StringValue(s string) AnswerValue { return AnswerValue{Kind: KindString, Str: s} }

// NumberValue builds a numeric answer
func NumberValue(n float64) AnswerValue { return AnswerValue{Kind: KindNumber, Num: n} }

// BoolValue builds a boolean answer
func BoolValue(b bool) AnswerValue { return AnswerValue{Kind: KindBool, Bool: b} }

// ListValue builds a multi-selection answer
func ListValue(items []string) AnswerValue { return AnswerValue{Kind: KindList, List: items} }

// IsNull reports whether the value clears the answer
func (v AnswerValue) IsNull() bool {
	return v.Kind == KindNull
}

// IsEmpty reports whether the value does not count as an answer
func (v AnswerValue) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	case KindList:
		return len(v.List) == 0
	default:
		return false
	}
}

// MarshalJSON encodes the active variant
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a value without a question type. Lists must hold strings.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case nil:
		*v = AnswerValue{}
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list items must be strings, got %T", item)
			}
			items = append(items, s)
		}
		*v = ListValue(items)
	default:
		return fmt.Errorf("unsupported answer value %T", raw)
	}
	return nil
}

// Interface returns the value as a plain Go value (string, float64, bool, []string or nil)
func (v AnswerValue) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		return v.List
	default:
		return nil
	}
}

// Strings returns the value as comparable strings; lists yield one entry per item
func (v AnswerValue) Strings() []string {
	switch v.Kind {
	case KindString:
		return []string{v.Str}
	case KindNumber:
		return []string{strconv.FormatFloat(v.Num, 'f', -1, 64)}
	case KindBool:
		return []string{strconv.FormatBool(v.Bool)}
	case KindList:
		return v.List
	default:
		return nil
	}
}

// DecodeAnswer decodes a raw JSON value according to the question type.
// Numeric and boolean types also accept their string spellings.
func DecodeAnswer(t QuestionType, raw json.RawMessage) (AnswerValue, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return AnswerValue{}, nil
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return AnswerValue{}, fmt.Errorf("invalid JSON value")
	}

	switch t {
	case TypeText, TypeTextarea, TypeDate, TypeEmail, TypeSingleChoice:
		s, ok := decoded.(string)
		if !ok {
			return AnswerValue{}, fmt.Errorf("expected a string")
		}
		return StringValue(s), nil

	case TypeNumber, TypeScale15:
		n, err := toNumber(decoded)
		if err != nil {
			return AnswerValue{}, err
		}
		return NumberValue(n), nil

	case TypeBoolean:
		switch b := decoded.(type) {
		case bool:
			return BoolValue(b), nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return AnswerValue{}, fmt.Errorf("expected a boolean")
			}
			return BoolValue(parsed), nil
		default:
			return AnswerValue{}, fmt.Errorf("expected a boolean")
		}

	case TypeMultiChoice:
		items, ok := decoded.([]any)
		if !ok {
			return AnswerValue{}, fmt.Errorf("expected a list of strings")
		}
		list := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return AnswerValue{}, fmt.Errorf("expected a list of strings")
			}
			list = append(list, s)
		}
		return ListValue(list), nil

	default:
		return AnswerValue{}, fmt.Errorf("unsupported question type %q", t)
	}
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number")
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number")
	}
}
