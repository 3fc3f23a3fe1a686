package ml

import (
	"math"
	"strconv"
	"strings"

	"orienta/internal/models"
)

// Assemble builds the feature vector in feature_order. Missing source answers fall
// back to the feature default; a feature with neither answer nor default makes the
// whole mapping incomplete.
func Assemble(b *Binding, answers map[string]models.AnswerValue) ([]float64, error) {
	vector := make([]float64, 0, len(b.FeatureOrder))
	var missing []string

	for _, name := range b.FeatureOrder {
		f := b.Feature(name)

		value, ok, err := coerce(f, answers[f.SourceCode()])
		if err != nil {
			return nil, err
		}
		if !ok {
			if f.Default == nil {
				missing = append(missing, name)
				continue
			}
			value = *f.Default
		}

		vector = append(vector, f.transform(value))
	}

	if len(missing) > 0 {
		return nil, mappingIncomplete("no answer or default for %s", strings.Join(missing, ", "))
	}
	return vector, nil
}

// coerce converts an answer to a number. ok is false when the answer is absent.
func coerce(f Feature, v models.AnswerValue) (float64, bool, error) {
	switch v.Kind {
	case models.KindNumber:
		return v.Num, true, nil

	case models.KindBool:
		if v.Bool {
			return 1, true, nil
		}
		return 0, true, nil

	case models.KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false, nil
		}
		if mapped, ok := f.ValueMap[s]; ok {
			return mapped, true, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, mappingIncomplete("feature %q: value %q is not numeric and has no value_map entry", f.Name, s)
		}
		return n, true, nil

	case models.KindList:
		if len(f.ValueMap) == 0 {
			return float64(len(v.List)), true, nil
		}
		var sum float64
		for _, item := range v.List {
			mapped, ok := f.ValueMap[item]
			if !ok {
				return 0, false, mappingIncomplete("feature %q: selection %q has no value_map entry", f.Name, item)
			}
			sum += mapped
		}
		return sum, true, nil
	}

	return 0, false, nil
}

func (f Feature) transform(x float64) float64 {
	if f.DivideBy != nil {
		x /= *f.DivideBy
	}
	if f.MultiplyBy != nil {
		x *= *f.MultiplyBy
	}
	if f.Offset != nil {
		x += *f.Offset
	}
	if f.Clip != nil {
		if f.Clip.Min != nil {
			x = math.Max(x, *f.Clip.Min)
		}
		if f.Clip.Max != nil {
			x = math.Min(x, *f.Clip.Max)
		}
	}
	return x
}
