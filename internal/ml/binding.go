package ml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Runtime identifiers
const (
	RuntimeLinear = "linear"
	RuntimeHTTP   = "http"
)

// DefaultThreshold is used when a binding does not set one
const DefaultThreshold = 0.5

// Clip bounds a transformed feature value
type Clip struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Feature maps one model input to a source question
type Feature struct {
	Name       string             `json:"name"`
	Source     string             `json:"source,omitempty"`
	Default    *float64           `json:"default,omitempty"`
	ValueMap   map[string]float64 `json:"value_map,omitempty"`
	DivideBy   *float64           `json:"divide_by,omitempty"`
	MultiplyBy *float64           `json:"multiply_by,omitempty"`
	Offset     *float64           `json:"offset,omitempty"`
	Clip       *Clip              `json:"clip,omitempty"`
}

// SourceCode returns the question code the feature reads from
func (f Feature) SourceCode() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// Labels name the two classification outcomes
type Labels struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// Binding is the ml_binding section of a version's metadata
type Binding struct {
	Runtime      string             `json:"runtime"`
	ArtifactPath string             `json:"artifact_path"`
	Endpoint     string             `json:"endpoint,omitempty"`
	FeatureOrder []string           `json:"feature_order"`
	Features     map[string]Feature `json:"-"`
	Threshold    float64            `json:"threshold"`
	Labels       Labels             `json:"labels"`
}

type rawBinding struct {
	Runtime      string          `json:"runtime"`
	ArtifactPath string          `json:"artifact_path"`
	Endpoint     string          `json:"endpoint"`
	FeatureOrder []string        `json:"feature_order"`
	Features     json.RawMessage `json:"features"`
	Threshold    *float64        `json:"threshold"`
	Labels       *Labels         `json:"labels"`
}

// ParseBinding extracts and validates metadata.ml_binding. It returns ErrNoBinding
// when the key is absent and an *Error of kind feature_mapping_incomplete when the
// document is unusable.
func ParseBinding(metadata json.RawMessage) (*Binding, error) {
	if len(bytes.TrimSpace(metadata)) == 0 {
		return nil, ErrNoBinding
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return nil, mappingIncomplete("metadata is not a JSON object")
	}
	rawDoc, ok := doc["ml_binding"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawDoc), []byte("null")) {
		return nil, ErrNoBinding
	}

	var raw rawBinding
	if err := json.Unmarshal(rawDoc, &raw); err != nil {
		return nil, mappingIncomplete("ml_binding is malformed: %v", err)
	}

	b := &Binding{
		Runtime:      strings.ToLower(strings.TrimSpace(raw.Runtime)),
		ArtifactPath: strings.TrimSpace(raw.ArtifactPath),
		Endpoint:     strings.TrimSpace(raw.Endpoint),
		Threshold:    DefaultThreshold,
		Labels:       Labels{Positive: "positive", Negative: "negative"},
		Features:     map[string]Feature{},
	}
	if b.Runtime == "" {
		b.Runtime = RuntimeLinear
	}
	if raw.Threshold != nil {
		b.Threshold = *raw.Threshold
	}
	if raw.Labels != nil {
		if raw.Labels.Positive != "" {
			b.Labels.Positive = raw.Labels.Positive
		}
		if raw.Labels.Negative != "" {
			b.Labels.Negative = raw.Labels.Negative
		}
	}

	declared, err := parseFeatures(raw.Features)
	if err != nil {
		return nil, err
	}
	for _, f := range declared {
		b.Features[f.Name] = f
	}

	b.FeatureOrder = raw.FeatureOrder
	if len(b.FeatureOrder) == 0 {
		for _, f := range declared {
			b.FeatureOrder = append(b.FeatureOrder, f.Name)
		}
	}

	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// parseFeatures accepts either a list of features or a map keyed by feature name.
// Map entries are returned sorted by name.
func parseFeatures(raw json.RawMessage) ([]Feature, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var list []Feature
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, mappingIncomplete("features list is malformed: %v", err)
		}
		for i, f := range list {
			if strings.TrimSpace(f.Name) == "" {
				return nil, mappingIncomplete("feature %d has no name", i)
			}
		}
		return list, nil

	case '{':
		var byName map[string]Feature
		if err := json.Unmarshal(trimmed, &byName); err != nil {
			return nil, mappingIncomplete("features map is malformed: %v", err)
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		list := make([]Feature, 0, len(names))
		for _, name := range names {
			f := byName[name]
			f.Name = name
			list = append(list, f)
		}
		return list, nil
	}

	return nil, mappingIncomplete("features must be a list or an object")
}

func (b *Binding) validate() error {
	if len(b.FeatureOrder) == 0 {
		return mappingIncomplete("feature_order is empty")
	}

	seen := make(map[string]bool, len(b.FeatureOrder))
	for _, name := range b.FeatureOrder {
		if seen[name] {
			return mappingIncomplete("feature %q listed twice in feature_order", name)
		}
		seen[name] = true

		f, ok := b.Features[name]
		if !ok {
			continue
		}
		if f.DivideBy != nil && *f.DivideBy == 0 {
			return mappingIncomplete("feature %q divides by zero", name)
		}
		if f.Clip != nil && f.Clip.Min != nil && f.Clip.Max != nil && *f.Clip.Min > *f.Clip.Max {
			return mappingIncomplete("feature %q has clip min above max", name)
		}
	}

	if math.IsNaN(b.Threshold) || b.Threshold < 0 || b.Threshold > 1 {
		return mappingIncomplete("threshold must be within [0, 1]")
	}

	switch b.Runtime {
	case RuntimeLinear:
		if b.ArtifactPath == "" {
			return modelNotFound("artifact_path is required for the linear runtime")
		}
	case RuntimeHTTP:
	default:
		return modelNotFound("unknown runtime %q", b.Runtime)
	}

	return nil
}

// Feature returns the declared feature or a pass-through feature reading the
// question of the same name
func (b *Binding) Feature(name string) Feature {
	if f, ok := b.Features[name]; ok {
		return f
	}
	return Feature{Name: name}
}

// Decide applies the threshold and labels to a probability
func (b *Binding) Decide(prob float64) (bool, string) {
	if prob >= b.Threshold {
		return true, b.Labels.Positive
	}
	return false, b.Labels.Negative
}

// String summarizes the binding for logs
func (b *Binding) String() string {
	return fmt.Sprintf("%s(%s, %d features)", b.Runtime, b.ArtifactPath, len(b.FeatureOrder))
}
