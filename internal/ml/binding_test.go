package ml

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBindingMissing(t *testing.T) {
	for _, doc := range []string{``, `{}`, `{"ml_binding": null}`, `{"other": 1}`} {
		_, err := ParseBinding(json.RawMessage(doc))
		assert.ErrorIs(t, err, ErrNoBinding, "metadata %q", doc)
	}
}

func TestParseBindingListFeatures(t *testing.T) {
	meta := `{"ml_binding": {
		"runtime": "linear",
		"artifact_path": "model.json",
		"feature_order": ["age", "likes_math"],
		"features": [
			{"name": "age", "source": "q_age", "divide_by": 10},
			{"name": "likes_math", "default": 0}
		],
		"threshold": 0.7,
		"labels": {"positive": "stem", "negative": "other"}
	}}`

	b, err := ParseBinding(json.RawMessage(meta))
	require.NoError(t, err)
	assert.Equal(t, RuntimeLinear, b.Runtime)
	assert.Equal(t, []string{"age", "likes_math"}, b.FeatureOrder)
	assert.Equal(t, "q_age", b.Feature("age").SourceCode())
	assert.Equal(t, "likes_math", b.Feature("likes_math").SourceCode())
	assert.InDelta(t, 0.7, b.Threshold, 1e-9)

	decision, label := b.Decide(0.7)
	assert.True(t, decision)
	assert.Equal(t, "stem", label)

	decision, label = b.Decide(0.69)
	assert.False(t, decision)
	assert.Equal(t, "other", label)
}

func TestParseBindingMapFeaturesDefaults(t *testing.T) {
	meta := `{"ml_binding": {
		"artifact_path": "m.json",
		"features": {"b": {"source": "q2"}, "a": {"source": "q1"}}
	}}`

	b, err := ParseBinding(json.RawMessage(meta))
	require.NoError(t, err)
	assert.Equal(t, RuntimeLinear, b.Runtime)
	assert.Equal(t, []string{"a", "b"}, b.FeatureOrder)
	assert.InDelta(t, DefaultThreshold, b.Threshold, 1e-9)
	assert.Equal(t, "positive", b.Labels.Positive)
}

func TestParseBindingInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind FailureKind
	}{
		{"not an object", `[1,2]`, KindFeatureMappingIncomplete},
		{"malformed binding", `{"ml_binding": "x"}`, KindFeatureMappingIncomplete},
		{"empty order", `{"ml_binding": {"artifact_path": "m.json"}}`, KindFeatureMappingIncomplete},
		{"duplicate feature", `{"ml_binding": {"artifact_path": "m.json", "feature_order": ["a", "a"]}}`, KindFeatureMappingIncomplete},
		{"divide by zero", `{"ml_binding": {"artifact_path": "m.json", "feature_order": ["a"], "features": [{"name": "a", "divide_by": 0}]}}`, KindFeatureMappingIncomplete},
		{"inverted clip", `{"ml_binding": {"artifact_path": "m.json", "feature_order": ["a"], "features": [{"name": "a", "clip": {"min": 2, "max": 1}}]}}`, KindFeatureMappingIncomplete},
		{"threshold range", `{"ml_binding": {"artifact_path": "m.json", "feature_order": ["a"], "threshold": 2}}`, KindFeatureMappingIncomplete},
		{"missing artifact", `{"ml_binding": {"feature_order": ["a"]}}`, KindModelNotFound},
		{"unknown runtime", `{"ml_binding": {"runtime": "onnx", "artifact_path": "m", "feature_order": ["a"]}}`, KindModelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBinding(json.RawMessage(tt.doc))
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrNoBinding))
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestParseBindingHTTPWithoutArtifact(t *testing.T) {
	b, err := ParseBinding(json.RawMessage(`{"ml_binding": {"runtime": "HTTP", "feature_order": ["a"]}}`))
	require.NoError(t, err)
	assert.Equal(t, RuntimeHTTP, b.Runtime)
}
