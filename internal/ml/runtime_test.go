package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orienta/internal/models"
)

func writeArtifact(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLinearRuntimeLogistic(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "model.json", `{"intercept": 0, "coefficients": {"a": 1, "b": -1}}`)

	b := &Binding{Runtime: RuntimeLinear, ArtifactPath: "model.json", FeatureOrder: []string{"a", "b"}, Threshold: 0.5,
		Labels: Labels{Positive: "yes", Negative: "no"}}
	engine := NewEngineWithRuntimes(map[string]Runtime{RuntimeLinear: NewLinearRuntime(dir)})

	result := engine.ScoreOne(context.Background(), b, map[string]models.AnswerValue{
		"a": models.NumberValue(2),
		"b": models.NumberValue(2),
	})
	require.Equal(t, StatusOK, result.Status)
	assert.InDelta(t, 0.5, *result.Prob, 1e-9)
	assert.True(t, *result.Decision)
	assert.Equal(t, "yes", *result.Label)
	assert.Nil(t, result.Reason)
}

func TestLinearRuntimeIdentityList(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "m.json", `{"intercept": 0.1, "coefficients": [0.1, 0.2], "link": "identity"}`)

	model, err := NewLinearRuntime(dir).Load(context.Background(), &Binding{ArtifactPath: "m.json", FeatureOrder: []string{"a", "b"}})
	require.NoError(t, err)

	prob, err := model.Predict(context.Background(), []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, prob, 1e-9)

	_, err = model.Predict(context.Background(), []float64{1})
	assert.Equal(t, KindRuntimeError, KindOf(err))
}

func TestLinearRuntimeFailures(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "bad.json", `not json`)
	writeArtifact(t, dir, "short.json", `{"coefficients": [1]}`)
	rt := NewLinearRuntime(dir)

	tests := []struct {
		path string
		kind FailureKind
	}{
		{"missing.json", KindModelNotFound},
		{"../outside.json", KindModelNotFound},
		{"/etc/passwd", KindModelNotFound},
		{"bad.json", KindRuntimeError},
		{"short.json", KindRuntimeError},
	}
	for _, tt := range tests {
		_, err := rt.Load(context.Background(), &Binding{ArtifactPath: tt.path, FeatureOrder: []string{"a", "b"}})
		require.Error(t, err, tt.path)
		assert.Equal(t, tt.kind, KindOf(err), tt.path)
	}
}

func TestHTTPRuntime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Artifact {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_ = json.NewEncoder(w).Encode(map[string]float64{"probability": req.Features[0] / 10})
		}
	}))
	defer server.Close()

	rt := NewHTTPRuntime(server.URL, 5*time.Second)
	ctx := context.Background()

	model, err := rt.Load(ctx, &Binding{ArtifactPath: "ok", FeatureOrder: []string{"a"}})
	require.NoError(t, err)
	prob, err := model.Predict(ctx, []float64{3})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, prob, 1e-9)

	model, err = rt.Load(ctx, &Binding{ArtifactPath: "missing", FeatureOrder: []string{"a"}})
	require.NoError(t, err)
	_, err = model.Predict(ctx, []float64{3})
	assert.Equal(t, KindModelNotFound, KindOf(err))

	model, err = rt.Load(ctx, &Binding{ArtifactPath: "broken", FeatureOrder: []string{"a"}})
	require.NoError(t, err)
	_, err = model.Predict(ctx, []float64{3})
	assert.Equal(t, KindRuntimeError, KindOf(err))
}

func TestHTTPRuntimeNoEndpoint(t *testing.T) {
	_, err := NewHTTPRuntime("", time.Second).Load(context.Background(), &Binding{})
	assert.Equal(t, KindModelNotFound, KindOf(err))
}

func TestResultFailure(t *testing.T) {
	b := &Binding{FeatureOrder: []string{"a"}, Features: map[string]Feature{}}
	engine := NewEngineWithRuntimes(map[string]Runtime{})
	b.Runtime = "nope"

	result := engine.ScoreOne(context.Background(), b, nil)
	assert.Equal(t, string(KindModelNotFound), result.Status)
	require.NotNil(t, result.Reason)
	assert.Nil(t, result.Prob)
}
