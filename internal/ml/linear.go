package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Link functions of a linear artifact
const (
	LinkLogistic = "logistic"
	LinkIdentity = "identity"
)

// LinearArtifact is the JSON document describing a linear model
type LinearArtifact struct {
	Intercept    float64         `json:"intercept"`
	Coefficients json.RawMessage `json:"coefficients"`
	Link         string          `json:"link"`
}

// LinearRuntime loads linear artifacts from a directory
type LinearRuntime struct {
	dir string
}

// NewLinearRuntime creates a runtime rooted at dir
func NewLinearRuntime(dir string) *LinearRuntime {
	return &LinearRuntime{dir: dir}
}

// Load reads and parses the artifact referenced by the binding
func (r *LinearRuntime) Load(_ context.Context, b *Binding) (Model, error) {
	path, err := r.resolve(b.ArtifactPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, modelNotFound("artifact %q does not exist", b.ArtifactPath)
		}
		return nil, runtimeError(err, "failed to read artifact %q", b.ArtifactPath)
	}

	var artifact LinearArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, runtimeError(err, "artifact %q is not a valid linear model", b.ArtifactPath)
	}

	coefficients, err := orderCoefficients(artifact.Coefficients, b.FeatureOrder)
	if err != nil {
		return nil, err
	}

	link := strings.ToLower(artifact.Link)
	switch link {
	case "":
		link = LinkLogistic
	case LinkLogistic, LinkIdentity:
	default:
		return nil, runtimeError(nil, "unsupported link %q", artifact.Link)
	}

	return &linearModel{intercept: artifact.Intercept, coefficients: coefficients, link: link}, nil
}

// resolve joins the artifact path to the runtime directory and refuses paths
// that leave it
func (r *LinearRuntime) resolve(artifactPath string) (string, error) {
	if filepath.IsAbs(artifactPath) {
		return "", modelNotFound("artifact path %q must be relative", artifactPath)
	}
	root, err := filepath.Abs(r.dir)
	if err != nil {
		return "", runtimeError(err, "invalid artifact directory")
	}
	full := filepath.Join(root, artifactPath)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", modelNotFound("artifact path %q escapes the artifact directory", artifactPath)
	}
	return full, nil
}

// orderCoefficients accepts a list aligned with feature_order or a map keyed by
// feature name
func orderCoefficients(raw json.RawMessage, order []string) ([]float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, runtimeError(nil, "artifact has no coefficients")
	}

	if trimmed[0] == '{' {
		var byName map[string]float64
		if err := json.Unmarshal(trimmed, &byName); err != nil {
			return nil, runtimeError(err, "coefficients map is malformed")
		}
		coefficients := make([]float64, len(order))
		for i, name := range order {
			c, ok := byName[name]
			if !ok {
				return nil, mappingIncomplete("model has no coefficient for feature %q", name)
			}
			coefficients[i] = c
		}
		return coefficients, nil
	}

	var list []float64
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, runtimeError(err, "coefficients list is malformed")
	}
	if err := checkLength(len(list), len(order)); err != nil {
		return nil, err
	}
	return list, nil
}

type linearModel struct {
	intercept    float64
	coefficients []float64
	link         string
}

func (m *linearModel) Predict(_ context.Context, features []float64) (float64, error) {
	if err := checkLength(len(m.coefficients), len(features)); err != nil {
		return 0, err
	}

	z := m.intercept
	for i, x := range features {
		z += m.coefficients[i] * x
	}

	if m.link == LinkIdentity {
		return z, nil
	}
	return 1 / (1 + math.Exp(-z)), nil
}
