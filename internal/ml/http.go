package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// HTTPRuntime scores through an external model server
type HTTPRuntime struct {
	defaultURL string
	client     *http.Client
}

// NewHTTPRuntime creates a runtime; defaultURL is used for bindings without an endpoint
func NewHTTPRuntime(defaultURL string, timeout time.Duration) *HTTPRuntime {
	// recompute workers share keep-alive connections to the model server
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &HTTPRuntime{
		defaultURL: defaultURL,
		client:     client,
	}
}

type predictRequest struct {
	Artifact     string    `json:"artifact"`
	FeatureOrder []string  `json:"feature_order"`
	Features     []float64 `json:"features"`
}

type predictResponse struct {
	Probability *float64 `json:"probability"`
	Error       string   `json:"error,omitempty"`
}

// Load resolves the endpoint; the remote server owns the artifact
func (r *HTTPRuntime) Load(_ context.Context, b *Binding) (Model, error) {
	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = r.defaultURL
	}
	if endpoint == "" {
		return nil, modelNotFound("no endpoint configured for the http runtime")
	}
	return &httpModel{client: r.client, endpoint: endpoint, binding: b}, nil
}

type httpModel struct {
	client   *http.Client
	endpoint string
	binding  *Binding
}

func (m *httpModel) Predict(ctx context.Context, features []float64) (float64, error) {
	body, err := json.Marshal(predictRequest{
		Artifact:     m.binding.ArtifactPath,
		FeatureOrder: m.binding.FeatureOrder,
		Features:     features,
	})
	if err != nil {
		return 0, runtimeError(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, runtimeError(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, runtimeError(err, "model server unreachable")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return 0, modelNotFound("model server has no artifact %q", m.binding.ArtifactPath)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Model server returned error", "status", resp.StatusCode, "body", string(bodyBytes))
		return 0, runtimeError(nil, "model server returned status %d", resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, runtimeError(err, "failed to decode model server response")
	}
	if out.Probability == nil {
		if out.Error != "" {
			return 0, runtimeError(nil, "model server: %s", out.Error)
		}
		return 0, runtimeError(nil, "model server response has no probability")
	}

	return *out.Probability, nil
}
