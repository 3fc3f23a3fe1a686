package ml

import (
	"context"
	"log/slog"
	"math"

	"orienta/internal/config"
	"orienta/internal/models"
)

// Model scores an assembled feature vector
type Model interface {
	Predict(ctx context.Context, features []float64) (float64, error)
}

// Runtime loads the model referenced by a binding
type Runtime interface {
	Load(ctx context.Context, b *Binding) (Model, error)
}

// Engine turns a version binding plus a response's answers into an MLResult
type Engine struct {
	runtimes map[string]Runtime
}

// NewEngine creates an engine with the linear and http runtimes
func NewEngine(cfg *config.MLConfig) *Engine {
	return &Engine{
		runtimes: map[string]Runtime{
			RuntimeLinear: NewLinearRuntime(cfg.ArtifactDir),
			RuntimeHTTP:   NewHTTPRuntime(cfg.RuntimeURL, cfg.Timeout),
		},
	}
}

// NewEngineWithRuntimes creates an engine with custom runtimes
func NewEngineWithRuntimes(runtimes map[string]Runtime) *Engine {
	return &Engine{runtimes: runtimes}
}

// Load resolves the runtime of the binding and loads its model once for a batch
func (e *Engine) Load(ctx context.Context, b *Binding) (Model, error) {
	rt, ok := e.runtimes[b.Runtime]
	if !ok {
		return nil, modelNotFound("unknown runtime %q", b.Runtime)
	}
	return rt.Load(ctx, b)
}

// Score assembles features and runs the model. Failures are reported through the
// returned error; use Result to obtain the persisted form.
func (e *Engine) Score(ctx context.Context, b *Binding, model Model, answers map[string]models.AnswerValue) (float64, error) {
	features, err := Assemble(b, answers)
	if err != nil {
		return 0, err
	}

	prob, err := model.Predict(ctx, features)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(prob) || math.IsInf(prob, 0) {
		return 0, runtimeError(nil, "model returned a non-finite score")
	}
	return prob, nil
}

// Result converts a score or failure into the stored scoring columns
func Result(b *Binding, prob float64, err error) models.MLResult {
	if err != nil {
		reason := ReasonOf(err)
		return models.MLResult{
			Status: string(KindOf(err)),
			Reason: &reason,
		}
	}

	decision, label := b.Decide(prob)
	return models.MLResult{
		Prob:     &prob,
		Decision: &decision,
		Label:    &label,
		Status:   StatusOK,
	}
}

// ScoreOne loads the model and scores a single response
func (e *Engine) ScoreOne(ctx context.Context, b *Binding, answers map[string]models.AnswerValue) models.MLResult {
	model, err := e.Load(ctx, b)
	if err != nil {
		slog.Warn("Failed to load model", "binding", b.String(), "error", err)
		return Result(b, 0, err)
	}
	prob, err := e.Score(ctx, b, model, answers)
	return Result(b, prob, err)
}

func checkLength(coefficients, features int) error {
	if coefficients != features {
		return runtimeError(nil, "model expects %d features, got %d", coefficients, features)
	}
	return nil
}
