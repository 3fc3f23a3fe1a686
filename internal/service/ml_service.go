package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"orienta/internal/ml"
	"orienta/internal/models"
	"orienta/internal/repository"
)

// RecomputeOptions selects the responses of a bulk recompute
type RecomputeOptions struct {
	OnlyFinalized bool `json:"onlyFinalized"`
	Limit         int  `json:"limit"`
	DryRun        bool `json:"dryRun"`
}

// RecomputeFailure describes one response that could not be scored
type RecomputeFailure struct {
	ResponseID int64  `json:"response_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// RecomputeResult aggregates the outcome of a bulk recompute
type RecomputeResult struct {
	Total     int                `json:"total"`
	Processed int                `json:"processed"`
	OK        int                `json:"ok"`
	Errors    int                `json:"errors"`
	DryRun    bool               `json:"dry_run"`
	Failures  []RecomputeFailure `json:"failures"`
}

// MLService scores responses with the model bound to their version
type MLService struct {
	versionRepo   *repository.VersionRepository
	structureRepo *repository.StructureRepository
	responseRepo  *repository.ResponseRepository
	engine        *ml.Engine
	workers       int
}

// NewMLService creates a new ML service; workers bounds concurrent scoring calls
func NewMLService(
	versionRepo *repository.VersionRepository,
	structureRepo *repository.StructureRepository,
	responseRepo *repository.ResponseRepository,
	engine *ml.Engine,
	workers int,
) *MLService {
	if workers < 1 {
		workers = 1
	}
	return &MLService{
		versionRepo:   versionRepo,
		structureRepo: structureRepo,
		responseRepo:  responseRepo,
		engine:        engine,
		workers:       workers,
	}
}

// binding loads the version and parses its ml_binding
func (s *MLService) binding(ctx context.Context, versionID int64) (*models.Version, *ml.Binding, error) {
	v, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, nil, upstream("get version", err)
	}
	if v == nil {
		return nil, nil, &NotFoundError{Resource: "version", Key: versionID}
	}

	b, err := ml.ParseBinding(v.Metadata)
	if err != nil {
		return v, nil, err
	}
	return v, b, nil
}

// Recompute scores the responses of a version. One failing response never aborts
// the batch; in dry-run mode nothing is persisted.
func (s *MLService) Recompute(ctx context.Context, versionID int64, opts RecomputeOptions) (*RecomputeResult, error) {
	if opts.Limit < 0 {
		return nil, &ValidationError{Message: "invalid recompute options", Fields: map[string]string{"limit": "must not be negative"}}
	}

	_, binding, err := s.binding(ctx, versionID)
	if err != nil {
		if errors.Is(err, ml.ErrNoBinding) {
			return nil, NewValidationError("version %d has no ml_binding in its metadata", versionID)
		}
		if isDomainError(err) {
			return nil, err
		}
		return nil, &ValidationError{
			Message: "invalid ml_binding",
			Fields:  map[string]string{"ml_binding": ml.ReasonOf(err)},
		}
	}

	questions, err := s.structureRepo.ListQuestions(ctx, versionID)
	if err != nil {
		return nil, upstream("list questions", err)
	}

	responses, err := s.responseRepo.List(ctx, versionID, repository.ResponseFilter{OnlyFinalized: opts.OnlyFinalized}, opts.Limit, 0)
	if err != nil {
		return nil, upstream("list responses", err)
	}

	ids := make([]int64, len(responses))
	for i, r := range responses {
		ids[i] = r.ID
	}
	stored, err := s.responseRepo.ListAnswersFor(ctx, ids)
	if err != nil {
		return nil, upstream("list answers", err)
	}

	result := &RecomputeResult{
		Total:    len(responses),
		DryRun:   opts.DryRun,
		Failures: []RecomputeFailure{},
	}
	if len(responses) == 0 {
		return result, nil
	}

	// The model is loaded once; a load failure is reported on every response
	model, loadErr := s.engine.Load(ctx, binding)
	if loadErr != nil {
		slog.Warn("Failed to load model for recompute", "version_id", versionID, "binding", binding.String(), "error", loadErr)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, resp := range responses {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var scored models.MLResult
			if loadErr != nil {
				scored = ml.Result(binding, 0, loadErr)
			} else {
				answers := decodeStored(questions, stored[resp.ID])
				prob, err := s.engine.Score(ctx, binding, model, answers)
				scored = ml.Result(binding, prob, err)
			}

			if !opts.DryRun {
				if err := s.responseRepo.UpdateScore(ctx, resp.ID, scored, time.Now().UTC()); err != nil {
					slog.Error("Failed to store score", "response_id", resp.ID, "error", err)
					reason := "failed to store score: " + err.Error()
					scored = models.MLResult{Status: string(ml.KindRuntimeError), Reason: &reason}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if scored.Status == ml.StatusOK {
				result.OK++
				return nil
			}
			result.Errors++
			failure := RecomputeFailure{ResponseID: resp.ID, Status: scored.Status}
			if scored.Reason != nil {
				failure.Reason = *scored.Reason
			}
			result.Failures = append(result.Failures, failure)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, upstream("recompute", err)
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ResponseID < result.Failures[j].ResponseID
	})

	slog.Info("ML recompute finished",
		"version_id", versionID,
		"total", result.Total,
		"ok", result.OK,
		"errors", result.Errors,
		"dry_run", result.DryRun,
	)
	return result, nil
}

// ScoreResponse scores and stores a single response. It returns nil without
// error when the version has no binding.
func (s *MLService) ScoreResponse(ctx context.Context, responseID int64) (*models.MLResult, error) {
	resp, err := s.responseRepo.GetByID(ctx, responseID)
	if err != nil {
		return nil, upstream("get response", err)
	}
	if resp == nil {
		return nil, &NotFoundError{Resource: "response", Key: responseID}
	}

	_, binding, err := s.binding(ctx, resp.VersionID)
	if errors.Is(err, ml.ErrNoBinding) {
		return nil, nil
	}
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		result := ml.Result(nil, 0, err)
		return &result, s.storeScore(ctx, responseID, result)
	}

	questions, err := s.structureRepo.ListQuestions(ctx, resp.VersionID)
	if err != nil {
		return nil, upstream("list questions", err)
	}
	stored, err := s.responseRepo.ListAnswers(ctx, responseID)
	if err != nil {
		return nil, upstream("list answers", err)
	}

	result := s.engine.ScoreOne(ctx, binding, decodeStored(questions, stored))
	return &result, s.storeScore(ctx, responseID, result)
}

func (s *MLService) storeScore(ctx context.Context, responseID int64, result models.MLResult) error {
	if err := s.responseRepo.UpdateScore(ctx, responseID, result, time.Now().UTC()); err != nil {
		return upstream("store score", err)
	}
	return nil
}
