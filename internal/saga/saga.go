package saga

import (
	"context"
	"fmt"
	"sync"

	"cartflow/internal/domain"

	"go.uber.org/zap"
)

type Strategy string

const (
	StrategySequential Strategy = "SEQUENTIAL"
	StrategyParallel   Strategy = "PARALLEL"
)

const defaultMaxParallel = 8

// StepFunc is a caller-supplied action or compensation. Both are opaque to
// the handler, may block on I/O, and are not assumed idempotent.
type StepFunc func(ctx context.Context, data map[string]any) (any, error)

// Step is one unit of a saga: a forward action and the compensation that
// semantically undoes it.
type Step struct {
	Name         string
	Action       StepFunc
	Compensation StepFunc
}

type StepResult struct {
	Step   string `json:"step"`
	Output any    `json:"output,omitempty"`
}

// CompensationAttempt records one compensation invocation. Err is nil when
// the compensation succeeded; a non-nil Err never aborted the rollback loop.
type CompensationAttempt struct {
	Step string
	Err  error
}

func (a CompensationAttempt) OK() bool { return a.Err == nil }

// Result is the outcome of a saga execution. On failure Results holds the
// steps that completed before the failure and Compensations holds every
// rollback attempt, in the order they were made.
type Result struct {
	Success       bool
	Results       []StepResult
	Compensations []CompensationAttempt
}

// Handler executes an ordered list of reversible steps, compensating the
// already-succeeded ones in reverse order when a step fails. It never writes
// events; the engine owns the event log.
type Handler struct {
	log         *zap.Logger
	maxParallel int
}

func NewHandler(log *zap.Logger, maxParallel int) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Handler{log: log, maxParallel: maxParallel}
}

// Execute runs the steps under the given strategy. On failure the returned
// error is a *domain.StepFailedError wrapping the original action error, and
// the partial Result is returned alongside it so callers can inspect which
// compensations were attempted.
func (h *Handler) Execute(ctx context.Context, steps []Step, data map[string]any, strategy Strategy) (*Result, error) {
	if data == nil {
		data = map[string]any{}
	}
	switch strategy {
	case StrategySequential, "":
		return h.runSequential(ctx, steps, data)
	case StrategyParallel:
		return h.runParallel(ctx, steps, data)
	default:
		return nil, fmt.Errorf("unknown saga strategy %q", strategy)
	}
}

func (h *Handler) runSequential(ctx context.Context, steps []Step, data map[string]any) (*Result, error) {
	result := &Result{}
	var completed []Step

	for _, step := range steps {
		output, err := step.Action(ctx, data)
		if err != nil {
			h.log.Warn("saga step failed, compensating",
				zap.String("step", step.Name),
				zap.Int("completedSteps", len(completed)),
				zap.Error(err))
			result.Compensations = h.compensate(ctx, completed, data)
			return result, &domain.StepFailedError{Step: step.Name, Cause: err}
		}
		completed = append(completed, step)
		result.Results = append(result.Results, StepResult{Step: step.Name, Output: output})
	}

	result.Success = true
	return result, nil
}

// runParallel fans independent steps out with bounded concurrency. After the
// first failure no new step starts; in-flight steps settle, then every step
// that completed successfully is compensated in reverse completion order.
func (h *Handler) runParallel(ctx context.Context, steps []Step, data map[string]any) (*Result, error) {
	result := &Result{}
	sem := make(chan struct{}, h.maxParallel)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		completed  []Step
		firstErr   error
		failedStep string
	)

	for _, step := range steps {
		sem <- struct{}{}

		// Checked after the slot is acquired: a finished step has already
		// published its outcome by the time it releases the semaphore.
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			<-sem
			break
		}

		wg.Add(1)
		go func(step Step) {
			defer wg.Done()
			defer func() { <-sem }()

			output, err := step.Action(ctx, data)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					failedStep = step.Name
				}
				return
			}
			completed = append(completed, step)
			result.Results = append(result.Results, StepResult{Step: step.Name, Output: output})
		}(step)
	}

	wg.Wait()

	if firstErr != nil {
		h.log.Warn("parallel saga step failed, compensating",
			zap.String("step", failedStep),
			zap.Int("completedSteps", len(completed)),
			zap.Error(firstErr))
		result.Compensations = h.compensate(ctx, completed, data)
		return result, &domain.StepFailedError{Step: failedStep, Cause: firstErr}
	}

	result.Success = true
	return result, nil
}

// compensate undoes completed steps in reverse order. Every compensation is
// attempted; failures are logged and recorded, and the caller's original
// action error still propagates.
func (h *Handler) compensate(ctx context.Context, completed []Step, data map[string]any) []CompensationAttempt {
	attempts := make([]CompensationAttempt, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensation == nil {
			continue
		}
		if _, err := step.Compensation(ctx, data); err != nil {
			h.log.Error("compensation failed, continuing rollback",
				zap.String("step", step.Name),
				zap.Error(err))
			attempts = append(attempts, CompensationAttempt{
				Step: step.Name,
				Err:  &domain.CompensationError{Step: step.Name, Cause: err},
			})
			continue
		}
		attempts = append(attempts, CompensationAttempt{Step: step.Name})
	}
	return attempts
}

// StepNames is a convenience for event payloads and logging.
func StepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
