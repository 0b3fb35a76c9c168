// Package engine implements the workflow orchestration core: it validates
// definitions, drives state transitions under optimistic concurrency,
// delegates saga execution to the compensation handler, and records every
// transition in the append-only event log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cartflow/internal/core/ports"
	"cartflow/internal/domain"
	"cartflow/internal/metrics"
	"cartflow/internal/saga"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// lastSuccessfulStateKey is the context fallback consulted when retry
// recovery finds no usable transition in the event log.
const lastSuccessfulStateKey = "lastSuccessfulState"

const maxFailureMarkAttempts = 3

type Engine struct {
	repo      ports.WorkflowRepository
	events    ports.EventStore
	sagas     *saga.Handler
	publisher ports.EventPublisher
	log       *zap.Logger
}

// New wires the engine. publisher may be nil; publishing is notification
// fan-out only and never gates an operation.
func New(repo ports.WorkflowRepository, events ports.EventStore, sagas *saga.Handler, publisher ports.EventPublisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if sagas == nil {
		sagas = saga.NewHandler(log, 0)
	}
	return &Engine{repo: repo, events: events, sagas: sagas, publisher: publisher, log: log}
}

// CreateWorkflow validates the definition, merges its default context with
// the caller's (caller wins), and persists a new ACTIVE instance. The
// instance row is written before the WORKFLOW_STARTED event so the log never
// references an instance that was not durable.
func (e *Engine) CreateWorkflow(ctx context.Context, def *domain.WorkflowDefinition, initialContext map[string]any) (*domain.WorkflowInstance, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	merged := mergeContext(def.Context, initialContext)
	instance := domain.NewWorkflowInstance(def.ID, def.InitialState, merged)

	if err := e.repo.Create(ctx, instance); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, instance.ID, domain.EventWorkflowStarted, map[string]any{
		"definitionId": def.ID,
		"initialState": def.InitialState,
	}); err != nil {
		return nil, err
	}

	metrics.WorkflowsStarted.Inc()
	e.log.Info("workflow started",
		zap.String("workflowId", instance.ID.String()),
		zap.String("definition", def.ID),
		zap.String("state", instance.CurrentState))
	return instance, nil
}

// CreateFromDefinition is the catalog-lookup convenience used by the HTTP
// layer.
func (e *Engine) CreateFromDefinition(ctx context.Context, definitionID string, initialContext map[string]any) (*domain.WorkflowInstance, error) {
	def, err := e.repo.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	return e.CreateWorkflow(ctx, def, initialContext)
}

// Transition applies one event to the instance's state machine. Validation
// happens before any mutation: an unhandled event type leaves the instance
// and the event log untouched. The state change is a single CAS keyed on the
// version this call read; a concurrent writer surfaces as a typed conflict.
// Reaching a final state folds completion into the same mutation, so the
// whole transition costs exactly one version bump.
func (e *Engine) Transition(ctx context.Context, id uuid.UUID, event domain.TransitionEvent) (*domain.WorkflowInstance, error) {
	instance, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != domain.WorkflowActive {
		metrics.Transitions.WithLabelValues("rejected").Inc()
		return nil, &domain.InvalidTransitionError{EventType: event.Type, State: instance.CurrentState}
	}

	def, err := e.repo.GetDefinition(ctx, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	transition, ok := def.States[instance.CurrentState].On[event.Type]
	if !ok {
		metrics.Transitions.WithLabelValues("rejected").Inc()
		return nil, &domain.InvalidTransitionError{EventType: event.Type, State: instance.CurrentState}
	}

	from := instance.CurrentState
	target := transition.Target
	newContext := mergeContext(instance.Context, event.Data)
	final := def.IsFinalState(target)

	fields := map[string]any{
		"current_state": target,
		"context":       datatypes.JSONMap(newContext),
	}
	var completedAt time.Time
	if final {
		completedAt = time.Now()
		fields["status"] = domain.WorkflowCompleted
		fields["completed_at"] = completedAt
	}

	if err := e.repo.Update(ctx, id, fields, instance.Version); err != nil {
		var conflict *domain.ConcurrencyConflictError
		if errors.As(err, &conflict) {
			metrics.ConcurrencyConflicts.Inc()
			metrics.Transitions.WithLabelValues("conflict").Inc()
		} else {
			metrics.Transitions.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if err := e.appendEvent(ctx, id, domain.EventStateTransitioned, map[string]any{
		"from":  from,
		"to":    target,
		"event": event.Type,
	}); err != nil {
		return nil, err
	}

	instance.CurrentState = target
	instance.Context = datatypes.JSONMap(newContext)
	instance.Version++
	instance.UpdatedAt = time.Now()

	if final {
		if err := e.appendEvent(ctx, id, domain.EventWorkflowCompleted, map[string]any{
			"finalState": target,
		}); err != nil {
			return nil, err
		}
		instance.Status = domain.WorkflowCompleted
		instance.CompletedAt = &completedAt
		e.log.Info("workflow completed",
			zap.String("workflowId", id.String()),
			zap.String("finalState", target))
	}

	metrics.Transitions.WithLabelValues("ok").Inc()
	return instance, nil
}

// ExecuteSaga records SAGA_STARTED, delegates to the compensation handler,
// and records the outcome. A step failure marks the instance FAILED and the
// original step error is returned to the caller after SAGA_FAILED is
// durable; the engine never swallows saga failures.
func (e *Engine) ExecuteSaga(ctx context.Context, id uuid.UUID, steps []saga.Step, data map[string]any, strategy saga.Strategy) (*saga.Result, error) {
	instance, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != domain.WorkflowActive {
		return nil, fmt.Errorf("workflow %s is %s, saga not started", id, instance.Status)
	}

	if err := e.appendEvent(ctx, id, domain.EventSagaStarted, map[string]any{
		"steps":    saga.StepNames(steps),
		"strategy": string(strategy),
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	result, sagaErr := e.sagas.Execute(ctx, steps, data, strategy)
	metrics.SagaDuration.Observe(time.Since(start).Seconds())

	if sagaErr == nil {
		if err := e.appendEvent(ctx, id, domain.EventSagaCompleted, map[string]any{
			"results": resultPayload(result),
		}); err != nil {
			return result, err
		}
		metrics.SagaExecutions.WithLabelValues("ok").Inc()
		return result, nil
	}

	metrics.SagaExecutions.WithLabelValues("failed").Inc()
	if result != nil {
		for _, attempt := range result.Compensations {
			if attempt.OK() {
				metrics.CompensationsAttempted.WithLabelValues("ok").Inc()
			} else {
				metrics.CompensationsAttempted.WithLabelValues("failed").Inc()
			}
		}
	}

	failedStep := ""
	var stepErr *domain.StepFailedError
	if errors.As(sagaErr, &stepErr) {
		failedStep = stepErr.Step
	}

	e.markFailed(ctx, id)

	if err := e.appendEvent(ctx, id, domain.EventSagaFailed, map[string]any{
		"error":      sagaErr.Error(),
		"failedStep": failedStep,
	}); err != nil {
		e.log.Error("recording saga failure", zap.String("workflowId", id.String()), zap.Error(err))
	}

	return result, sagaErr
}

// markFailed flips the instance to FAILED with a small CAS retry loop; the
// saga may have run for a while and raced other writers. Cancellation is
// cooperative, so an instance that went terminal meanwhile is left alone.
func (e *Engine) markFailed(ctx context.Context, id uuid.UUID) {
	for attempt := 0; attempt < maxFailureMarkAttempts; attempt++ {
		instance, err := e.repo.FindByID(ctx, id)
		if err != nil {
			e.log.Error("loading workflow to mark failed", zap.String("workflowId", id.String()), zap.Error(err))
			return
		}
		if instance.IsTerminal() || instance.Status == domain.WorkflowFailed {
			return
		}
		err = e.repo.Update(ctx, id, map[string]any{"status": domain.WorkflowFailed}, instance.Version)
		if err == nil {
			return
		}
		var conflict *domain.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			e.log.Error("marking workflow failed", zap.String("workflowId", id.String()), zap.Error(err))
			return
		}
	}
	e.log.Error("marking workflow failed: retries exhausted", zap.String("workflowId", id.String()))
}

// ApplyTemplate checks the template's required parameters and delegates to
// CreateWorkflow with the parameters as initial context.
func (e *Engine) ApplyTemplate(ctx context.Context, templateID string, parameters map[string]any) (*domain.WorkflowInstance, error) {
	tpl, err := e.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	for _, required := range tpl.Parameters {
		if _, ok := parameters[required]; !ok {
			return nil, &domain.MissingParameterError{Parameter: required}
		}
	}
	return e.CreateWorkflow(ctx, &tpl.Definition, parameters)
}

// CancelWorkflow is cooperative: it changes persisted status only and never
// interrupts an in-flight saga.
func (e *Engine) CancelWorkflow(ctx context.Context, id uuid.UUID, reason string) (*domain.WorkflowInstance, error) {
	instance, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() {
		return nil, &domain.InvalidCancellationError{WorkflowID: id, Status: instance.Status}
	}

	if err := e.repo.Update(ctx, id, map[string]any{"status": domain.WorkflowCancelled}, instance.Version); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, id, domain.EventWorkflowCancelled, map[string]any{
		"reason": reason,
	}); err != nil {
		return nil, err
	}

	instance.Status = domain.WorkflowCancelled
	instance.Version++
	instance.UpdatedAt = time.Now()
	e.log.Info("workflow cancelled",
		zap.String("workflowId", id.String()),
		zap.String("reason", reason))
	return instance, nil
}

// RetryFailedWorkflow resumes a FAILED instance from its last good state,
// recovered by replaying the event log: the newest STATE_TRANSITIONED whose
// target is not the failure state wins. Fallbacks, in order: the instance's
// lastSuccessfulState context key, then the definition's recovery state.
func (e *Engine) RetryFailedWorkflow(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	instance, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.Status != domain.WorkflowFailed {
		return nil, &domain.InvalidRetryError{WorkflowID: id, Status: instance.Status}
	}

	resumeState, err := e.recoverResumeState(ctx, instance)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"status":        domain.WorkflowActive,
		"current_state": resumeState,
	}
	if err := e.repo.Update(ctx, id, fields, instance.Version); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, id, domain.EventWorkflowRetried, map[string]any{
		"fromState": instance.CurrentState,
		"toState":   resumeState,
	}); err != nil {
		return nil, err
	}

	e.log.Info("workflow retried",
		zap.String("workflowId", id.String()),
		zap.String("fromState", instance.CurrentState),
		zap.String("toState", resumeState))

	instance.CurrentState = resumeState
	instance.Status = domain.WorkflowActive
	instance.Version++
	instance.UpdatedAt = time.Now()
	return instance, nil
}

func (e *Engine) recoverResumeState(ctx context.Context, instance *domain.WorkflowInstance) (string, error) {
	records, err := e.events.ListByWorkflow(ctx, instance.ID, 0)
	if err != nil {
		return "", err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Type != domain.EventStateTransitioned {
			continue
		}
		if to, ok := records[i].Data["to"].(string); ok && to != instance.CurrentState {
			return to, nil
		}
	}

	if last, ok := instance.Context[lastSuccessfulStateKey].(string); ok && last != "" {
		return last, nil
	}

	def, err := e.repo.GetDefinition(ctx, instance.DefinitionID)
	if err != nil {
		return "", err
	}
	return def.FallbackState(), nil
}

// GetWorkflow returns the current materialized instance.
func (e *Engine) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	return e.repo.FindByID(ctx, id)
}

// GetWorkflowHistory returns the ordered event stream; afterSeq=0 means the
// full stream.
func (e *Engine) GetWorkflowHistory(ctx context.Context, id uuid.UUID, afterSeq int) ([]domain.WorkflowEventRecord, error) {
	if _, err := e.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return e.events.ListByWorkflow(ctx, id, afterSeq)
}

// appendEvent writes the record and then fans it out. A failed append aborts
// the enclosing operation; a failed publish is only logged.
func (e *Engine) appendEvent(ctx context.Context, workflowID uuid.UUID, eventType domain.EventType, data map[string]any) error {
	record := domain.NewWorkflowEvent(workflowID, eventType, data)
	if err := e.events.Append(ctx, record); err != nil {
		return fmt.Errorf("appending %s event: %w", eventType, err)
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, record); err != nil {
			e.log.Warn("publishing workflow event",
				zap.String("workflowId", workflowID.String()),
				zap.String("type", string(eventType)),
				zap.Error(err))
		}
	}
	return nil
}

func mergeContext(base map[string]any, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func resultPayload(result *saga.Result) []map[string]any {
	if result == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, map[string]any{"step": r.Step, "output": r.Output})
	}
	return out
}
