package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cartflow/internal/domain"

	"github.com/stretchr/testify/require"
)

// recorder tracks action and compensation invocations across a saga run.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func okStep(name string, rec *recorder) Step {
	return Step{
		Name: name,
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			rec.add("action:" + name)
			return name + "-done", nil
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			rec.add("compensate:" + name)
			return nil, nil
		},
	}
}

func failingStep(name string, cause error, rec *recorder) Step {
	return Step{
		Name: name,
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			rec.add("action:" + name)
			return nil, cause
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			rec.add("compensate:" + name)
			return nil, nil
		},
	}
}

func TestSequentialSuccess(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 0)

	result, err := h.Execute(context.Background(), []Step{
		okStep("reserve_inventory", rec),
		okStep("charge_payment", rec),
	}, nil, StrategySequential)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Results, 2)
	require.Equal(t, "reserve_inventory", result.Results[0].Step)
	require.Equal(t, "charge_payment", result.Results[1].Step)
	require.Empty(t, result.Compensations)
	require.Equal(t, []string{"action:reserve_inventory", "action:charge_payment"}, rec.calls)
}

func TestSequentialFailureCompensatesInReverse(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 0)
	cause := errors.New("Shipping service unavailable")

	result, err := h.Execute(context.Background(), []Step{
		okStep("reserve_inventory", rec),
		okStep("charge_payment", rec),
		failingStep("create_shipment", cause, rec),
	}, nil, StrategySequential)

	require.Error(t, err)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "Shipping service unavailable")

	var stepErr *domain.StepFailedError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "create_shipment", stepErr.Step)

	require.False(t, result.Success)
	require.Equal(t, []string{
		"action:reserve_inventory",
		"action:charge_payment",
		"action:create_shipment",
		"compensate:charge_payment",
		"compensate:reserve_inventory",
	}, rec.calls)

	require.Len(t, result.Compensations, 2)
	require.Equal(t, "charge_payment", result.Compensations[0].Step)
	require.Equal(t, "reserve_inventory", result.Compensations[1].Step)
	require.True(t, result.Compensations[0].OK())
	require.True(t, result.Compensations[1].OK())
}

func TestFirstStepFailureNeedsNoCompensation(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 0)

	result, err := h.Execute(context.Background(), []Step{
		failingStep("reserve_inventory", errors.New("out of stock"), rec),
		okStep("charge_payment", rec),
	}, nil, StrategySequential)

	require.Error(t, err)
	require.Empty(t, result.Compensations)
	require.Equal(t, []string{"action:reserve_inventory"}, rec.calls)
}

func TestCompensationFailureDoesNotStopRollback(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 0)
	compCause := errors.New("refund rejected")

	broken := okStep("charge_payment", rec)
	broken.Compensation = func(ctx context.Context, data map[string]any) (any, error) {
		rec.add("compensate:charge_payment")
		return nil, compCause
	}

	result, err := h.Execute(context.Background(), []Step{
		okStep("reserve_inventory", rec),
		broken,
		failingStep("create_shipment", errors.New("down"), rec),
	}, nil, StrategySequential)

	// The original action error propagates; the failed compensation is
	// recorded, and the earlier step was still compensated.
	require.Error(t, err)
	var stepErr *domain.StepFailedError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "create_shipment", stepErr.Step)

	require.Len(t, result.Compensations, 2)
	require.Equal(t, "charge_payment", result.Compensations[0].Step)
	require.False(t, result.Compensations[0].OK())
	var compErr *domain.CompensationError
	require.ErrorAs(t, result.Compensations[0].Err, &compErr)
	require.ErrorIs(t, compErr, compCause)

	require.Equal(t, "reserve_inventory", result.Compensations[1].Step)
	require.True(t, result.Compensations[1].OK())
	require.Contains(t, rec.calls, "compensate:reserve_inventory")
}

func TestStepWithoutCompensationIsSkipped(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 0)

	noComp := Step{
		Name: "audit_log",
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			rec.add("action:audit_log")
			return nil, nil
		},
	}

	result, err := h.Execute(context.Background(), []Step{
		okStep("reserve_inventory", rec),
		noComp,
		failingStep("create_shipment", errors.New("down"), rec),
	}, nil, StrategySequential)

	require.Error(t, err)
	require.Len(t, result.Compensations, 1)
	require.Equal(t, "reserve_inventory", result.Compensations[0].Step)
}

func TestParallelSuccess(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 2)

	steps := make([]Step, 0, 5)
	for i := 0; i < 5; i++ {
		steps = append(steps, okStep(fmt.Sprintf("step-%d", i), rec))
	}

	result, err := h.Execute(context.Background(), steps, nil, StrategyParallel)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Results, 5)
	require.Empty(t, result.Compensations)
}

func TestParallelFailureCompensatesCompletedSteps(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(nil, 1) // serialize so completion order is deterministic
	cause := errors.New("vendor offline")

	result, err := h.Execute(context.Background(), []Step{
		okStep("reserve_inventory", rec),
		okStep("charge_payment", rec),
		failingStep("assign_vendor", cause, rec),
		okStep("create_shipment", rec),
	}, nil, StrategyParallel)

	require.Error(t, err)
	require.ErrorIs(t, err, cause)

	var stepErr *domain.StepFailedError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "assign_vendor", stepErr.Step)

	// create_shipment never started; the two completed steps were undone in
	// reverse completion order.
	require.NotContains(t, rec.calls, "action:create_shipment")
	require.Len(t, result.Compensations, 2)
	require.Equal(t, "charge_payment", result.Compensations[0].Step)
	require.Equal(t, "reserve_inventory", result.Compensations[1].Step)
}

func TestUnknownStrategy(t *testing.T) {
	h := NewHandler(nil, 0)
	_, err := h.Execute(context.Background(), nil, nil, Strategy("ROUND_ROBIN"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ROUND_ROBIN")
}

func TestStepNames(t *testing.T) {
	rec := &recorder{}
	steps := []Step{okStep("a", rec), okStep("b", rec)}
	require.Equal(t, []string{"a", "b"}, StepNames(steps))
}
