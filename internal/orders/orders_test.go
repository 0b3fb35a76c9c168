package orders

import (
	"context"
	"testing"

	"cartflow/internal/core/memory"

	"github.com/stretchr/testify/require"
)

func TestFulfillmentDefinitionIsValid(t *testing.T) {
	require.NoError(t, FulfillmentDefinition().Validate())
	require.NoError(t, FulfillmentTemplate().Definition.Validate())
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, Seed(ctx, repo))

	def, err := repo.GetDefinition(ctx, FulfillmentDefinitionID)
	require.NoError(t, err)
	require.Equal(t, "PENDING", def.InitialState)

	tpl, err := repo.GetTemplate(ctx, FulfillmentTemplateID)
	require.NoError(t, err)
	require.Equal(t, []string{"orderId", "customerId"}, tpl.Parameters)
}

func TestResolve(t *testing.T) {
	registry := NewStepRegistry()

	steps, err := registry.Resolve([]string{"reserve_inventory", "charge_payment"})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "reserve_inventory", steps[0].Name)
	require.Equal(t, "charge_payment", steps[1].Name)

	_, err = registry.Resolve([]string{"reserve_inventory", "teleport_order"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "teleport_order")
}

func TestChargePaymentValidatesAmount(t *testing.T) {
	ctx := context.Background()
	step := NewStepRegistry()["charge_payment"]

	_, err := step.Action(ctx, map[string]any{"orderId": "o-1"})
	require.Error(t, err)

	out, err := step.Action(ctx, map[string]any{"orderId": "o-1", "amount": 42.5})
	require.NoError(t, err)
	require.Equal(t, 42.5, out.(map[string]any)["amount"])
}
