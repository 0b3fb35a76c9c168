package orders

import (
	"context"

	"cartflow/internal/core/ports"
	"cartflow/internal/domain"
)

// FulfillmentDefinitionID is the built-in order lifecycle definition.
const (
	FulfillmentDefinitionID = "order-fulfillment"
	FulfillmentTemplateID   = "order-fulfillment-template"
)

// FulfillmentDefinition models the order lifecycle the order service drives
// through the engine.
func FulfillmentDefinition() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:           FulfillmentDefinitionID,
		Name:         "Order Fulfillment",
		Version:      1,
		InitialState: "PENDING",
		States: map[string]domain.StateConfig{
			"PENDING": {
				On: map[string]domain.Transition{
					"CONFIRM": {Target: "PROCESSING", Actions: []string{"reserve_inventory", "charge_payment"}},
					"REJECT":  {Target: "REJECTED"},
				},
			},
			"PROCESSING": {
				On: map[string]domain.Transition{
					"SHIP": {Target: "SHIPPED", Actions: []string{"create_shipment"}},
				},
			},
			"SHIPPED": {
				On: map[string]domain.Transition{
					"DELIVER": {Target: "DELIVERED"},
				},
			},
			"DELIVERED": {IsFinal: true},
			"REJECTED":  {IsFinal: true},
		},
		Context: map[string]any{
			"channel": "web",
		},
		RecoveryState: "PENDING",
	}
}

// FulfillmentTemplate requires the keys every order instance must carry.
func FulfillmentTemplate() *domain.WorkflowTemplate {
	return &domain.WorkflowTemplate{
		ID:         FulfillmentTemplateID,
		Name:       "Order Fulfillment",
		Definition: *FulfillmentDefinition(),
		Parameters: []string{"orderId", "customerId"},
	}
}

// Seed registers the built-in definition and template in the catalog.
func Seed(ctx context.Context, repo ports.WorkflowRepository) error {
	if err := repo.SaveDefinition(ctx, FulfillmentDefinition()); err != nil {
		return err
	}
	return repo.SaveTemplate(ctx, FulfillmentTemplate())
}
