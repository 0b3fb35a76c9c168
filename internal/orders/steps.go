// Package orders is the order-service side of the engine boundary: it
// supplies the saga steps and their compensations for order fulfillment and
// registers the built-in definition and template. The engine treats all of
// this as opaque caller input.
package orders

import (
	"context"
	"fmt"

	"cartflow/internal/saga"
)

// StepRegistry maps step names to the saga steps the order service exposes
// over the API.
type StepRegistry map[string]saga.Step

// NewStepRegistry wires up the order-fulfillment steps. The bodies here
// stand in for calls to the inventory, payment, and vendor services.
func NewStepRegistry() StepRegistry {
	registry := make(StepRegistry)

	registry["reserve_inventory"] = saga.Step{
		Name: "reserve_inventory",
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			return map[string]any{"reservationId": fmt.Sprintf("rsv-%v", data["orderId"])}, nil
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			// Release the reservation so the stock is sellable again.
			return map[string]any{"released": true}, nil
		},
	}

	registry["charge_payment"] = saga.Step{
		Name: "charge_payment",
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			amount, ok := data["amount"].(float64)
			if !ok || amount <= 0 {
				return nil, fmt.Errorf("invalid payment amount %v", data["amount"])
			}
			return map[string]any{"transactionId": fmt.Sprintf("txn-%v", data["orderId"]), "amount": amount}, nil
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			return map[string]any{"refunded": true}, nil
		},
	}

	registry["assign_vendor"] = saga.Step{
		Name: "assign_vendor",
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			vendorID, ok := data["vendorId"].(string)
			if !ok || vendorID == "" {
				return nil, fmt.Errorf("no vendor specified for order %v", data["orderId"])
			}
			return map[string]any{"vendorId": vendorID}, nil
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			return map[string]any{"unassigned": true}, nil
		},
	}

	registry["create_shipment"] = saga.Step{
		Name: "create_shipment",
		Action: func(ctx context.Context, data map[string]any) (any, error) {
			return map[string]any{"shipmentId": fmt.Sprintf("shp-%v", data["orderId"])}, nil
		},
		Compensation: func(ctx context.Context, data map[string]any) (any, error) {
			return map[string]any{"cancelled": true}, nil
		},
	}

	return registry
}

// Resolve turns the step names from an API request into executable steps,
// preserving order.
func (r StepRegistry) Resolve(names []string) ([]saga.Step, error) {
	steps := make([]saga.Step, 0, len(names))
	for _, name := range names {
		step, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("unknown saga step %q", name)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
