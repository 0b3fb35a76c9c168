package domain

// WorkflowTemplate packages a definition with the context keys a caller must
// supply when instantiating it.
type WorkflowTemplate struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Definition WorkflowDefinition `json:"definition"`
	Parameters []string           `json:"parameters,omitempty"`
}
