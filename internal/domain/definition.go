package domain

import (
	"encoding/json"
	"fmt"
)

// Transition routes an event to a target state. In catalog documents it may
// be written either as a bare target string or as an object carrying action
// names, so it unmarshals from both forms.
type Transition struct {
	Target  string   `json:"target"`
	Actions []string `json:"actions,omitempty"`
}

func (t *Transition) UnmarshalJSON(data []byte) error {
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		t.Target = target
		t.Actions = nil
		return nil
	}

	type transitionObject Transition
	var obj transitionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = Transition(obj)
	return nil
}

func (t Transition) MarshalJSON() ([]byte, error) {
	if len(t.Actions) == 0 {
		return json.Marshal(t.Target)
	}
	type transitionObject Transition
	return json.Marshal(transitionObject(t))
}

// StateConfig describes one state of a workflow definition: the events it
// handles and whether reaching it completes the instance.
type StateConfig struct {
	On      map[string]Transition `json:"on,omitempty"`
	IsFinal bool                  `json:"isFinal,omitempty"`
}

// WorkflowDefinition is the immutable, versioned template a workflow
// instance executes against.
type WorkflowDefinition struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Version      int                    `json:"version"`
	States       map[string]StateConfig `json:"states"`
	InitialState string                 `json:"initialState"`
	Context      map[string]any         `json:"context,omitempty"`

	// RecoveryState is the state a failed instance resumes into when the
	// event log yields no better answer. Empty means InitialState.
	RecoveryState string `json:"recoveryState,omitempty"`
}

// Validate checks the definition before any instance is created from it.
// Transition targets are checked here so lookups never dangle at run time.
func (d *WorkflowDefinition) Validate() error {
	if len(d.States) == 0 {
		return &InvalidDefinitionError{Reason: "No states defined"}
	}
	if _, ok := d.States[d.InitialState]; !ok {
		return &InvalidDefinitionError{Reason: fmt.Sprintf("initial state %q is not defined", d.InitialState)}
	}
	for name, state := range d.States {
		for event, tr := range state.On {
			if _, ok := d.States[tr.Target]; !ok {
				return &InvalidDefinitionError{Reason: fmt.Sprintf("state %q routes event %q to unknown state %q", name, event, tr.Target)}
			}
		}
	}
	if d.RecoveryState != "" {
		if _, ok := d.States[d.RecoveryState]; !ok {
			return &InvalidDefinitionError{Reason: fmt.Sprintf("recovery state %q is not defined", d.RecoveryState)}
		}
	}
	return nil
}

// FallbackState is where a retried instance lands when neither the event log
// nor the instance context names a last good state.
func (d *WorkflowDefinition) FallbackState() string {
	if d.RecoveryState != "" {
		return d.RecoveryState
	}
	return d.InitialState
}

// IsFinalState reports whether reaching the named state completes an instance.
func (d *WorkflowDefinition) IsFinalState(name string) bool {
	return d.States[name].IsFinal
}
