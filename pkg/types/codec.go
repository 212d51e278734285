package types

import (
	"encoding/json"
	"fmt"
)

// UnknownActionError is returned when a plan names an action type this
// executor does not know, or omits the type altogether.
type UnknownActionError struct {
	Type string
}

func (e *UnknownActionError) Error() string {
	if e.Type == "" {
		return "action is missing its \"type\" field"
	}
	return fmt.Sprintf("unknown action type %q", e.Type)
}

// newAction returns an empty variant for the discriminator.
func newAction(kind ActionKind) (Action, error) {
	switch kind {
	case KindPatch:
		return &PatchAction{}, nil
	case KindExec:
		return &ExecAction{}, nil
	case KindCheck:
		return &CheckAction{}, nil
	case KindEnvRequest:
		return &EnvRequestAction{}, nil
	case KindReadFile:
		return &ReadFileAction{}, nil
	case KindWriteFile:
		return &WriteFileAction{}, nil
	case KindEditFile:
		return &EditFileAction{}, nil
	case KindScanRepo:
		return &ScanRepoAction{}, nil
	default:
		return nil, &UnknownActionError{Type: string(kind)}
	}
}

// UnmarshalAction decodes one JSON action, dispatching on its "type" field.
func UnmarshalAction(data []byte) (Action, error) {
	var head struct {
		Type ActionKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}

	action, err := newAction(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("failed to decode %s action: %w", head.Type, err)
	}
	return action, nil
}

// MarshalAction encodes a with its "type" discriminator.
func MarshalAction(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(a.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}

// Actions is an ordered action list with discriminated JSON encoding.
type Actions []Action

// UnmarshalJSON decodes a JSON array of actions. Any unknown type fails the
// whole list.
func (as *Actions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("actions must be a JSON array: %w", err)
	}

	out := make(Actions, 0, len(raws))
	for i, raw := range raws {
		action, err := UnmarshalAction(raw)
		if err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
		out = append(out, action)
	}
	*as = out
	return nil
}

// MarshalJSON encodes each action with its discriminator.
func (as Actions) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(as))
	for _, a := range as {
		raw, err := MarshalAction(a)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// HasKind reports whether any action in the list is of kind k.
func (as Actions) HasKind(k ActionKind) bool {
	for _, a := range as {
		if a.Kind() == k {
			return true
		}
	}
	return false
}

// Plan is what the planner returns: an ordered action list plus notes.
type Plan struct {
	Actions Actions `json:"actions"`
	Notes   string  `json:"notes,omitempty"`
}
