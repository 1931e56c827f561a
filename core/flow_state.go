package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	FlowStatePayloadFormatJSONV1 = "flow_state_json"
	FlowStatePayloadVersionV1    = 1
)

// FlowState is a minimal, portable snapshot of an in-progress grant: enough to
// validate a later callback after a process boundary, and nothing more. Client
// credentials and endpoints are deliberately excluded and must be supplied
// again when resuming.
type FlowState struct {
	Phase        string
	PKCEVerifier string
	RedirectURI  *string
	State        *string
	Scopes       []string
}

type FlowStateCodec interface {
	Format() string
	Version() int
	Encode(state FlowState) ([]byte, error)
	Decode(payload []byte) (FlowState, error)
}

type JSONFlowStateCodec struct{}

func (JSONFlowStateCodec) Format() string {
	return FlowStatePayloadFormatJSONV1
}

func (JSONFlowStateCodec) Version() int {
	return FlowStatePayloadVersionV1
}

// jsonFlowStatePayload fixes the emitted key order. All five keys are always
// written; absent optionals serialize as null, and pkceVerifier is present even
// for flows that never used PKCE.
type jsonFlowStatePayload struct {
	Phase        string   `json:"phase"`
	PKCEVerifier string   `json:"pkceVerifier"`
	RedirectURI  *string  `json:"redirectUri"`
	State        *string  `json:"state"`
	Scopes       []string `json:"scopes"`
}

func (JSONFlowStateCodec) Encode(state FlowState) ([]byte, error) {
	payload := jsonFlowStatePayload{
		Phase:        strings.TrimSpace(state.Phase),
		PKCEVerifier: state.PKCEVerifier,
		RedirectURI:  cloneStringPointer(state.RedirectURI),
		State:        cloneStringPointer(state.State),
	}
	if state.Scopes != nil {
		payload.Scopes = append([]string(nil), state.Scopes...)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, internalError(err, "core: encode flow state")
	}
	return encoded, nil
}

// Decode performs strict structural validation: once the syntax and shape
// checks pass it cannot fail. Unknown keys are ignored.
func (JSONFlowStateCodec) Decode(payload []byte) (FlowState, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return FlowState{}, flowStateError("", payload, fmt.Sprintf("invalid json: %v", err))
	}
	object, ok := decoded.(map[string]any)
	if !ok {
		return FlowState{}, flowStateError("", payload, "top-level value is not an object")
	}

	phase, err := requireStringField(object, "phase", payload)
	if err != nil {
		return FlowState{}, err
	}
	verifier, err := requireStringField(object, "pkceVerifier", payload)
	if err != nil {
		return FlowState{}, err
	}

	state := FlowState{
		Phase:        phase,
		PKCEVerifier: verifier,
	}

	if state.RedirectURI, err = optionalStringField(object, "redirectUri", payload); err != nil {
		return FlowState{}, err
	}
	if state.State, err = optionalStringField(object, "state", payload); err != nil {
		return FlowState{}, err
	}

	if raw, present := object["scopes"]; present && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return FlowState{}, flowStateError("scopes", payload, "scopes is not a list")
		}
		scopes := make([]string, 0, len(items))
		for _, item := range items {
			value, ok := item.(string)
			if !ok {
				return FlowState{}, flowStateError("scopes", payload, "scopes contains a non-string element")
			}
			scopes = append(scopes, value)
		}
		state.Scopes = scopes
	}

	return state, nil
}

func requireStringField(object map[string]any, field string, payload []byte) (string, error) {
	raw, present := object[field]
	if !present {
		return "", flowStateError(field, payload, fmt.Sprintf("missing required field %q", field))
	}
	value, ok := raw.(string)
	if !ok {
		return "", flowStateError(field, payload, fmt.Sprintf("field %q is not a string", field))
	}
	return value, nil
}

func optionalStringField(object map[string]any, field string, payload []byte) (*string, error) {
	raw, present := object[field]
	if !present || raw == nil {
		return nil, nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil, flowStateError(field, payload, fmt.Sprintf("field %q is not a string", field))
	}
	return &value, nil
}

func cloneStringPointer(input *string) *string {
	if input == nil {
		return nil
	}
	value := *input
	return &value
}

var _ FlowStateCodec = JSONFlowStateCodec{}
