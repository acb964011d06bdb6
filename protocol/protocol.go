// Package protocol decodes the in-band control directives hook scripts return.
//
// A script signals a directive by returning an object carrying the marker key:
//
//	{"_agentpack_": {"kind": "Skip", "data": {"reason": "..."}}}
//	{"_agentpack_": {"kind": "BeforeAllResponse", "data": {"inputs": [...], "shared": ..., "options": {...}}}}
//
// Any other value passes through as Data. Decoding happens once at the script
// boundary; downstream code switches on the closed ScriptValue variant.
package protocol

import (
	"github.com/hupe1980/agentpack/core"
)

// MarkerKey is the reserved object key identifying a directive.
const MarkerKey = "_agentpack_"

const (
	KindSkip              = "Skip"
	KindBeforeAllResponse = "BeforeAllResponse"
)

// ScriptValue is the decoded result of a script evaluation. The concrete types
// are Skip, BeforeAllResponse and Data.
type ScriptValue interface{ isScriptValue() }

// Skip ends processing of the current input (or the whole run when returned
// from before_all). It is a successful outcome.
type Skip struct {
	Reason *string
}

func (Skip) isScriptValue() {}

// ReasonOr returns the skip reason or def when none was given.
func (s Skip) ReasonOr(def string) string {
	if s.Reason == nil {
		return def
	}
	return *s.Reason
}

// BeforeAllResponse overrides the run plan. Inputs is nil when the script did
// not supply inputs (or supplied null); a non-nil empty slice replaces the
// inputs with an empty list.
type BeforeAllResponse struct {
	Inputs  []any
	Shared  any
	Options map[string]any
}

func (BeforeAllResponse) isScriptValue() {}

// Data is an ordinary script result.
type Data struct {
	Value any
}

func (Data) isScriptValue() {}

var beforeAllFields = map[string]struct{}{
	"inputs":  {},
	"shared":  {},
	"options": {},
}

// Parse decodes v with the full directive set, as legal at the before_all boundary.
func Parse(v any) (ScriptValue, error) {
	return parse(core.StageBeforeAll, v)
}

// ParseStage decodes v at a per-input boundary where only Skip is legal.
func ParseStage(stage core.Stage, v any) (ScriptValue, error) {
	sv, err := parse(stage, v)
	if err != nil {
		return nil, err
	}
	if _, ok := sv.(BeforeAllResponse); ok {
		return nil, core.NewProtocolError(stage, "%s directive is only allowed in before_all", KindBeforeAllResponse)
	}
	return sv, nil
}

func parse(stage core.Stage, v any) (ScriptValue, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Data{Value: v}, nil
	}
	marker, ok := obj[MarkerKey]
	if !ok {
		return Data{Value: v}, nil
	}

	directive, ok := marker.(map[string]any)
	if !ok {
		return nil, core.NewProtocolError(stage, "%s must be an object, got %T", MarkerKey, marker)
	}
	kind, _ := directive["kind"].(string)
	data := directive["data"]

	switch kind {
	case KindSkip:
		return parseSkip(stage, data)
	case KindBeforeAllResponse:
		return parseBeforeAllResponse(stage, data)
	case "":
		return nil, core.NewProtocolError(stage, "directive without kind")
	default:
		return nil, core.NewProtocolError(stage, "unknown directive kind %q", kind)
	}
}

func parseSkip(stage core.Stage, data any) (ScriptValue, error) {
	if data == nil {
		return Skip{}, nil
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, core.NewProtocolError(stage, "skip data must be an object, got %T", data)
	}
	switch reason := obj["reason"].(type) {
	case nil:
		return Skip{}, nil
	case string:
		return Skip{Reason: &reason}, nil
	default:
		return nil, core.NewProtocolError(stage, "skip reason must be a string, got %T", reason)
	}
}

func parseBeforeAllResponse(stage core.Stage, data any) (ScriptValue, error) {
	if data == nil {
		return BeforeAllResponse{}, nil
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, core.NewProtocolError(stage, "%s data must be an object, got %T", KindBeforeAllResponse, data)
	}
	for key := range obj {
		if _, ok := beforeAllFields[key]; !ok {
			return nil, core.NewProtocolError(stage, "%s has unexpected field %q (allowed: inputs, shared, options)", KindBeforeAllResponse, key)
		}
	}

	var resp BeforeAllResponse
	switch inputs := obj["inputs"].(type) {
	case nil:
	case []any:
		resp.Inputs = inputs
		if resp.Inputs == nil {
			resp.Inputs = []any{}
		}
	default:
		return nil, core.NewProtocolError(stage, "inputs must be a list or null, got %T", inputs)
	}

	switch options := obj["options"].(type) {
	case nil:
	case map[string]any:
		resp.Options = options
	default:
		return nil, core.NewProtocolError(stage, "options must be an object or null, got %T", options)
	}

	resp.Shared = obj["shared"]
	return resp, nil
}

// SkipValue builds the marker object for a Skip directive.
func SkipValue(reason *string) map[string]any {
	data := map[string]any{}
	if reason != nil {
		data["reason"] = *reason
	}
	return map[string]any{MarkerKey: map[string]any{"kind": KindSkip, "data": data}}
}

// BeforeAllResponseValue builds the marker object for a BeforeAllResponse directive.
func BeforeAllResponseValue(data map[string]any) map[string]any {
	return map[string]any{MarkerKey: map[string]any{"kind": KindBeforeAllResponse, "data": data}}
}
