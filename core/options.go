package core

import (
	"bytes"
	"encoding/json"
	"maps"
)

// DefaultInputConcurrency is used when no layer sets input_concurrency.
const DefaultInputConcurrency = 1

// AgentOptions holds the settings that drive the AI call and the task pool.
//
// All scalar fields are pointers so that an absent value never overrides a
// present one during layered merges.
type AgentOptions struct {
	Model            *string           `toml:"model" json:"model,omitempty"`
	ModelAliases     map[string]string `toml:"model_aliases" json:"model_aliases,omitempty"`
	Temperature      *float64          `toml:"temperature" json:"temperature,omitempty"`
	InputConcurrency *int              `toml:"input_concurrency" json:"input_concurrency,omitempty"`
}

// DefaultOptions returns the lowest options layer. It sets nothing, so it is
// the identity of Merge on both sides; unset concurrency falls back to
// DefaultInputConcurrency in Concurrency.
func DefaultOptions() AgentOptions {
	return AgentOptions{}
}

// Merge layers override on top of base. Every field present in override wins;
// alias tables are merged key by key with override winning on collisions.
func Merge(base, override AgentOptions) AgentOptions {
	return AgentOptions{
		Model:            or(override.Model, base.Model),
		ModelAliases:     mergeAliases(base.ModelAliases, override.ModelAliases),
		Temperature:      or(override.Temperature, base.Temperature),
		InputConcurrency: or(override.InputConcurrency, base.InputConcurrency),
	}
}

// MergeAll folds layers left to right, so later layers take precedence.
func MergeAll(layers ...AgentOptions) AgentOptions {
	var out AgentOptions
	for _, l := range layers {
		out = Merge(out, l)
	}
	return out
}

// ResolveModel maps the raw model name through the alias table. The raw name is
// returned when it is not an alias; an empty string means no model is configured.
func (o AgentOptions) ResolveModel() string {
	if o.Model == nil {
		return ""
	}
	if resolved, ok := o.ModelAliases[*o.Model]; ok {
		return resolved
	}
	return *o.Model
}

// Concurrency returns the effective input concurrency, never less than 1.
func (o AgentOptions) Concurrency() int {
	if o.InputConcurrency == nil || *o.InputConcurrency < 1 {
		return DefaultInputConcurrency
	}
	return *o.InputConcurrency
}

// Clone returns a deep copy so the result can be shared without aliasing.
func (o AgentOptions) Clone() AgentOptions {
	return AgentOptions{
		Model:            clonePtr(o.Model),
		ModelAliases:     maps.Clone(o.ModelAliases),
		Temperature:      clonePtr(o.Temperature),
		InputConcurrency: clonePtr(o.InputConcurrency),
	}
}

// OptionsFromValue decodes an options payload returned by a before_all script.
// Unknown keys and mistyped values are rejected with a ProtocolError.
func OptionsFromValue(v any) (AgentOptions, error) {
	var opts AgentOptions
	if v == nil {
		return opts, nil
	}
	if _, ok := v.(map[string]any); !ok {
		return opts, NewProtocolError(StageBeforeAll, "options must be an object, got %T", v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return opts, NewProtocolError(StageBeforeAll, "options not serializable: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return opts, NewProtocolError(StageBeforeAll, "invalid options: %v", err)
	}
	return opts, nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func or[T any](override, base *T) *T {
	if override != nil {
		return clonePtr(override)
	}
	return clonePtr(base)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func mergeAliases(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}
