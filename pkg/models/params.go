package models

// ParameterBag holds the opaque invocation parameters for a downstream
// generation model. The engine never interprets its contents.
type ParameterBag map[string]any

// Clone returns a shallow copy so cached bags are never mutated by callers.
func (p ParameterBag) Clone() ParameterBag {
	if p == nil {
		return nil
	}
	out := make(ParameterBag, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
