package dispatcher

import "sort"

// Registry is the static table of registered tools described in §4.9's
// "registered tool families," built the way the REDESIGN FLAGS (§9)
// direct: "a static registry populated at startup... injected into the
// dispatcher," not runtime plugin discovery.
type Registry struct {
	tools map[string]ToolSpec
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]ToolSpec{}}
}

// Register adds spec to the registry. Registering the same ToolID twice
// overwrites the previous entry — callers are expected to register once
// at startup, composing a fixed table, not to mutate the registry under
// concurrent dispatch.
func (r *Registry) Register(spec ToolSpec) {
	r.tools[spec.ToolID] = spec
}

// Lookup resolves a tool_id to its ToolSpec.
func (r *Registry) Lookup(toolID string) (ToolSpec, bool) {
	spec, ok := r.tools[toolID]
	return spec, ok
}

// ToolIDs lists every registered tool, sorted for deterministic listing
// (e.g. a `list_tools` navigation response).
func (r *Registry) ToolIDs() []string {
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
