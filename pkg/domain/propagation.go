package domain

// PropagationMode selects which local-data fields of the source stage survive
// a transition into the destination stage.
type PropagationMode string

const (
	// PropagationAll copies every field of the source's local data.
	PropagationAll PropagationMode = "all"
	// PropagationNone starts the destination with empty local data.
	PropagationNone PropagationMode = "none"
	// PropagationFields copies only the named fields that are present.
	PropagationFields PropagationMode = "fields"
)

// Propagation is the per-edge rule applied when committing a transition.
// The zero value is not meaningful; use the constructors.
type Propagation struct {
	Mode   PropagationMode `json:"mode" yaml:"mode"`
	Fields []string        `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// PropagateAll copies the full source data into the destination.
func PropagateAll() Propagation {
	return Propagation{Mode: PropagationAll}
}

// PropagateNone gives the destination empty local data.
func PropagateNone() Propagation {
	return Propagation{Mode: PropagationNone}
}

// PropagateFields copies only the named fields, skipping any that are absent
// from the source data at commit time.
func PropagateFields(fields ...string) Propagation {
	return Propagation{Mode: PropagationFields, Fields: fields}
}

// Apply builds the destination's fresh local data from the source's local
// data. It always copies; the source container is left untouched.
func (p Propagation) Apply(source *State) *State {
	dest := NewState()
	if source == nil {
		return dest
	}
	switch p.Mode {
	case PropagationAll:
		for k, v := range source.data {
			dest.data[k] = v
		}
	case PropagationFields:
		for _, f := range p.Fields {
			if v, ok := source.Get(f); ok {
				dest.Set(f, v)
			}
		}
	}
	return dest
}

// Satisfies reports whether this policy would carry the given field from the
// source data, making it available to the destination's prerequisites.
func (p Propagation) Satisfies(field string, source *State) bool {
	if source == nil {
		return false
	}
	switch p.Mode {
	case PropagationAll:
		return source.Has(field)
	case PropagationFields:
		for _, f := range p.Fields {
			if f == field {
				return source.Has(field)
			}
		}
	}
	return false
}
