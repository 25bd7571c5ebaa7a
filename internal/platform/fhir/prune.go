package fhir

// Prune removes null-valued keys at every depth of the document, and drops
// the top-level keys named in dropEmpty when their value is an empty list.
// Empty lists anywhere else are kept.
func Prune(o Object, dropEmpty ...string) Object {
	drop := make(map[string]bool, len(dropEmpty))
	for _, k := range dropEmpty {
		drop[k] = true
	}

	out := make(Object, 0, len(o))
	for _, f := range o {
		v, keep := pruneValue(f.Value)
		if !keep {
			continue
		}
		if drop[f.Key] && isEmptyList(v) {
			continue
		}
		out = append(out, Field{Key: f.Key, Value: v})
	}
	return out
}

// pruneValue returns the pruned value and whether it should be kept.
func pruneValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case Object:
		return Prune(t), true
	case []Object:
		out := make([]Object, 0, len(t))
		for _, o := range t {
			if o == nil {
				continue
			}
			out = append(out, Prune(o))
		}
		return out, true
	case []any:
		out := make([]any, 0, len(t))
		for _, e := range t {
			if pv, ok := pruneValue(e); ok {
				out = append(out, pv)
			}
		}
		return out, true
	default:
		return v, true
	}
}

func isEmptyList(v any) bool {
	switch t := v.(type) {
	case []Object:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
