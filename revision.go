package params

import (
	"github.com/policysim/go-params/internal/hydrate"
)

// Revision maps parameter names to proposed changes. A value may be a period
// map (period -> scalar, positional list, or nested list), a bare value that
// replaces the parameter's whole series, or a []ValueRecord synthesized by
// FromArray. Keys ending in "-indexed" target the parameter's indexed flag
// with a period -> bool map.
type Revision map[string]any

// ReadRevision extracts the revision stored under topkey from a JSON or YAML
// document. A nil obj yields an empty revision. Anything other than nil, a
// string, or a byte slice, a document that fails to parse, a missing topkey,
// or a topkey value that is not an object is an ArgumentError.
func ReadRevision(obj any, topkey string) (Revision, error) {
	if topkey == "" {
		return nil, argumentErrorf("topkey", "must not be empty")
	}
	var raw []byte
	switch typed := obj.(type) {
	case nil:
		return Revision{}, nil
	case string:
		raw = []byte(typed)
	case []byte:
		raw = typed
	default:
		return nil, argumentErrorf("obj", "must be nil, string, or []byte, got %T", obj)
	}
	doc, err := hydrate.ParseDocument(raw)
	if err != nil {
		return nil, &ArgumentError{Arg: "obj", Err: err}
	}
	section, present := doc.Data[topkey]
	if !present {
		return nil, argumentErrorf("topkey", "key %q not found in document", topkey)
	}
	body, ok := asMap(section)
	if !ok {
		return nil, argumentErrorf("topkey", "key %q does not map to an object", topkey)
	}
	return Revision(body), nil
}

// Clone returns a copy of the revision. Period maps are copied per period;
// leaf values are shared, so treat revision payloads as immutable.
func (r Revision) Clone() Revision {
	if r == nil {
		return nil
	}
	out := make(Revision, len(r))
	for param, raw := range r {
		if entries, ok := periodEntries(raw); ok {
			copied := make(map[int]any, len(entries))
			for _, entry := range entries {
				copied[entry.period] = entry.raw
			}
			out[param] = copied
			continue
		}
		out[param] = raw
	}
	return out
}

// MergeRevisions composes revision layers left to right. When both sides of a
// collision are period maps the periods merge with later layers winning per
// period; any other collision is replaced wholesale by the later layer.
func MergeRevisions(revs ...Revision) Revision {
	out := Revision{}
	for _, rev := range revs {
		for param, raw := range rev {
			existing, collision := out[param]
			if !collision {
				out[param] = raw
				continue
			}
			if merged, ok := mergePeriodMaps(existing, raw); ok {
				out[param] = merged
				continue
			}
			out[param] = raw
		}
	}
	return out
}

func mergePeriodMaps(base, overlay any) (any, bool) {
	baseEntries, ok := periodEntries(base)
	if !ok {
		return nil, false
	}
	overlayEntries, ok := periodEntries(overlay)
	if !ok {
		return nil, false
	}
	merged := make(map[int]any, len(baseEntries)+len(overlayEntries))
	for _, entry := range baseEntries {
		merged[entry.period] = entry.raw
	}
	for _, entry := range overlayEntries {
		merged[entry.period] = entry.raw
	}
	return merged, true
}
