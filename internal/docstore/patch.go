package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// ArrayUnion appends each value not already present in the array field.
// When StampKey is set, each appended object gets StampKey set to the
// resolved ServerTimestamp of the patch field named by StampFrom.
type ArrayUnion struct {
	Values    []any
	StampKey  string
	StampFrom string
}

// ArrayRemove removes every element equal to one of the values.
type ArrayRemove struct{ Values []any }

// DeleteField removes the field from the document.
type DeleteField struct{}

// ServerTimestamp is resolved while the backend holds the document: the
// field is set to the later of At and the current value of NotBefore.
// Writers racing on one document therefore never move it backwards.
type ServerTimestamp struct {
	At        time.Time
	NotBefore string
}

// Union builds an ArrayUnion transform.
func Union(values ...any) ArrayUnion { return ArrayUnion{Values: values} }

// Remove builds an ArrayRemove transform.
func Remove(values ...any) ArrayRemove { return ArrayRemove{Values: values} }

// Stamped returns u with each appended object's key set to the resolved
// timestamp of the patch field from.
func (u ArrayUnion) Stamped(key, from string) ArrayUnion {
	u.StampKey = key
	u.StampFrom = from

	return u
}

// Normalize converts v to its JSON-compatible form by round-tripping it
// through encoding/json. Structs become maps and times become strings.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}

	return out, nil
}

// ApplyPatch returns a copy of doc with patch applied. Plain values replace
// the field; ArrayUnion, ArrayRemove, DeleteField and ServerTimestamp
// transform it. Callers must hold the document exclusively. doc is left
// untouched when an error is returned.
func ApplyPatch(doc, patch map[string]any) (map[string]any, error) {
	out := maps.Clone(doc)
	if out == nil {
		out = map[string]any{}
	}

	stamps := map[string]string{}
	for field, v := range patch {
		if ts, ok := v.(ServerTimestamp); ok {
			stamps[field] = resolveTimestamp(doc, ts)
		}
	}

	for field, v := range patch {
		switch op := v.(type) {
		case DeleteField:
			delete(out, field)
		case ServerTimestamp:
			out[field] = stamps[field]
		case ArrayUnion:
			arr, err := arrayField(out, field)
			if err != nil {
				return nil, err
			}

			stamp, stamped := stamps[op.StampFrom]
			if op.StampKey != "" && !stamped {
				return nil, fmt.Errorf("field %s: stamp source %q is not a server timestamp", field, op.StampFrom)
			}

			for _, raw := range op.Values {
				nv, err := Normalize(raw)
				if err != nil {
					return nil, err
				}

				if obj, ok := nv.(map[string]any); ok && op.StampKey != "" {
					obj[op.StampKey] = stamp
				}

				if indexOf(arr, nv) < 0 {
					arr = append(arr, nv)
				}
			}

			out[field] = arr
		case ArrayRemove:
			arr, err := arrayField(out, field)
			if err != nil {
				return nil, err
			}

			for _, raw := range op.Values {
				nv, err := Normalize(raw)
				if err != nil {
					return nil, err
				}

				kept := arr[:0:0]
				for _, el := range arr {
					if !jsonEqual(el, nv) {
						kept = append(kept, el)
					}
				}

				arr = kept
			}

			out[field] = arr
		default:
			nv, err := Normalize(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}

			out[field] = nv
		}
	}

	return out, nil
}

// resolveTimestamp formats the later of ts.At and the time stored in
// ts.NotBefore. Stored times are RFC 3339 strings or epoch milliseconds;
// anything else is ignored.
func resolveTimestamp(doc map[string]any, ts ServerTimestamp) string {
	at := ts.At.UTC()

	var prev time.Time
	switch v := doc[ts.NotBefore].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			prev = t.UTC()
		}
	case float64:
		prev = time.UnixMilli(int64(v)).UTC()
	}

	if prev.After(at) {
		at = prev
	}

	return at.Format(time.RFC3339Nano)
}

func arrayField(doc map[string]any, field string) ([]any, error) {
	cur, ok := doc[field]
	if !ok || cur == nil {
		return []any{}, nil
	}

	arr, ok := cur.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s is not an array", field)
	}

	return append([]any(nil), arr...), nil
}

func indexOf(arr []any, v any) int {
	for i, el := range arr {
		if jsonEqual(el, v) {
			return i
		}
	}

	return -1
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}

	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return bytes.Equal(ab, bb)
}
