package kvstore

import (
	"bytes"
	"encoding/json"
	"maps"
)

// Patch is an in-place update of a JSON object stored at a key. A Store reads,
// checks and rewrites the document in one atomic step, so concurrent patches
// to the same key never overwrite each other's changes.
//
// The steps run in field order: Expect, Unset, Set, Merge, Append.
type Patch struct {
	// Expect maps top-level fields to the string they must currently hold.
	// A missing or different field fails the patch with ErrConflict.
	Expect map[string]string `json:"expect,omitempty"`
	// Unset removes top-level fields.
	Unset []string `json:"unset,omitempty"`
	// Set replaces top-level fields with the given JSON values.
	Set map[string]json.RawMessage `json:"set,omitempty"`
	// Merge writes keys into top-level object fields, creating them as needed.
	Merge  map[string]map[string]json.RawMessage `json:"merge,omitempty"`
	Append *Append                               `json:"append,omitempty"`
}

// Append pushes Value onto the array Field and keeps the last Limit
// elements. A Limit <= 0 keeps everything.
type Append struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
	Limit int             `json:"limit,omitempty"`
}

// Apply runs the patch against doc and returns the new document.
// It fails with ErrMalformed when doc is not a JSON object.
func (p Patch) Apply(doc []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		return nil, ErrMalformed
	}

	for field, want := range p.Expect {
		raw, ok := fields[field]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return nil, ErrConflict
		}
		var got string
		if err := json.Unmarshal(raw, &got); err != nil || got != want {
			return nil, ErrConflict
		}
	}

	for _, field := range p.Unset {
		delete(fields, field)
	}
	maps.Copy(fields, p.Set)

	for field, values := range p.Merge {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(fields[field], &obj); err != nil || obj == nil {
			obj = make(map[string]json.RawMessage, len(values))
		}
		maps.Copy(obj, values)
		encoded, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		fields[field] = encoded
	}

	if a := p.Append; a != nil {
		var list []json.RawMessage
		if err := json.Unmarshal(fields[a.Field], &list); err != nil {
			list = nil
		}
		list = append(list, a.Value)
		if a.Limit > 0 && len(list) > a.Limit {
			list = list[len(list)-a.Limit:]
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		fields[a.Field] = encoded
	}

	return json.Marshal(fields)
}
