package domain

import (
	"encoding/json"
	"fmt"
)

// Encoded is the wire form of an entity: its kind and its JSON fields.
type Encoded struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode converts entities to their wire form.
func Encode(entities []Entity) ([]Encoded, error) {
	out := make([]Encoded, 0, len(entities))
	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
		}
		out = append(out, Encoded{Kind: e.Kind(), Data: data})
	}
	return out, nil
}

// Decode converts wire entities back to typed entities.
func Decode(encoded []Encoded) ([]Entity, error) {
	out := make([]Entity, 0, len(encoded))
	for i, enc := range encoded {
		var e Entity
		if enc.Kind == "Value" {
			e = &Value{}
		} else if k, ok := kinds[enc.Kind]; ok {
			e = k.new()
		} else {
			return nil, fmt.Errorf("entity %d: unknown kind %q", i, enc.Kind)
		}
		if err := json.Unmarshal(enc.Data, e); err != nil {
			return nil, fmt.Errorf("entity %d: decode %s: %w", i, enc.Kind, err)
		}
		out = append(out, e)
	}
	return out, nil
}
