package scripting

import (
	"encoding/json"
	"fmt"

	"go.starlark.net/starlark"
)

// Persist serializes the environment's mem table to an opaque blob. The blob
// only contains data types that survive a round trip (none, bool, int, float,
// string, list, dict).
func (e *Env) Persist() ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	plain, err := FromStarlark(e.mem)
	if err != nil {
		return nil, fmt.Errorf("persist mem: %w", err)
	}
	blob, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("persist mem: %w", err)
	}
	return blob, nil
}

// Unpersist restores the mem table from a blob produced by Persist. Existing
// mem contents are replaced. A failure leaves mem cleared, never
// half-restored.
func (e *Env) Unpersist(blob []byte) error {
	if e.closed {
		return ErrClosed
	}

	var plain map[string]interface{}
	if err := json.Unmarshal(blob, &plain); err != nil {
		return fmt.Errorf("unpersist mem: %w", err)
	}

	e.mem.Clear()
	for k, v := range plain {
		sv, err := ToStarlark(normalizeJSON(v))
		if err != nil {
			e.mem.Clear()
			return fmt.Errorf("unpersist mem key %q: %w", k, err)
		}
		if err := e.mem.SetKey(starlark.String(k), sv); err != nil {
			e.mem.Clear()
			return fmt.Errorf("unpersist mem key %q: %w", k, err)
		}
	}
	return nil
}

// normalizeJSON converts json.Unmarshal's float64 numbers back to int64 where
// the value is integral, so scripts see the same type they stored.
func normalizeJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case []interface{}:
		for i := range val {
			val[i] = normalizeJSON(val[i])
		}
		return val
	case map[string]interface{}:
		for k := range val {
			val[k] = normalizeJSON(val[k])
		}
		return val
	default:
		return v
	}
}
