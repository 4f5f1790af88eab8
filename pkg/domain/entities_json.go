package domain

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Reserved record keys. They never collide with consumption keys because
// object type names do not start with an underscore.
const (
	KeyAuthorization = "_authorization"
	KeyRanges        = "_ranges"
	KeyUpgradeTags   = "_upgrade"
)

// IsReservedKey reports whether key names a reserved field rather than a
// consumption array.
func IsReservedKey(key string) bool {
	switch key {
	case KeyAuthorization, KeyRanges, KeyUpgradeTags:
		return true
	}
	return false
}

// MarshalJSON encodes the entity as one flat object. Consumption arrays are
// always emitted as arrays, never null.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Consumptions)+3)
	for key, ids := range e.Consumptions {
		if IsReservedKey(key) {
			return nil, fmt.Errorf("consumption key %q is reserved", key)
		}
		if ids == nil {
			ids = []int{}
		}
		out[key] = ids
	}
	if e.Authorization != nil {
		out[KeyAuthorization] = e.Authorization
	}
	if e.Ranges != nil {
		out[KeyRanges] = e.Ranges
	}
	if e.UpgradeTags != nil {
		out[KeyUpgradeTags] = e.UpgradeTags
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the flat object form written by MarshalJSON.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Entity{Consumptions: make(map[string][]int, len(raw))}
	for key, value := range raw {
		switch key {
		case KeyAuthorization:
			if isNull(value) {
				continue
			}
			var auth Authorization
			if err := json.Unmarshal(value, &auth); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			decoded.Authorization = &auth
		case KeyRanges:
			if err := json.Unmarshal(value, &decoded.Ranges); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		case KeyUpgradeTags:
			if err := json.Unmarshal(value, &decoded.UpgradeTags); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		default:
			var ids []int
			if err := json.Unmarshal(value, &ids); err != nil {
				return fmt.Errorf("decode consumption %q: %w", key, err)
			}
			if ids == nil {
				ids = []int{}
			}
			decoded.Consumptions[key] = ids
		}
	}
	*e = decoded
	return nil
}

func isNull(b []byte) bool {
	return len(b) == 4 && string(b) == "null"
}
