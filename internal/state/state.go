// state implements the flat key/value bag the host framework hands to a
// driver on every lifecycle call. The host owns the bag and persists it
// between calls; drivers read their configuration-adjacent values out of it
// and record the identifiers of anything they create so a later Destroy can
// find them again.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Well-known keys a driver records during Create and clears during Destroy.
const (
	KeyServerID = "server_id"
	KeyHostname = "hostname"
)

// Bag is a flat string-keyed collection of loosely typed values.
//
// Values round-trip through JSON, so numeric values read back as float64 and
// the typed accessors below normalize accordingly.
type Bag map[string]any

func New() Bag {
	return make(Bag)
}

// Has reports whether 'key' is present, regardless of its value.
func (b Bag) Has(key string) bool {
	_, ok := b[key]
	return ok
}

func (b Bag) Set(key string, value any) {
	b[key] = value
}

func (b Bag) Delete(key string) {
	delete(b, key)
}

// String returns the value at 'key' as a string, or "" when absent or not a
// string.
func (b Bag) String(key string) string {
	s, _ := b[key].(string)
	return s
}

// Bool returns the value at 'key' as a bool, or false when absent or not a
// bool.
func (b Bag) Bool(key string) bool {
	v, _ := b[key].(bool)
	return v
}

// Int returns the value at 'key' as an int. JSON decodes numbers to float64,
// so both int and float64 values are accepted.
func (b Bag) Int(key string) int {
	switch v := b[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Duration returns the value at 'key' as a 'time.Duration'. String values are
// parsed with 'time.ParseDuration'; numeric values are nanoseconds, matching
// how 'time.Duration' itself encodes to JSON (and how the driver Config's
// wait fields read back in).
func (b Bag) Duration(key string) time.Duration {
	switch v := b[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case time.Duration:
		return v
	case int:
		return time.Duration(v)
	case int64:
		return time.Duration(v)
	case float64:
		return time.Duration(v)
	default:
		return 0
	}
}

// Strings returns the value at 'key' as a string slice. A bare string value
// is returned as a single-element slice.
func (b Bag) Strings(key string) []string {
	switch v := b[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// StringMap returns the value at 'key' as a map of strings.
func (b Bag) StringMap(key string) map[string]string {
	switch v := b[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// Load reads a JSON-encoded bag from 'path'. A missing file yields an empty
// bag, matching a host that has not persisted any state yet.
func Load(path string) (Bag, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	b := New()
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	return b, nil
}

// Save writes the bag to 'path' as JSON. The file is written with 0600 since
// bags commonly carry key paths and hostnames.
func (b Bag) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return nil
}
