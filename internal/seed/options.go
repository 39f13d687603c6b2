package seed

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Options holds policy-specific configuration as decoded from YAML.
type Options map[string]any

// Int64 returns the integer option key. Whole floats and numeric strings are
// accepted because YAML and CUE decoders disagree on number types.
func (o Options) Int64(key string) (int64, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	v, err := toInt64(raw)
	if err != nil {
		return 0, true, fmt.Errorf("option %s: %w", key, err)
	}
	return v, true, nil
}

// Bool returns the boolean option key.
func (o Options) Bool(key string) (bool, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, true, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, true, fmt.Errorf("option %s: %w", key, err)
		}
		return b, true, nil
	default:
		return false, true, fmt.Errorf("option %s: expected bool, got %T", key, raw)
	}
}

// String returns the string option key.
func (o Options) String(key string) (string, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, fmt.Errorf("option %s: expected string, got %T", key, raw)
	}
	return s, true, nil
}

// EngineTable reads a per-engine integer table. Two layouts are accepted:
//
//	offsets: {"modA:": 0, "modA:alt": 1, ":svcG": 2}
//	offsets: {modA: {"": 0, alt: 1}, "": {svcG: 2}}
//
// In the nested layout an empty module key holds the global engines.
func (o Options) EngineTable(key string) (map[EngineID]int64, bool, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	outer, err := toStringMap(raw)
	if err != nil {
		return nil, true, fmt.Errorf("option %s: %w", key, err)
	}

	table := make(map[EngineID]int64)
	for _, k := range sortedKeys(outer) {
		v := outer[k]
		if inner, innerErr := toStringMap(v); innerErr == nil {
			for _, instance := range sortedKeys(inner) {
				n, err := toInt64(inner[instance])
				if err != nil {
					return nil, true, fmt.Errorf("option %s.%s.%s: %w", key, k, instance, err)
				}
				id := ModuleEngine(k, instance)
				if k == "" {
					id = GlobalEngine(instance)
				}
				table[id] = n
			}
			continue
		}
		id, err := ParseEngineID(k)
		if err != nil {
			return nil, true, fmt.Errorf("option %s: %w", key, err)
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, true, fmt.Errorf("option %s.%s: %w", key, k, err)
		}
		table[id] = n
	}
	return table, true, nil
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 0, 64)
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func toStringMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case Options:
		return v, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected mapping, got %T", raw)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
