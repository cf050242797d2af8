package rule

import "strconv"

// getNested walks a dot path through nested map[string]any config objects,
// mirroring rule_defs/universal.py's _get_nested: model/global-model config
// columns are free-form JSON, so config.billing.video.price_per_second is
// read the same way the Python original reads it, rather than through a
// rigid struct.
func getNested(obj map[string]any, path string) any {
	if obj == nil || path == "" {
		return nil
	}
	var cur any = obj
	for _, part := range splitDot(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func splitDot(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

// asFloatString coerces a config value into a decimal literal string, or
// "" if it can't be interpreted as a number, mirroring _as_float's
// bool-excluding numeric coercion.
func asFloatString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		return "", false
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case string:
		if t == "" {
			return "", false
		}
		if _, err := strconv.ParseFloat(t, 64); err != nil {
			return "", false
		}
		return t, true
	default:
		return "", false
	}
}

// configOf returns a GlobalModel/Model's Config as a plain map, treating a
// nil model/config as empty.
func configOf(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return cfg
}
