package alias

// Small accessor helpers over the map[string]any a TOML/YAML alias table
// decodes to — mirroring the original's gets/geti_or/toml_strings
// tolerant lookups rather than failing on an absent optional key.

func tableString(t map[string]any, key string) (string, bool) {
	v, ok := t[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func tableStringOr(t map[string]any, key, def string) string {
	if s, ok := tableString(t, key); ok {
		return s
	}
	return def
}

func tableBool(t map[string]any, key string) bool {
	b, _ := t[key].(bool)
	return b
}

func tableInt(t map[string]any, key string, def int) int {
	switch n := t[key].(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}

func tableStringSlice(t map[string]any, key string) ([]string, bool) {
	arr, ok := t[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func tableSubTable(t map[string]any, key string) (map[string]any, bool) {
	sub, ok := t[key].(map[string]any)
	return sub, ok
}
