package graph

// Record is one result row keyed by the RETURN aliases.
type Record map[string]any

// String returns the value at key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int accepts the integer and float types Bolt and tests produce.
func (r Record) Int(key string) int {
	switch n := r[key].(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// Float returns numeric values widened to float64.
func (r Record) Float(key string) float64 {
	switch n := r[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// Bool returns false unless the value is a true bool.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}
