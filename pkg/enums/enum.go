// Package enums holds the string-backed value types stored in ledger rows
// and carried on events.
package enums

import "fmt"

// set lists the accepted values of one enum type in declaration order.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	for _, candidate := range s {
		if candidate == v {
			return true
		}
	}
	return false
}

// parse matches raw exactly; label names the type in the error.
func (s set[T]) parse(label, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, raw)
}
