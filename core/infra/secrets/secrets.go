// Package secrets recognizes secret references stored in parameter values.
// A reference is resolved downstream; the gateway never needs the secret itself.
package secrets

import "strings"

const (
	refPrefix = "secret://"
	// Redacted replaces a secret reference in read-only views.
	Redacted = "<redacted>"
)

// IsRef reports whether value is a secret reference.
func IsRef(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), refPrefix)
}

// Redact returns Redacted for secret references and value otherwise.
func Redact(value string) (string, bool) {
	if IsRef(value) {
		return Redacted, true
	}
	return value, false
}

// RedactValues rewrites secret references in place and returns how many were replaced.
func RedactValues(values []*string) int {
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		red, changed := Redact(*v)
		if changed {
			*v = red
			n++
		}
	}
	return n
}
