package gateway

import (
	"net/http"
	"strings"
)

// resolvePrincipal picks the identity recorded as savedBy on persisted configs.
func (s *server) resolvePrincipal(r *http.Request, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if s == nil || s.auth == nil {
		if requested != "" {
			return requested, nil
		}
		return headerValue(r, "X-Principal-Id"), nil
	}
	return s.auth.ResolvePrincipal(r, requested)
}
