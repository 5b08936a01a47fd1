package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	envAPIKeys = "STAGEFLOW_API_KEYS"
	envAPIKey  = "STAGEFLOW_API_KEY"
)

type apiKeyEntry struct {
	Key       string `json:"key"`
	Principal string `json:"principal,omitempty"`
}

// BasicAuthProvider checks X-API-Key against a static key set. With no keys
// configured every request is accepted.
type BasicAuthProvider struct {
	keys                 map[string]string
	requireAPIKey        bool
	allowHeaderPrincipal bool
}

// NewBasicAuthProvider loads keys from STAGEFLOW_API_KEYS / STAGEFLOW_API_KEY
// plus any extra keys passed by the caller.
func NewBasicAuthProvider(extra ...string) (*BasicAuthProvider, error) {
	keys, requireKey, err := loadBasicAPIKeys()
	if err != nil {
		return nil, err
	}
	for _, k := range extra {
		if k = normalizeAPIKey(k); k != "" {
			keys[k] = ""
			requireKey = true
		}
	}
	return &BasicAuthProvider{
		keys:                 keys,
		requireAPIKey:        requireKey,
		allowHeaderPrincipal: true,
	}, nil
}

func (b *BasicAuthProvider) AuthenticateHTTP(r *http.Request) (*AuthContext, error) {
	if r == nil {
		return nil, errors.New("request required")
	}
	key := normalizeAPIKey(r.Header.Get("X-API-Key"))
	if key == "" && websocket.IsWebSocketUpgrade(r) {
		key = normalizeAPIKey(apiKeyFromWebSocket(r))
	}
	return b.authenticate(key, headerValue(r, "X-Principal-Id"))
}

func (b *BasicAuthProvider) authenticate(key, principalID string) (*AuthContext, error) {
	if b == nil {
		return &AuthContext{}, nil
	}
	if key == "" {
		if b.requireAPIKey {
			return nil, errors.New("api key required")
		}
		return &AuthContext{PrincipalID: strings.TrimSpace(principalID)}, nil
	}
	principal := strings.TrimSpace(principalID)
	if len(b.keys) > 0 {
		bound, ok := b.keys[key]
		if !ok {
			return nil, errors.New("invalid api key")
		}
		if bound != "" {
			principal = bound
		}
	}
	return &AuthContext{APIKey: key, PrincipalID: principal}, nil
}

func (b *BasicAuthProvider) ResolvePrincipal(r *http.Request, requested string) (string, error) {
	if auth := authFromRequest(r); auth != nil && auth.PrincipalID != "" {
		return auth.PrincipalID, nil
	}
	requested = strings.TrimSpace(requested)
	if requested != "" {
		return requested, nil
	}
	if b != nil && b.allowHeaderPrincipal {
		return headerValue(r, "X-Principal-Id"), nil
	}
	return "", nil
}

func loadBasicAPIKeys() (map[string]string, bool, error) {
	keys := map[string]string{}
	requireKey := false

	raw := strings.TrimSpace(os.Getenv(envAPIKeys))
	if raw != "" {
		entries, err := parseAPIKeys(raw)
		if err != nil {
			return nil, false, err
		}
		for _, entry := range entries {
			if entry.Key == "" {
				continue
			}
			keys[entry.Key] = entry.Principal
		}
		requireKey = true
	}

	if single := normalizeAPIKey(os.Getenv(envAPIKey)); single != "" {
		keys[single] = ""
		requireKey = true
	}
	return keys, requireKey, nil
}

// parseAPIKeys accepts a JSON list, a JSON object keyed by api key, or a
// comma-separated "principal:key" list.
func parseAPIKeys(raw string) ([]apiKeyEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var entries []apiKeyEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envAPIKeys, err)
		}
		return entries, nil
	}
	if strings.HasPrefix(raw, "{") {
		entries := map[string]apiKeyEntry{}
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("parse %s: %w", envAPIKeys, err)
		}
		out := make([]apiKeyEntry, 0, len(entries))
		for key, entry := range entries {
			entry.Key = key
			out = append(out, entry)
		}
		return out, nil
	}
	parts := strings.Split(raw, ",")
	entries := make([]apiKeyEntry, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		entry := apiKeyEntry{}
		if principal, key, ok := strings.Cut(part, ":"); ok {
			entry.Principal = strings.TrimSpace(principal)
			entry.Key = strings.TrimSpace(key)
		} else {
			entry.Key = part
		}
		if entry.Key != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func headerValue(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(name))
}
