package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type publicPathAuth struct {
	called bool
}

var errUnauthorized = errors.New("unauthorized")

func (p *publicPathAuth) AuthenticateHTTP(*http.Request) (*AuthContext, error) {
	p.called = true
	return nil, errUnauthorized
}

func (p *publicPathAuth) ResolvePrincipal(*http.Request, string) (string, error) { return "", nil }

func (p *publicPathAuth) IsPublicPath(path string) bool { return path == "/api/v1/applications" }

func newBasicAuthForTest(t *testing.T, env map[string]string, extra ...string) *BasicAuthProvider {
	t.Helper()
	for _, key := range []string{envAPIKeys, envAPIKey} {
		t.Setenv(key, "")
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
	provider, err := NewBasicAuthProvider(extra...)
	if err != nil {
		t.Fatalf("new basic auth provider: %v", err)
	}
	return provider
}

func requestWithAuthContext(auth *AuthContext) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	return req.WithContext(context.WithValue(req.Context(), authContextKey{}, auth))
}

func TestParseAPIKeysFormats(t *testing.T) {
	entries, err := parseAPIKeys(`[{"key":"k1","principal":"alice"}]`)
	if err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "k1" || entries[0].Principal != "alice" {
		t.Fatalf("unexpected list entries: %#v", entries)
	}

	entries, err = parseAPIKeys(`{"k2":{}}`)
	if err != nil {
		t.Fatalf("parse map: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "k2" {
		t.Fatalf("unexpected map entries: %#v", entries)
	}

	entries, err = parseAPIKeys("bob:key4, key5")
	if err != nil {
		t.Fatalf("parse colon: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "key4" || entries[0].Principal != "bob" || entries[1].Key != "key5" {
		t.Fatalf("unexpected colon entries: %#v", entries)
	}

	if _, err := parseAPIKeys(`[not json`); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAuthenticateAllowsMissingKeyWhenNotRequired(t *testing.T) {
	provider := newBasicAuthForTest(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	req.Header.Set("X-Principal-Id", "carol")
	ctx, err := provider.AuthenticateHTTP(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ctx.PrincipalID != "carol" {
		t.Fatalf("expected header principal, got %q", ctx.PrincipalID)
	}
}

func TestAuthenticateRequiresKeyWhenConfigured(t *testing.T) {
	provider := newBasicAuthForTest(t, map[string]string{envAPIKeys: "alice:key1"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	if _, err := provider.AuthenticateHTTP(req); err == nil {
		t.Fatalf("expected api key required error")
	}

	req.Header.Set("X-API-Key", "'key1'")
	ctx, err := provider.AuthenticateHTTP(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if ctx.APIKey != "key1" || ctx.PrincipalID != "alice" {
		t.Fatalf("unexpected auth context %+v", ctx)
	}
}

func TestAuthenticateRejectsInvalidKey(t *testing.T) {
	provider := newBasicAuthForTest(t, nil, "from-config")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	req.Header.Set("X-API-Key", "bad")
	if _, err := provider.AuthenticateHTTP(req); err == nil {
		t.Fatalf("expected invalid api key error")
	}
	req.Header.Set("X-API-Key", "from-config")
	if _, err := provider.AuthenticateHTTP(req); err != nil {
		t.Fatalf("expected configured key to pass: %v", err)
	}
}

func TestResolvePrincipal(t *testing.T) {
	provider := newBasicAuthForTest(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Principal-Id", "alice")
	if got, err := provider.ResolvePrincipal(req, ""); err != nil || got != "alice" {
		t.Fatalf("expected principal alice, got %q err=%v", got, err)
	}
	if got, _ := provider.ResolvePrincipal(req, "dave"); got != "dave" {
		t.Fatalf("expected requested principal, got %q", got)
	}
	bound := requestWithAuthContext(&AuthContext{PrincipalID: "erin"})
	if got, _ := provider.ResolvePrincipal(bound, "dave"); got != "erin" {
		t.Fatalf("expected key-bound principal, got %q", got)
	}

	s := &server{}
	if got, _ := s.resolvePrincipal(req, ""); got != "alice" {
		t.Fatalf("expected header principal without provider, got %q", got)
	}
}

func TestAuthContextHelpers(t *testing.T) {
	ctx := context.WithValue(context.Background(), authContextKey{}, &AuthContext{PrincipalID: "p1"})
	if got := authFromContext(ctx); got == nil || got.PrincipalID != "p1" {
		t.Fatalf("expected auth context from ctx")
	}
	if got := authFromRequest(requestWithAuthContext(&AuthContext{PrincipalID: "p2"})); got == nil || got.PrincipalID != "p2" {
		t.Fatalf("expected auth context from request")
	}
	if authFromRequest(nil) != nil {
		t.Fatalf("expected nil for nil request")
	}
}

func TestAPIKeyMiddlewareSkipsPublicPaths(t *testing.T) {
	auth := &publicPathAuth{}
	handler := apiKeyMiddleware(auth, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if auth.called {
		t.Fatalf("expected auth not to be called for public path")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/workflow-configs", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected save path to require auth, got %d", rec.Code)
	}
}
