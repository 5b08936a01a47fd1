package gateway

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cordum/stageflow/core/catalog"
	"github.com/cordum/stageflow/core/configsvc"
	"github.com/cordum/stageflow/core/infra/bus"
	"github.com/cordum/stageflow/core/infra/config"
	"github.com/cordum/stageflow/core/infra/locks"
	"github.com/cordum/stageflow/core/infra/logging"
	infraMetrics "github.com/cordum/stageflow/core/infra/metrics"
	"github.com/cordum/stageflow/core/infra/redisutil"
	"github.com/cordum/stageflow/core/preview"
	wf "github.com/cordum/stageflow/core/workflow"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const (
	maxBodyBytes          = 2 << 20 // 2 MiB limit for incoming payloads
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
	metricsNamespace      = "stageflow"
	// #nosec G101 -- protocol label, not a credential.
	wsAPIKeyProtocol = "stageflow-api-key"
)

// Bus is the event bus used for config lifecycle events and notifications.
type Bus interface {
	Publish(subject string, evt *bus.Event) error
	Subscribe(subject, queue string, handler func(*bus.Event) error) error
}

type server struct {
	bus       Bus
	redis     redis.UniversalClient
	clients   map[*websocket.Conn]*streamClient
	clientsMu sync.RWMutex
	eventsCh  chan *bus.Event

	metrics       infraMetrics.GatewayMetrics
	configMetrics infraMetrics.ConfigMetrics
	editorMetrics infraMetrics.Metrics
	started       time.Time
	auth          AuthProvider

	catalogs       catalog.Source
	staticCatalogs *catalog.StaticSource
	publishedCat   *catalog.ConfigSource
	configStore    *wf.RedisStore
	saveLocks      *locks.RedisLocker
	configSvc      *configsvc.Service
	sessions       *sessionManager
	preview        *preview.Client
}

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return isAllowedOrigin(r) },
	Subprotocols: []string{wsAPIKeyProtocol},
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucket(rps, burst int) *tokenBucket {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	tb := &tokenBucket{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		tb.tokens <- struct{}{}
	}
	interval := time.Second / time.Duration(rps)
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case tb.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return tb
}

func newTokenBucketFromEnv() *tokenBucket {
	rps := defaultRateLimitRPS
	burst := defaultRateLimitBurst
	if val := os.Getenv("API_RATE_LIMIT_RPS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	if val := os.Getenv("API_RATE_LIMIT_BURST"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			burst = parsed
		}
	}
	return newTokenBucket(rps, burst)
}

func (tb *tokenBucket) Allow() bool {
	if tb == nil {
		return true
	}
	select {
	case <-tb.tokens:
		return true
	default:
		return false
	}
}

var apiLimiter = newTokenBucketFromEnv()

// Run starts the gateway with the basic API key provider.
func Run(cfg *config.Config) error {
	return RunWithAuth(cfg, nil)
}

// RunWithAuth starts the gateway with a custom auth provider. When nil, a basic
// API key provider is used.
func RunWithAuth(cfg *config.Config, provider AuthProvider) error {
	if cfg == nil {
		cfg = config.Load()
	}
	if provider == nil {
		basic, err := NewBasicAuthProvider(cfg.APIKey)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		provider = basic
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redisutil.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer client.Close()

	var eventBus Bus
	if cfg.EventsEnabled {
		natsBus, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
		eventBus = natsBus
	} else {
		logging.Info("api-gateway", "events disabled, using in-process bus")
		eventBus = bus.NewMemoryBus()
	}

	static, err := loadStaticCatalogs(cfg.CatalogPath)
	if err != nil {
		return err
	}
	configSvc := configsvc.NewWithClient(client)

	s := newServer(serverDeps{
		bus:           eventBus,
		redis:         client,
		auth:          provider,
		static:        static,
		configSvc:     configSvc,
		catalogTTL:    cfg.CatalogTTL,
		configStore:   wf.NewRedisConfigStoreWithClient(client),
		saveLocks:     locks.NewRedisLocker(client, 0, 0),
		preview:       preview.New(cfg.JavaBaseURL, cfg.PreviewTimeout),
		sessionIdle:   cfg.SessionIdle,
		metrics:       infraMetrics.NewGatewayProm(metricsNamespace),
		configMetrics: infraMetrics.NewConfigProm(metricsNamespace),
		editorMetrics: infraMetrics.NewProm(metricsNamespace),
	})
	s.startBusTaps()
	go s.broadcastLoop(ctx)
	go s.sessions.janitor(ctx, time.Minute)

	return startHTTPServer(s, cfg.HTTPAddr, cfg.MetricsAddr)
}

type serverDeps struct {
	bus           Bus
	redis         redis.UniversalClient
	auth          AuthProvider
	static        *catalog.StaticSource
	configSvc     *configsvc.Service
	catalogTTL    time.Duration
	configStore   *wf.RedisStore
	saveLocks     *locks.RedisLocker
	preview       *preview.Client
	sessionIdle   time.Duration
	metrics       infraMetrics.GatewayMetrics
	configMetrics infraMetrics.ConfigMetrics
	editorMetrics infraMetrics.Metrics
}

func newServer(d serverDeps) *server {
	if d.bus == nil {
		d.bus = bus.NewMemoryBus()
	}
	if d.static == nil {
		d.static = catalog.NewStaticSource(catalog.Sample())
	}
	if d.configMetrics == nil {
		d.configMetrics = infraMetrics.Noop{}
	}
	if d.editorMetrics == nil {
		d.editorMetrics = infraMetrics.Noop{}
	}
	s := &server{
		bus:            d.bus,
		redis:          d.redis,
		clients:        make(map[*websocket.Conn]*streamClient),
		eventsCh:       make(chan *bus.Event, 512),
		metrics:        d.metrics,
		configMetrics:  d.configMetrics,
		editorMetrics:  d.editorMetrics,
		started:        time.Now().UTC(),
		auth:           d.auth,
		staticCatalogs: d.static,
		catalogs:       d.static,
		configSvc:      d.configSvc,
		configStore:    d.configStore,
		saveLocks:      d.saveLocks,
		preview:        d.preview,
	}
	if s.preview != nil && s.preview.Metrics == nil {
		s.preview.Metrics = d.configMetrics
	}
	if d.configSvc != nil {
		s.publishedCat = catalog.NewConfigSource(d.configSvc, d.catalogTTL, d.static)
		s.catalogs = s.publishedCat
	}
	s.sessions = newSessionManager(d.sessionIdle, d.editorMetrics, s.newEditor)
	return s
}

func loadStaticCatalogs(path string) (*catalog.StaticSource, error) {
	if strings.TrimSpace(path) == "" {
		logging.Info("api-gateway", "no catalog file configured, serving sample catalog", "application", catalog.SampleApplicationID)
		return catalog.NewStaticSource(catalog.Sample()), nil
	}
	catalogs, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	logging.Info("api-gateway", "catalog loaded", "path", path, "applications", len(catalogs))
	return catalog.NewStaticSourceFromMap(catalogs), nil
}

func startHTTPServer(s *server, httpAddr, metricsAddr string) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	go func() {
		srv := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logging.Info("api-gateway", "metrics listening", "addr", metricsAddr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("api-gateway", "metrics server error", "error", err)
		}
	}()

	logging.Info("api-gateway", "http listening", "addr", httpAddr)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           s.handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error("api-gateway", "http server error", "error", err)
		return err
	}
	return nil
}

// handler builds the routed mux wrapped in CORS, rate limiting and auth.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return corsMiddleware(rateLimitMiddleware(apiKeyMiddleware(s.auth, mux)))
}

func (s *server) routes(mux *http.ServeMux) {
	// 1. Health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/v1/status", s.instrumented("/api/v1/status", s.handleStatus))

	// 2. Catalog
	mux.HandleFunc("GET /api/v1/applications", s.instrumented("/api/v1/applications", s.handleListApplications))
	mux.HandleFunc("GET /api/v1/applications/{app}/catalog", s.instrumented("/api/v1/applications/{app}/catalog", s.handleGetCatalog))
	mux.HandleFunc("PUT /api/v1/applications/{app}/catalog", s.instrumented("/api/v1/applications/{app}/catalog", s.handlePublishCatalog))
	mux.HandleFunc("GET /api/v1/applications/{app}/catalog/stages", s.instrumented("/api/v1/applications/{app}/catalog/stages", s.handleListCatalogStages))
	mux.HandleFunc("GET /api/v1/applications/{app}/catalog/attestations", s.instrumented("/api/v1/applications/{app}/catalog/attestations", s.handleListCatalogAttestations))
	mux.HandleFunc("GET /api/v1/applications/{app}/catalog/parameters", s.instrumented("/api/v1/applications/{app}/catalog/parameters", s.handleListCatalogParameters))

	// 3. Saved workflow configs
	mux.HandleFunc("POST /workflow-configs", s.instrumented("/workflow-configs", s.handleSaveConfig))
	mux.HandleFunc("POST /api/v1/workflow-configs", s.instrumented("/api/v1/workflow-configs", s.handleSaveConfig))
	mux.HandleFunc("GET /api/v1/workflow-configs", s.instrumented("/api/v1/workflow-configs", s.handleListConfigs))
	mux.HandleFunc("GET /api/v1/workflow-configs/{app}/{instance}", s.instrumented("/api/v1/workflow-configs/{app}/{instance}", s.handleGetSavedConfig))
	mux.HandleFunc("DELETE /api/v1/workflow-configs/{app}/{instance}", s.instrumented("/api/v1/workflow-configs/{app}/{instance}", s.handleDeleteSavedConfig))
	mux.HandleFunc("GET /api/v1/workflow-configs/{app}/{instance}/history", s.instrumented("/api/v1/workflow-configs/{app}/{instance}/history", s.handleConfigHistory))

	// 4. Editor sessions
	s.sessionRoutes(mux)

	// 5. Scoped settings
	mux.HandleFunc("GET /api/v1/config", s.instrumented("/api/v1/config", s.handleGetConfig))
	mux.HandleFunc("GET /api/v1/config/effective", s.instrumented("/api/v1/config/effective", s.handleGetEffectiveConfig))
	mux.HandleFunc("POST /api/v1/config", s.instrumented("/api/v1/config", s.handleSetConfig))

	// 6. File preview
	mux.HandleFunc("POST /api/v1/preview", s.instrumented("/api/v1/preview", s.handlePreview))

	// 7. Stream (WebSocket)
	mux.HandleFunc("/api/v1/stream", s.instrumented("/api/v1/stream", s.handleStream))
}

// --- Handlers ---

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"sessions":       s.sessions.count(),
	}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.redis.Ping(ctx).Err()
		cancel()
		resp["redis"] = map[string]any{"ok": err == nil}
		if err != nil {
			resp["redis"] = map[string]any{"ok": false, "error": err.Error()}
		}
	}
	if nb, ok := s.bus.(*bus.NatsBus); ok {
		resp["nats"] = map[string]any{
			"connected": nb.IsConnected(),
			"status":    nb.Status(),
			"url":       nb.ConnectedURL(),
		}
	}
	s.clientsMu.RLock()
	resp["stream_clients"] = len(s.clients)
	s.clientsMu.RUnlock()
	writeJSON(w, http.StatusOK, resp)
}

type configUpsertRequest struct {
	Scope   string            `json:"scope"`
	ScopeID string            `json:"scope_id"`
	Data    map[string]any    `json:"data"`
	Meta    map[string]string `json:"meta"`
}

func (s *server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configSvc == nil {
		http.Error(w, "config service unavailable", http.StatusServiceUnavailable)
		return
	}
	var req configUpsertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scope, ok := parseScope(req.Scope)
	if !ok {
		http.Error(w, "invalid scope", http.StatusBadRequest)
		return
	}
	if _, reserved := req.Data[catalogDataKey]; reserved && scope == configsvc.ScopeApplication {
		http.Error(w, "use the catalog endpoint to publish catalogs", http.StatusBadRequest)
		return
	}
	doc := &configsvc.Document{
		Scope:   scope,
		ScopeID: req.ScopeID,
		Data:    req.Data,
		Meta:    req.Meta,
	}
	if err := s.configSvc.Set(r.Context(), doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configSvc == nil {
		http.Error(w, "config service unavailable", http.StatusServiceUnavailable)
		return
	}
	scope, ok := parseScope(r.URL.Query().Get("scope"))
	if !ok {
		http.Error(w, "invalid scope", http.StatusBadRequest)
		return
	}
	scopeID := strings.TrimSpace(r.URL.Query().Get("scope_id"))
	if scope == configsvc.ScopeSystem && scopeID == "" {
		scopeID = "default"
	}
	doc, err := s.configSvc.Get(r.Context(), scope, scopeID)
	if err != nil {
		if errors.Is(err, configsvc.ErrNotFound) {
			http.Error(w, "config not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleGetEffectiveConfig(w http.ResponseWriter, r *http.Request) {
	if s.configSvc == nil {
		http.Error(w, "config service unavailable", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	snap, err := s.configSvc.EffectiveSnapshot(r.Context(), strings.TrimSpace(q.Get("application_id")), strings.TrimSpace(q.Get("workflow_id")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	delete(snap.Data, catalogDataKey)
	writeJSON(w, http.StatusOK, snap)
}

func parseScope(raw string) (configsvc.Scope, bool) {
	switch configsvc.Scope(strings.TrimSpace(raw)) {
	case "", configsvc.ScopeSystem:
		return configsvc.ScopeSystem, true
	case configsvc.ScopeApplication:
		return configsvc.ScopeApplication, true
	case configsvc.ScopeWorkflow:
		return configsvc.ScopeWorkflow, true
	default:
		return "", false
	}
}

type previewRequest struct {
	Location string `json:"location"`
}

// handlePreview always answers 200; backend failures are carried in the body.
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.preview == nil {
		http.Error(w, "preview backend unavailable", http.StatusServiceUnavailable)
		return
	}
	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		http.Error(w, "location required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.preview.Fetch(r.Context(), req.Location))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into out, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, out); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Op     string `json:"op,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// statusForKind maps editor error kinds onto HTTP status codes.
func statusForKind(kind wf.Kind) int {
	switch kind {
	case wf.KindDuplicateEntity, wf.KindCyclicDependency, wf.KindForwardDependency:
		return http.StatusConflict
	case wf.KindMissingSelection:
		return http.StatusPreconditionFailed
	case wf.KindNotFound:
		return http.StatusNotFound
	case wf.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var we *wf.Error
	if errors.As(err, &we) {
		resp.Kind = string(we.Kind)
		resp.Op = we.Op
		resp.Detail = we.Detail
	}
	status := statusForKind(wf.KindOf(err))
	if errors.Is(err, locks.ErrHeld) {
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logging.Error("api-gateway", "request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !isAllowedOrigin(r) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Principal-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin; treat as allowed.
		return true
	}

	allowed, allowAll := allowedOriginsFromEnv()
	if allowAll {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	if len(allowed) == 0 {
		host := strings.ToLower(u.Hostname())
		switch host {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
		reqHost := strings.ToLower(requestHostname(r.Host))
		return reqHost != "" && host == reqHost
	}

	_, ok := allowed[origin]
	return ok
}

func allowedOriginsFromEnv() (map[string]struct{}, bool) {
	for _, key := range []string{
		"STAGEFLOW_ALLOWED_ORIGINS",
		"CORS_ALLOW_ORIGINS",
	} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		if raw == "*" {
			return nil, true
		}
		set := make(map[string]struct{})
		for _, part := range strings.Split(raw, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			set[p] = struct{}{}
		}
		return set, false
	}
	return nil, false
}

func requestHostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil && host != "" {
		return host
	}
	return hostport
}

func normalizeAPIKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	// Common .env mistake: quoting values (e.g. "super-secret-key").
	key = strings.Trim(key, "\"'")
	return strings.TrimSpace(key)
}

func apiKeyFromWebSocket(r *http.Request) string {
	if r == nil {
		return ""
	}
	protocols := websocket.Subprotocols(r)
	for i, protocol := range protocols {
		if strings.EqualFold(protocol, wsAPIKeyProtocol) && i+1 < len(protocols) {
			return decodeWSAPIKey(protocols[i+1])
		}
		prefix := strings.ToLower(wsAPIKeyProtocol) + "."
		if strings.HasPrefix(strings.ToLower(protocol), prefix) {
			return decodeWSAPIKey(protocol[len(prefix):])
		}
	}
	return ""
}

func decodeWSAPIKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return string(decoded)
	}
	return raw
}

// protectedPath reports whether path falls under rate limiting and auth.
func protectedPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/workflow-configs")
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	if apiLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !protectedPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !apiLimiter.Allow() {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware enforces API key auth and injects auth context.
func apiKeyMiddleware(auth AuthProvider, next http.Handler) http.Handler {
	if auth == nil {
		return next
	}
	public, _ := auth.(PublicPathProvider)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !protectedPath(r.URL.Path) || (public != nil && public.IsPublicPath(r.URL.Path)) {
			next.ServeHTTP(w, r)
			return
		}
		authCtx, err := auth.AuthenticateHTTP(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards websocket hijacking support to the underlying writer when available.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}
