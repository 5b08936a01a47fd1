package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cordum/stageflow/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// Scope levels for configuration inheritance.
type Scope string

const (
	ScopeSystem      Scope = "system"
	ScopeApplication Scope = "application"
	ScopeWorkflow    Scope = "workflow"
)

// ErrNotFound is returned when no document exists at a scope/id.
var ErrNotFound = errors.New("config document not found")

// Document is a config fragment at a given scope.
type Document struct {
	Scope    Scope             `json:"scope"`
	ScopeID  string            `json:"scope_id"` // system may use "default"
	Data     map[string]any    `json:"data"`
	Revision int64             `json:"revision"`
	Updated  time.Time         `json:"updated_at"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Service persists config documents and resolves effective config with simple override semantics.
type Service struct {
	client redis.UniversalClient
	owned  bool
}

// EffectiveSnapshot includes the merged config plus version/hash metadata.
type EffectiveSnapshot struct {
	Version string         `json:"version"`
	Hash    string         `json:"hash"`
	Data    map[string]any `json:"data"`
}

// New creates a config service backed by Redis.
func New(url string) (*Service, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &Service{client: client, owned: true}, nil
}

// NewWithClient shares an existing client. Close leaves it open.
func NewWithClient(client redis.UniversalClient) *Service {
	return &Service{client: client}
}

func (s *Service) Close() error {
	if s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

// Set stores/overwrites a config document.
func (s *Service) Set(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Scope == "" {
		return fmt.Errorf("scope required")
	}
	if doc.Scope != ScopeSystem && doc.ScopeID == "" {
		return fmt.Errorf("scope_id required for non-system scope")
	}
	if doc.Scope == ScopeSystem && doc.ScopeID == "" {
		doc.ScopeID = "default"
	}
	if prev, err := s.Get(ctx, doc.Scope, doc.ScopeID); err == nil && prev.Revision > doc.Revision {
		doc.Revision = prev.Revision
	}
	doc.Revision++
	doc.Updated = time.Now().UTC()
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, cfgKey(doc.Scope, doc.ScopeID), payload, 0)
	pipe.SAdd(ctx, indexKey(doc.Scope), doc.ScopeID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get fetches a config document at a given scope/id.
func (s *Service) Get(ctx context.Context, scope Scope, id string) (*Document, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	data, err := s.client.Get(ctx, cfgKey(scope, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode doc: %w", err)
	}
	return &doc, nil
}

// List returns the ids stored under scope, sorted.
func (s *Service) List(ctx context.Context, scope Scope) ([]string, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope required")
	}
	ids, err := s.client.SMembers(ctx, indexKey(scope)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a document and its index entry.
func (s *Service) Delete(ctx context.Context, scope Scope, id string) error {
	if scope == "" {
		return fmt.Errorf("scope required")
	}
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, cfgKey(scope, id))
	pipe.SRem(ctx, indexKey(scope), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Effective merges configs in order: system -> application -> workflow.
// Later scopes override earlier keys shallowly.
func (s *Service) Effective(ctx context.Context, applicationID, workflowID string) (map[string]any, error) {
	snap, err := s.EffectiveSnapshot(ctx, applicationID, workflowID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return map[string]any{}, nil
	}
	return snap.Data, nil
}

// EffectiveSnapshot merges configs in order and returns the merged config plus version/hash metadata.
func (s *Service) EffectiveSnapshot(ctx context.Context, applicationID, workflowID string) (*EffectiveSnapshot, error) {
	order := []struct {
		scope Scope
		id    string
	}{
		{ScopeSystem, "default"},
		{ScopeApplication, applicationID},
		{ScopeWorkflow, workflowID},
	}
	result := make(map[string]any)
	revisions := make(map[Scope]int64, len(order))
	for _, item := range order {
		if item.scope != ScopeSystem && item.id == "" {
			continue
		}
		doc, err := s.Get(ctx, item.scope, item.id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		revisions[item.scope] = doc.Revision
		mergeShallow(result, doc.Data)
	}
	version := snapshotVersion(revisions)
	hash, _ := snapshotHash(result)
	return &EffectiveSnapshot{
		Version: version,
		Hash:    hash,
		Data:    result,
	}, nil
}

// mergeShallow overwrites keys in dst with src values.
func mergeShallow(dst, src map[string]any) {
	if len(src) == 0 {
		return
	}
	for k, v := range src {
		dst[k] = v
	}
}

func cfgKey(scope Scope, id string) string {
	if scope == ScopeSystem {
		if id == "" {
			id = "default"
		}
	}
	return fmt.Sprintf("cfg:%s:%s", scope, id)
}

func indexKey(scope Scope) string {
	return fmt.Sprintf("cfg:index:%s", scope)
}
