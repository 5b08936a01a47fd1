package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cordum/stageflow/core/configsvc"
	"github.com/cordum/stageflow/core/infra/logging"
	c "github.com/patrickmn/go-cache"
)

// Source resolves the catalog for an application.
type Source interface {
	Catalog(ctx context.Context, applicationID string) (*Catalog, error)
}

// StaticSource serves a fixed set of catalogs.
type StaticSource struct {
	catalogs map[string]*Catalog
}

func NewStaticSource(catalogs ...*Catalog) *StaticSource {
	s := &StaticSource{catalogs: make(map[string]*Catalog, len(catalogs))}
	for _, cat := range catalogs {
		if cat != nil {
			s.catalogs[cat.app.ID] = cat
		}
	}
	return s
}

// NewStaticSourceFromMap wraps the output of Parse or LoadFile.
func NewStaticSourceFromMap(catalogs map[string]*Catalog) *StaticSource {
	s := &StaticSource{catalogs: make(map[string]*Catalog, len(catalogs))}
	for id, cat := range catalogs {
		s.catalogs[id] = cat
	}
	return s
}

func (s *StaticSource) Catalog(_ context.Context, applicationID string) (*Catalog, error) {
	cat, ok := s.catalogs[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, applicationID)
	}
	return cat, nil
}

// Applications lists the applications served, sorted by id.
func (s *StaticSource) Applications() []Application {
	out := make([]Application, 0, len(s.catalogs))
	for _, cat := range s.catalogs {
		out = append(out, cat.Application())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

const catalogDataKey = "catalog"

// ConfigSource reads catalogs published to the config service at application
// scope and caches them for ttl. Misses fall through to fallback when set.
type ConfigSource struct {
	svc      *configsvc.Service
	cache    *c.Cache
	ttl      time.Duration
	fallback Source
}

func NewConfigSource(svc *configsvc.Service, ttl time.Duration, fallback Source) *ConfigSource {
	if ttl <= 0 {
		ttl = c.DefaultExpiration
	}
	return &ConfigSource{
		svc:      svc,
		cache:    c.New(ttl, 10*time.Minute),
		ttl:      ttl,
		fallback: fallback,
	}
}

func (s *ConfigSource) Catalog(ctx context.Context, applicationID string) (*Catalog, error) {
	if cached, found := s.cache.Get(applicationID); found {
		return cached.(*Catalog), nil
	}
	doc, err := s.svc.Get(ctx, configsvc.ScopeApplication, applicationID)
	if errors.Is(err, configsvc.ErrNotFound) {
		if s.fallback != nil {
			return s.fallback.Catalog(ctx, applicationID)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, applicationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", applicationID, err)
	}
	cat, err := decodeStored(doc)
	if err != nil {
		return nil, err
	}
	s.cache.Set(applicationID, cat, s.ttl)
	return cat, nil
}

// Publish stores cat in the config service and drops the cached copy.
func (s *ConfigSource) Publish(ctx context.Context, cat *Catalog) error {
	if cat == nil {
		return fmt.Errorf("%w: nil catalog", ErrInvalidCatalog)
	}
	data, err := encodeStored(cat.Document())
	if err != nil {
		return err
	}
	appID := cat.app.ID
	if err := s.svc.Set(ctx, &configsvc.Document{
		Scope:   configsvc.ScopeApplication,
		ScopeID: appID,
		Data:    map[string]any{catalogDataKey: data},
	}); err != nil {
		return fmt.Errorf("publish catalog %s: %w", appID, err)
	}
	s.cache.Delete(appID)
	logging.Info("catalog", "published", "application", appID, "stages", len(cat.stages))
	return nil
}

// Applications lists the ids with a published catalog.
func (s *ConfigSource) Applications(ctx context.Context) ([]string, error) {
	return s.svc.List(ctx, configsvc.ScopeApplication)
}

func encodeStored(doc Document) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return out, nil
}

func decodeStored(doc *configsvc.Document) (*Catalog, error) {
	val, ok := doc.Data[catalogDataKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no catalog data", ErrInvalidCatalog, doc.ScopeID)
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(out)
}
