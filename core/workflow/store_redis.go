package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cordum/stageflow/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

const historyMaxEntries = 200

// SaveRecord is one entry in a config's save history.
type SaveRecord struct {
	Revision   int64     `json:"revision"`
	SavedBy    string    `json:"savedBy,omitempty"`
	SavedAt    time.Time `json:"savedAt"`
	Stages     int       `json:"stages"`
	SubStages  int       `json:"subStages"`
	SecretRefs int       `json:"secretRefs,omitempty"`
}

// RedisStore persists saved workflow configs in Redis.
type RedisStore struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisConfigStore connects to Redis and returns a saved-config store.
func NewRedisConfigStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client, owned: true}, nil
}

// NewRedisConfigStoreWithClient shares an existing client. Close leaves it open.
func NewRedisConfigStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

// Save upserts the committed shape of cfg, bumping its revision, and updates
// the indexes and save history. cfg's persistence metadata is updated in place.
func (s *RedisStore) Save(ctx context.Context, cfg *WorkflowConfig) error {
	if cfg == nil || cfg.ApplicationID == "" || cfg.WorkflowInstanceID == "" {
		return fmt.Errorf("application id and workflow instance id required")
	}
	now := time.Now().UTC()
	key := configKey(cfg.ApplicationID, cfg.WorkflowInstanceID)
	prev, err := s.Get(ctx, cfg.ApplicationID, cfg.WorkflowInstanceID)
	switch {
	case err == nil:
		cfg.Revision = prev.Revision + 1
		cfg.CreatedAt = prev.CreatedAt
	case errors.Is(err, ErrNotFound):
		cfg.Revision = 1
		cfg.CreatedAt = now
	default:
		return err
	}
	cfg.UpdatedAt = now

	out := cfg.Committed()
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	record, err := json.Marshal(SaveRecord{
		Revision:   cfg.Revision,
		SavedBy:    cfg.SavedBy,
		SavedAt:    now,
		Stages:     len(out.Stages),
		SubStages:  countSubStages(out.Stages),
		SecretRefs: out.SecretRefs(),
	})
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	score := float64(now.Unix())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.ZAdd(ctx, appIndexKey(cfg.ApplicationID), redis.Z{Score: score, Member: cfg.WorkflowInstanceID})
	pipe.ZAdd(ctx, allIndexKey(), redis.Z{Score: score, Member: indexMember(cfg.ApplicationID, cfg.WorkflowInstanceID)})
	pipe.RPush(ctx, historyKey(cfg.ApplicationID, cfg.WorkflowInstanceID), record)
	pipe.LTrim(ctx, historyKey(cfg.ApplicationID, cfg.WorkflowInstanceID), -historyMaxEntries, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns a saved config. Missing configs return ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, applicationID, instanceID string) (*WorkflowConfig, error) {
	if applicationID == "" || instanceID == "" {
		return nil, fmt.Errorf("application id and workflow instance id required")
	}
	data, err := s.client.Get(ctx, configKey(applicationID, instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NewError(KindNotFound, "get_config", "%s/%s", applicationID, instanceID)
		}
		return nil, err
	}
	var cfg WorkflowConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Delete removes a saved config, its indexes and history.
func (s *RedisStore) Delete(ctx context.Context, applicationID, instanceID string) error {
	if _, err := s.Get(ctx, applicationID, instanceID); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, configKey(applicationID, instanceID))
	pipe.ZRem(ctx, appIndexKey(applicationID), instanceID)
	pipe.ZRem(ctx, allIndexKey(), indexMember(applicationID, instanceID))
	pipe.Del(ctx, historyKey(applicationID, instanceID))
	_, err := pipe.Exec(ctx)
	return err
}

// List returns recently saved configs, optionally scoped to one application.
func (s *RedisStore) List(ctx context.Context, applicationID string, limit int64) ([]*WorkflowConfig, error) {
	if limit <= 0 {
		limit = 50
	}
	index := allIndexKey()
	if applicationID != "" {
		index = appIndexKey(applicationID)
	}
	members, err := s.client.ZRevRange(ctx, index, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*WorkflowConfig{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(members))
	for _, m := range members {
		app, inst := applicationID, m
		if applicationID == "" {
			var ok bool
			if app, inst, ok = splitIndexMember(m); !ok {
				continue
			}
		}
		cmds = append(cmds, pipe.Get(ctx, configKey(app, inst)))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]*WorkflowConfig, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var cfg WorkflowConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			continue
		}
		out = append(out, &cfg)
	}
	return out, nil
}

// History returns up to limit save records, oldest first.
func (s *RedisStore) History(ctx context.Context, applicationID, instanceID string, limit int64) ([]SaveRecord, error) {
	if limit <= 0 {
		limit = historyMaxEntries
	}
	raw, err := s.client.LRange(ctx, historyKey(applicationID, instanceID), -limit, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]SaveRecord, 0, len(raw))
	for _, item := range raw {
		var rec SaveRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func countSubStages(stages []ConfigStage) int {
	n := 0
	for _, st := range stages {
		n += len(st.SubStages)
	}
	return n
}

// InstanceKey identifies one saved instance in Redis key space. Both ids are
// query-escaped, so ":" and "/" inside an id cannot collide with the separators.
func InstanceKey(applicationID, instanceID string) string {
	return url.QueryEscape(applicationID) + ":" + url.QueryEscape(instanceID)
}

func configKey(applicationID, instanceID string) string {
	return "wfcfg:doc:" + InstanceKey(applicationID, instanceID)
}

func appIndexKey(applicationID string) string {
	return "wfcfg:index:app:" + url.QueryEscape(applicationID)
}

func allIndexKey() string {
	return "wfcfg:index:all"
}

func historyKey(applicationID, instanceID string) string {
	return "wfcfg:history:" + InstanceKey(applicationID, instanceID)
}

func indexMember(applicationID, instanceID string) string {
	return url.QueryEscape(applicationID) + "/" + url.QueryEscape(instanceID)
}

func splitIndexMember(m string) (string, string, bool) {
	rawApp, rawInst, ok := strings.Cut(m, "/")
	if !ok {
		return "", "", false
	}
	app, err := url.QueryUnescape(rawApp)
	if err != nil {
		return "", "", false
	}
	inst, err := url.QueryUnescape(rawInst)
	if err != nil {
		return "", "", false
	}
	return app, inst, true
}
