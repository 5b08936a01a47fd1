package workflow

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	store, err := NewRedisConfigStore("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	return store
}

func TestConfigSaveGetList(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cfg := buildScenario(t).Draft()
	cfg.SavedBy = "alice"
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.Revision != 1 || cfg.CreatedAt.IsZero() {
		t.Fatalf("expected revision 1 and created time, got %+v", cfg)
	}

	got, err := store.Get(ctx, "app", "wi-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Stages) != 2 || got.SavedBy != "alice" || got.Revision != 1 {
		t.Fatalf("mismatch: %+v", got)
	}

	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if cfg.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", cfg.Revision)
	}

	other := NewConfigStore("other-app", "wi-9", nil).Snapshot()
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("save other: %v", err)
	}

	list, err := store.List(ctx, "app", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].WorkflowInstanceID != "wi-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
	all, err := store.List(ctx, "", 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("unexpected list all: %d %v", len(all), err)
	}

	history, err := store.History(ctx, "app", "wi-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Revision != 2 || history[0].SubStages != 3 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestConfigSaveDropsInactiveFileConfigs(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cfg := buildScenario(t).Draft()
	cfg.Stages[0].SubStages[0].UploadConfig = emptyFileConfig(FileTypeUpload)
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ := store.Get(ctx, "app", "wi-1")
	if got.Stages[0].SubStages[0].UploadConfig != nil {
		t.Fatalf("upload config persisted while not required")
	}
}

func TestConfigDelete(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cfg := NewConfigStore("app", "wi", nil).Snapshot()
	_ = store.Save(ctx, cfg)
	if err := store.Delete(ctx, "app", "wi"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "app", "wi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, "app", "wi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	list, _ := store.List(ctx, "", 10)
	if len(list) != 0 {
		t.Fatalf("expected empty index, got %d", len(list))
	}
}

func TestConfigSaveRequiresIDs(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	if err := store.Save(context.Background(), &WorkflowConfig{}); err == nil {
		t.Fatalf("expected error for missing ids")
	}
	if _, err := store.Get(context.Background(), "", "x"); err == nil {
		t.Fatalf("expected error for missing application id")
	}
}

func TestConfigKeysKeepSeparatorIdsApart(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	save := func(app, inst, value string) *WorkflowConfig {
		t.Helper()
		cfg := &WorkflowConfig{
			ApplicationID:      app,
			WorkflowInstanceID: inst,
			Parameters:         []ConfigParameter{{ID: "marker", Value: value}},
		}
		if err := store.Save(ctx, cfg); err != nil {
			t.Fatalf("save %s/%s: %v", app, inst, err)
		}
		return cfg
	}
	a := save("x:y", "z", "A")
	b := save("x", "y:z", "B")
	c := save("a/b", "c", "C")
	d := save("index", "all", "D")
	for _, cfg := range []*WorkflowConfig{a, b, c, d} {
		if cfg.Revision != 1 {
			t.Fatalf("%s/%s shared a revision counter: %d", cfg.ApplicationID, cfg.WorkflowInstanceID, cfg.Revision)
		}
	}

	got, err := store.Get(ctx, "x:y", "z")
	if err != nil {
		t.Fatalf("get x:y/z: %v", err)
	}
	if got.ApplicationID != "x:y" || got.WorkflowInstanceID != "z" || got.Parameters[0].Value != "A" {
		t.Fatalf("x:y/z overwritten: %+v", got)
	}

	all, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	seen := map[string]string{}
	for _, cfg := range all {
		seen[cfg.ApplicationID+"|"+cfg.WorkflowInstanceID] = cfg.Parameters[0].Value
	}
	want := map[string]string{"x:y|z": "A", "x|y:z": "B", "a/b|c": "C", "index|all": "D"}
	if len(seen) != len(want) || len(all) != len(want) {
		t.Fatalf("unexpected list %v", seen)
	}
	for k, v := range want {
		if seen[k] != v {
			t.Fatalf("list entry %s: expected %s, got %q", k, v, seen[k])
		}
	}

	if err := store.Delete(ctx, "x", "y:z"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "x:y", "z"); err != nil {
		t.Fatalf("delete removed the wrong config: %v", err)
	}
	if history, _ := store.History(ctx, "x:y", "z", 0); len(history) != 1 {
		t.Fatalf("unexpected history for x:y/z: %+v", history)
	}
}

func TestInstanceKeyEscapesSeparators(t *testing.T) {
	if InstanceKey("x:y", "z") == InstanceKey("x", "y:z") {
		t.Fatalf("instance keys collide")
	}
	app, inst, ok := splitIndexMember(indexMember("a/b", "c/d"))
	if !ok || app != "a/b" || inst != "c/d" {
		t.Fatalf("round trip failed: %q %q %v", app, inst, ok)
	}
	if _, _, ok := splitIndexMember("no-separator"); ok {
		t.Fatalf("expected malformed member to be rejected")
	}
}
