package configsvc

import "testing"

func TestSnapshotHashIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": true, "x": "v"}}
	b := map[string]any{"nested": map[string]any{"x": "v", "y": true}, "a": 1, "b": 2}
	ha, err := snapshotHash(a)
	if err != nil || ha == "" {
		t.Fatalf("hash a: %q %v", ha, err)
	}
	hb, _ := snapshotHash(b)
	if ha != hb {
		t.Fatalf("expected stable hash, got %s vs %s", ha, hb)
	}
	hc, _ := snapshotHash(map[string]any{"a": 2})
	if hc == ha {
		t.Fatalf("different data should hash differently")
	}
	if h, err := snapshotHash(nil); err != nil || h != "" {
		t.Fatalf("nil data should hash empty, got %q %v", h, err)
	}
	if _, err := snapshotHash(map[string]any{"bad": func() {}}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestSnapshotVersionOrdering(t *testing.T) {
	revs := map[Scope]int64{
		ScopeWorkflow: 4,
		ScopeSystem:   1,
	}
	got := snapshotVersion(revs)
	want := "system:1|application:0|workflow:4"
	if got != want {
		t.Fatalf("expected %s got %s", want, got)
	}
}
