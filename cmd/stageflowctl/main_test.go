package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cordum/stageflow/core/catalog"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"STAGEFLOW_GATEWAY", "STAGEFLOW_API_KEY", "STAGEFLOW_PRINCIPAL", "STAGEFLOW_APPLICATION"} {
		t.Setenv(key, "")
	}
	out := &bytes.Buffer{}
	root := newRootCmd(out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func fakeGateway(t *testing.T, seen *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = append(*seen, r.Method+" "+r.URL.Path+" key="+r.Header.Get("X-API-Key"))
		switch {
		case strings.HasSuffix(r.URL.Path, "/catalog/stages"):
			_ = json.NewEncoder(w).Encode(catalog.Sample().ListStages())
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflow-configs":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"applicationId":"finance-close","workflowInstanceId":"wf-1","revision":1}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/v1/preview":
			_, _ = w.Write([]byte(`{"location":"x","sheets":[],"error":"backend down"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogStagesTable(t *testing.T) {
	var seen []string
	srv := fakeGateway(t, &seen)
	out, err := runCLI(t, "catalog", "stages", "--gateway", srv.URL+"/", "--api-key", "k", "--app", catalog.SampleApplicationID)
	if err != nil {
		t.Fatalf("catalog stages: %v", err)
	}
	if !strings.Contains(out, "data-collection") || !strings.Contains(out, "extract-ledger") {
		t.Fatalf("expected stage table, got %s", out)
	}
	if len(seen) != 1 || seen[0] != "GET /api/v1/applications/finance-close/catalog/stages key=k" {
		t.Fatalf("unexpected requests %v", seen)
	}
}

func TestCatalogRequiresApplication(t *testing.T) {
	if _, err := runCLI(t, "catalog", "attestations"); err == nil || !strings.Contains(err.Error(), "application id required") {
		t.Fatalf("expected missing application error, got %v", err)
	}
}

func TestConfigSaveValidatesLocally(t *testing.T) {
	var seen []string
	srv := fakeGateway(t, &seen)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"applicationId":"finance-close"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := runCLI(t, "config", "save", bad, "--gateway", srv.URL); err == nil {
		t.Fatalf("expected validation error")
	}
	if len(seen) != 0 {
		t.Fatalf("invalid config must not reach the gateway, got %v", seen)
	}

	good := filepath.Join(dir, "good.json")
	doc := `{"applicationId":"finance-close","workflowInstanceId":"wf-1","stages":[]}`
	if err := os.WriteFile(good, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, "config", "save", good, "--validate-only")
	if err != nil || strings.TrimSpace(out) != "valid" {
		t.Fatalf("validate-only: %q %v", out, err)
	}
	out, err = runCLI(t, "config", "save", good, "--gateway", srv.URL)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(out, `"revision": 1`) {
		t.Fatalf("expected revision in output, got %s", out)
	}
}

func TestConfigDeleteAndPreview(t *testing.T) {
	var seen []string
	srv := fakeGateway(t, &seen)
	if _, err := runCLI(t, "config", "delete", "wf-1", "--gateway", srv.URL, "--app", "finance-close"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err := runCLI(t, "preview", "s3://bucket/file.xlsx", "--gateway", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected preview failure surfaced, got %v", err)
	}
	if !strings.Contains(out, "backend down") {
		t.Fatalf("expected preview body printed, got %s", out)
	}
	if seen[0] != "DELETE /api/v1/workflow-configs/finance-close/wf-1 key=" {
		t.Fatalf("unexpected delete request %v", seen)
	}
}

func TestGatewayFromEnv(t *testing.T) {
	var seen []string
	srv := fakeGateway(t, &seen)
	out := &bytes.Buffer{}
	t.Setenv("STAGEFLOW_GATEWAY", srv.URL)
	t.Setenv("STAGEFLOW_APPLICATION", "finance-close")
	root := newRootCmd(out)
	root.SetArgs([]string{"catalog", "stages", "--json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var stages []catalog.StageTemplate
	if err := json.Unmarshal(out.Bytes(), &stages); err != nil || len(stages) != 2 {
		t.Fatalf("expected json stages, got %s (%v)", out.String(), err)
	}
}
