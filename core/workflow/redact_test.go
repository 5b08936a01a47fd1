package workflow

import (
	"testing"

	"github.com/cordum/stageflow/core/infra/secrets"
)

func TestRedactedMasksSecretRefs(t *testing.T) {
	cfg := &WorkflowConfig{
		ApplicationID:      "app",
		WorkflowInstanceID: "wi",
		Parameters:         []ConfigParameter{{ID: "token", Value: "secret://vault/token"}, {ID: "entity", Value: "US01"}},
		Stages: []ConfigStage{{
			ID: "s1",
			SubStages: []ConfigSubStage{{
				ID:             "a",
				Parameters:     []ConfigParameter{{ID: "p", Value: "secret://vault/p"}},
				DownloadConfig: &FileConfig{FileType: FileTypeDownload, Parameters: []ConfigParameter{{ID: "d", Value: "secret://vault/d"}}},
			}},
		}},
	}
	if got := cfg.SecretRefs(); got != 3 {
		t.Fatalf("expected 3 secret refs, got %d", got)
	}
	red := cfg.Redacted()
	if red.Parameters[0].Value != secrets.Redacted || red.Parameters[1].Value != "US01" {
		t.Fatalf("unexpected global params: %+v", red.Parameters)
	}
	sub := red.Stages[0].SubStages[0]
	if sub.Parameters[0].Value != secrets.Redacted || sub.DownloadConfig.Parameters[0].Value != secrets.Redacted {
		t.Fatalf("sub-stage values not redacted: %+v", sub)
	}
	if cfg.Parameters[0].Value != "secret://vault/token" || cfg.Stages[0].SubStages[0].DownloadConfig.Parameters[0].Value != "secret://vault/d" {
		t.Fatalf("original mutated")
	}
	if red.SecretRefs() != 0 {
		t.Fatalf("redacted copy still holds refs")
	}
}
