package workflow

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/cordum/stageflow/core/catalog"
)

func scenarioTemplates() (catalog.StageTemplate, catalog.StageTemplate) {
	dc := catalog.StageTemplate{
		ID:    "Data Collection",
		Name:  "Data Collection",
		Order: 1,
		SubStages: []catalog.SubStageTemplate{
			{ID: "A", Name: "A", Type: catalog.SubStageManual, Order: 1},
			{ID: "B", Name: "B", Type: catalog.SubStageManual, Order: 2},
		},
	}
	review := catalog.StageTemplate{
		ID:        "Review",
		Name:      "Review",
		Order:     2,
		SubStages: []catalog.SubStageTemplate{{ID: "C", Name: "C", Type: catalog.SubStageAuto, Order: 1}},
	}
	return dc, review
}

func mustSub(t *testing.T, s *ConfigStore, stageID, subID string) ConfigSubStage {
	t.Helper()
	sub, ok := s.SubStage(stageID, subID)
	if !ok {
		t.Fatalf("sub-stage %s/%s missing", stageID, subID)
	}
	return sub
}

// buildScenario runs scenarios 1-3: two stages, three sub-stages and C -> B.
func buildScenario(t *testing.T) *ConfigStore {
	t.Helper()
	dc, review := scenarioTemplates()
	s := NewConfigStore("app", "wi-1", nil)
	if _, err := s.AddStage(dc); err != nil {
		t.Fatalf("add stage: %v", err)
	}
	for _, sub := range dc.SubStages {
		if _, err := s.AddSubStage(dc.ID, sub); err != nil {
			t.Fatalf("add sub-stage %s: %v", sub.ID, err)
		}
	}
	if _, err := s.AddStage(review); err != nil {
		t.Fatalf("add stage: %v", err)
	}
	if _, err := s.AddSubStage(review.ID, review.SubStages[0]); err != nil {
		t.Fatalf("add sub-stage C: %v", err)
	}
	if _, err := s.AddDependency("Review", "C", "Data Collection", "B"); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	return s
}

func TestScenarioAddStagesAndSubStages(t *testing.T) {
	s := buildScenario(t)
	st, _ := s.Stage("Data Collection")
	if st.Order != 1 {
		t.Fatalf("expected stage order 1, got %d", st.Order)
	}
	a, b := mustSub(t, s, "Data Collection", "A"), mustSub(t, s, "Data Collection", "B")
	if a.Order != 1 || a.Sequence != 1 || b.Order != 2 || b.Sequence != 2 {
		t.Fatalf("unexpected A/B numbering: %+v %+v", a, b)
	}
	c := mustSub(t, s, "Review", "C")
	if c.Order != 1 || c.Sequence != 3 {
		t.Fatalf("unexpected C numbering: order=%d seq=%d", c.Order, c.Sequence)
	}
}

func TestScenarioDependencyAndCycle(t *testing.T) {
	s := buildScenario(t)
	c := mustSub(t, s, "Review", "C")
	want := []ConfigDependency{{StageID: "Data Collection", SubStageID: "B", Name: "Data Collection - B"}}
	if !reflect.DeepEqual(c.Dependencies, want) {
		t.Fatalf("unexpected dependencies %+v", c.Dependencies)
	}

	targets, err := s.EligibleTargets("Review", "C")
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(targets) != 1 || targets[0].StageID != "Data Collection" || len(targets[0].SubStages) != 2 {
		t.Fatalf("unexpected targets %+v", targets)
	}

	if !WouldCreateCycle(s.Draft().Stages, "Review", "C", "Data Collection", "B") {
		t.Fatalf("expected cycle B -> C")
	}
	before := mustSub(t, s, "Data Collection", "B")
	_, err = s.AddDependency("Data Collection", "B", "Review", "C")
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if after := mustSub(t, s, "Data Collection", "B"); !reflect.DeepEqual(before, after) {
		t.Fatalf("B changed after rejected dependency")
	}
}

func TestScenarioMoveStageResequences(t *testing.T) {
	s := buildScenario(t)
	moved, err := s.MoveStageUp("Review")
	if err != nil || !moved {
		t.Fatalf("move up: %v %v", moved, err)
	}
	cfg := s.Draft()
	if cfg.Stages[0].ID != "Review" || cfg.Stages[0].Order != 1 || cfg.Stages[1].Order != 2 {
		t.Fatalf("unexpected stage order %+v", cfg.Stages)
	}
	c, a, b := mustSub(t, s, "Review", "C"), mustSub(t, s, "Data Collection", "A"), mustSub(t, s, "Data Collection", "B")
	if c.Sequence != 1 || a.Sequence != 2 || b.Sequence != 3 {
		t.Fatalf("unexpected sequences C=%d A=%d B=%d", c.Sequence, a.Sequence, b.Sequence)
	}
	if moved, _ := s.MoveStageUp("Review"); moved {
		t.Fatalf("expected no-op at top")
	}
	if err := Validate(s.Snapshot()); err != nil {
		t.Fatalf("config with forward edge after move should still validate: %v", err)
	}
}

func TestScenarioRemoveStageCascades(t *testing.T) {
	s := buildScenario(t)
	pruned, err := s.RemoveStage("Data Collection")
	if err != nil {
		t.Fatalf("remove stage: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 dangling dependency pruned, got %d", pruned)
	}
	c := mustSub(t, s, "Review", "C")
	if len(c.Dependencies) != 0 || c.Sequence != 1 {
		t.Fatalf("unexpected C after removal %+v", c)
	}
	if _, err := s.RemoveStage("Data Collection"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddStageDuplicateIsNoop(t *testing.T) {
	dc, _ := scenarioTemplates()
	s := NewConfigStore("app", "wi", nil)
	if _, err := s.AddStage(dc); err != nil {
		t.Fatalf("add: %v", err)
	}
	before := s.Draft()
	_, err := s.AddStage(dc)
	if !errors.Is(err, ErrDuplicateEntity) || KindOf(err) != KindDuplicateEntity {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Draft()) {
		t.Fatalf("state changed after duplicate add")
	}
}

func TestAddSubStageErrors(t *testing.T) {
	dc, _ := scenarioTemplates()
	s := NewConfigStore("app", "wi", nil)
	if _, err := s.AddSubStage("missing", dc.SubStages[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, _ = s.AddStage(dc)
	_, _ = s.AddSubStage(dc.ID, dc.SubStages[0])
	if _, err := s.AddSubStage(dc.ID, dc.SubStages[0]); !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestAddSubStageCopiesTemplate(t *testing.T) {
	cat := catalog.Sample()
	tpl, _ := cat.Stage("data-collection")
	s := NewConfigStore(catalog.SampleApplicationID, "wi", nil)
	_, _ = s.AddStage(tpl)
	sub, err := s.AddSubStage(tpl.ID, tpl.SubStages[1])
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sub.UploadConfig == nil || sub.UploadConfig.FileType != FileTypeUpload || sub.UploadConfig.ValidationSettings.MaxFileSize != 10 {
		t.Fatalf("upload config not copied: %+v", sub.UploadConfig)
	}
	if len(sub.Attestations) != 1 || sub.Attestations[0].ID != "att-accuracy" {
		t.Fatalf("attestations not copied: %+v", sub.Attestations)
	}
	if len(sub.Parameters) != 1 || sub.Parameters[0].Value != "" {
		t.Fatalf("parameters should be copied with values cleared: %+v", sub.Parameters)
	}

	// editing the copy must not reach the template
	sub.UploadConfig.ValidationSettings.AllowedExtensions[0] = ".exe"
	again, _ := cat.SubStage("data-collection", "upload-adjustments")
	if again.UploadConfig.AllowedExtensions[0] != ".xlsx" {
		t.Fatalf("template mutated through config")
	}
}

func TestMoveSubStage(t *testing.T) {
	s := buildScenario(t)
	if moved, err := s.MoveSubStageDown("Data Collection", "A"); err != nil || !moved {
		t.Fatalf("move down: %v %v", moved, err)
	}
	a, b := mustSub(t, s, "Data Collection", "A"), mustSub(t, s, "Data Collection", "B")
	if a.Order != 2 || a.Sequence != 2 || b.Order != 1 || b.Sequence != 1 {
		t.Fatalf("unexpected after move A=%+v B=%+v", a, b)
	}
	if moved, _ := s.MoveSubStageDown("Data Collection", "A"); moved {
		t.Fatalf("expected no-op at bottom")
	}
	if _, err := s.MoveSubStageUp("Data Collection", "Z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveSubStagePrunesDependencies(t *testing.T) {
	s := buildScenario(t)
	pruned, err := s.RemoveSubStage("Data Collection", "B")
	if err != nil || pruned != 1 {
		t.Fatalf("remove: pruned=%d err=%v", pruned, err)
	}
	if c := mustSub(t, s, "Review", "C"); c.Sequence != 2 || len(c.Dependencies) != 0 {
		t.Fatalf("unexpected C %+v", c)
	}
}

func TestAddDependencyErrors(t *testing.T) {
	s := buildScenario(t)
	if _, err := s.AddDependency("Review", "C", "Data Collection", "B"); !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := s.AddDependency("Review", "C", "Data Collection", "Z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.AddDependency("Review", "C", "Review", "C"); !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected self edge rejected as cycle, got %v", err)
	}
	if _, err := s.AddDependency("Data Collection", "A", "Data Collection", "B"); !errors.Is(err, ErrForwardDependency) {
		t.Fatalf("expected forward dependency, got %v", err)
	}
	if _, err := s.AddDependency("Data Collection", "B", "Data Collection", "A"); err != nil {
		t.Fatalf("expected backward edge accepted, got %v", err)
	}
}

func TestRemoveDependency(t *testing.T) {
	s := buildScenario(t)
	if _, err := s.RemoveDependency("Review", "C", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected out of range, got %v", err)
	}
	dep, err := s.RemoveDependency("Review", "C", 0)
	if err != nil || dep.SubStageID != "B" {
		t.Fatalf("remove: %+v %v", dep, err)
	}
	if c := mustSub(t, s, "Review", "C"); len(c.Dependencies) != 0 {
		t.Fatalf("dependency not removed")
	}
}

func TestUpdateSubStageFileConfigProjection(t *testing.T) {
	s := buildScenario(t)
	upload := &FileConfig{ValidationSettings: ValidationSettings{AllowedExtensions: []string{".csv"}, MaxFileSize: 2}}
	on := true
	sub, err := s.UpdateSubStage("Data Collection", "A", SubStagePatch{RequiresUpload: &on, UploadConfig: upload})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sub.UploadConfig == nil || sub.UploadConfig.FileType != FileTypeUpload {
		t.Fatalf("expected upload config, got %+v", sub.UploadConfig)
	}

	off := false
	sub, err = s.UpdateSubStage("Data Collection", "A", SubStagePatch{RequiresUpload: &off})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sub.UploadConfig != nil {
		t.Fatalf("committed shape must drop upload config when not required")
	}
	draft := mustSub(t, s, "Data Collection", "A")
	if draft.UploadConfig == nil || draft.UploadConfig.ValidationSettings.MaxFileSize != 2 {
		t.Fatalf("draft should retain upload config edits: %+v", draft.UploadConfig)
	}
	si, ji := s.Snapshot().Find("Data Collection", "A")
	if s.Snapshot().Stages[si].SubStages[ji].UploadConfig != nil {
		t.Fatalf("snapshot must drop upload config")
	}

	sub, _ = s.UpdateSubStage("Data Collection", "A", SubStagePatch{RequiresUpload: &on})
	if sub.UploadConfig == nil || sub.UploadConfig.ValidationSettings.MaxFileSize != 2 {
		t.Fatalf("re-enabling should restore retained config: %+v", sub.UploadConfig)
	}

	sub, _ = s.UpdateSubStage("Data Collection", "B", SubStagePatch{RequiresDownload: &on})
	if sub.DownloadConfig == nil || sub.DownloadConfig.FileType != FileTypeDownload {
		t.Fatalf("expected default download config, got %+v", sub.DownloadConfig)
	}
}

func TestUpdateSubStageValidation(t *testing.T) {
	cat := catalog.Sample()
	tpl, _ := cat.Stage("review")
	s := NewConfigStore(catalog.SampleApplicationID, "wi", nil)
	_, _ = s.AddStage(tpl)
	_, _ = s.AddSubStage("review", tpl.SubStages[0])
	before := s.Draft()

	blank := "  "
	cases := []SubStagePatch{
		{Name: &blank},
		{ParameterValues: map[string]string{"param-threshold": "abc"}},
		{UploadConfig: &FileConfig{ValidationSettings: ValidationSettings{MaxFileSize: -1}}},
		{DownloadConfig: &FileConfig{FileType: FileTypeUpload}},
		{Parameters: []ConfigParameter{{ID: "x", DataType: "colour"}}},
		{Attestations: []ConfigAttestation{{ID: ""}}},
	}
	for i, patch := range cases {
		if _, err := s.UpdateSubStage("review", "variance-review", patch); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d: expected invalid, got %v", i, err)
		}
	}
	if _, err := s.UpdateSubStage("review", "variance-review", SubStagePatch{ParameterValues: map[string]string{"nope": "1"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown parameter not found, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Draft()) {
		t.Fatalf("rejected patches changed state")
	}

	name := "Variance Review (Q4)"
	sub, err := s.UpdateSubStage("review", "variance-review", SubStagePatch{
		Name:            &name,
		ParameterValues: map[string]string{"param-threshold": "7.5"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sub.Name != name || sub.Parameters[0].Value != "7.5" {
		t.Fatalf("unexpected sub-stage %+v", sub)
	}
}

func TestUpdateGlobalParameter(t *testing.T) {
	params := ParametersFromTemplates(catalog.Sample().Application().Parameters)
	s := NewConfigStore("app", "wi", params)
	p, err := s.UpdateGlobalParameter("reportingDate", "2026-09-30")
	if err != nil || p.Value != "2026-09-30" {
		t.Fatalf("update: %+v %v", p, err)
	}
	if _, err := s.UpdateGlobalParameter("reportingDate", "30/09/2026"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid date, got %v", err)
	}
	if _, err := s.UpdateGlobalParameter("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(s.Draft().Stages) != 0 {
		t.Fatalf("global parameter update touched stages")
	}
}

func TestAttestationsAndParameters(t *testing.T) {
	s := buildScenario(t)
	att := ConfigAttestation{ID: "att-1", Name: "Check", Text: "Checked", IsRequired: true}
	if _, err := s.AddAttestation("Review", "C", att); err != nil {
		t.Fatalf("add attestation: %v", err)
	}
	if _, err := s.AddAttestation("Review", "C", att); !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("expected duplicate attestation, got %v", err)
	}
	if _, err := s.RemoveAttestation("Review", "C", "att-1"); err != nil {
		t.Fatalf("remove attestation: %v", err)
	}
	if _, err := s.RemoveAttestation("Review", "C", "att-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	param := ConfigParameter{ID: "p1", Name: "Limit", DataType: DataTypeNumber, Value: "10"}
	if _, err := s.AddParameter("Review", "C", param); err != nil {
		t.Fatalf("add parameter: %v", err)
	}
	if _, err := s.AddParameter("Review", "C", param); !errors.Is(err, ErrDuplicateEntity) {
		t.Fatalf("expected duplicate parameter, got %v", err)
	}
	if _, err := s.AddParameter("Review", "C", ConfigParameter{ID: "p2", DataType: DataTypeBoolean, Value: "maybe"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if _, err := s.RemoveParameter("Review", "C", "p1"); err != nil {
		t.Fatalf("remove parameter: %v", err)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := buildScenario(t)
	snap := s.Snapshot()
	snap.Stages[0].SubStages[0].Name = "mutated"
	snap.Stages[1].SubStages[0].Dependencies[0].Name = "mutated"
	if mustSub(t, s, "Data Collection", "A").Name != "A" {
		t.Fatalf("snapshot aliases store state")
	}
	if mustSub(t, s, "Review", "C").Dependencies[0].Name != "Data Collection - B" {
		t.Fatalf("snapshot aliases dependencies")
	}
}

// checkInvariants asserts order contiguity, sequence contiguity and acyclicity.
func checkInvariants(t *testing.T, step int, cfg *WorkflowConfig) {
	t.Helper()
	seq := 1
	for i, st := range cfg.Stages {
		if st.Order != i+1 {
			t.Fatalf("step %d: stage %s order %d at %d", step, st.ID, st.Order, i+1)
		}
		for j, sub := range st.SubStages {
			if sub.Order != j+1 {
				t.Fatalf("step %d: sub-stage %s order %d at %d", step, sub.ID, sub.Order, j+1)
			}
			if sub.Sequence != seq {
				t.Fatalf("step %d: sub-stage %s sequence %d want %d", step, sub.ID, sub.Sequence, seq)
			}
			seq++
			for _, target := range EligibleTargets(cfg.Stages, i, j) {
				ti := findStage(cfg.Stages, target.StageID)
				for _, ts := range target.SubStages {
					_, tj := findSubStage(cfg.Stages, target.StageID, ts.ID)
					if !isEarlier(ti, tj, i, j) {
						t.Fatalf("step %d: eligible target %s/%s not earlier than %s/%s", step, target.StageID, ts.ID, st.ID, sub.ID)
					}
				}
			}
		}
	}
	if ref, found := detectCycle(cfg.Stages); found {
		t.Fatalf("step %d: cycle through %s", step, ref)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("step %d: validate: %v", step, err)
	}
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	cat := catalog.Sample()
	stages := cat.ListStages()
	rng := rand.New(rand.NewSource(42))
	s := NewConfigStore(catalog.SampleApplicationID, "wi", nil)

	pick := func() (string, string, bool) {
		cfg := s.Draft()
		if len(cfg.Stages) == 0 {
			return "", "", false
		}
		st := cfg.Stages[rng.Intn(len(cfg.Stages))]
		if len(st.SubStages) == 0 {
			return st.ID, "", true
		}
		return st.ID, st.SubStages[rng.Intn(len(st.SubStages))].ID, true
	}

	for step := 0; step < 500; step++ {
		switch rng.Intn(8) {
		case 0, 1:
			_, _ = s.AddStage(stages[rng.Intn(len(stages))])
		case 2, 3:
			if stageID, _, ok := pick(); ok {
				tpl, _ := cat.Stage(stageID)
				_, _ = s.AddSubStage(stageID, tpl.SubStages[rng.Intn(len(tpl.SubStages))])
			}
		case 4:
			if stageID, subID, ok := pick(); ok && subID != "" {
				_, _ = s.RemoveSubStage(stageID, subID)
			} else if ok && rng.Intn(3) == 0 {
				_, _ = s.RemoveStage(stageID)
			}
		case 5:
			if stageID, _, ok := pick(); ok {
				if rng.Intn(2) == 0 {
					_, _ = s.MoveStageUp(stageID)
				} else {
					_, _ = s.MoveStageDown(stageID)
				}
			}
		case 6:
			if stageID, subID, ok := pick(); ok && subID != "" {
				_, _ = s.MoveSubStageUp(stageID, subID)
			}
		case 7:
			a1, b1, ok1 := pick()
			a2, b2, ok2 := pick()
			if ok1 && ok2 && b1 != "" && b2 != "" {
				_, _ = s.AddDependency(a1, b1, a2, b2)
			}
		}
		checkInvariants(t, step, s.Draft())
	}
}
