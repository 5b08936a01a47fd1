package workflow

import (
	"strings"

	"github.com/cordum/stageflow/core/catalog"
)

// Operation names used in errors, results and metrics.
const (
	OpAddStage              = "add_stage"
	OpRemoveStage           = "remove_stage"
	OpAddSubStage           = "add_sub_stage"
	OpRemoveSubStage        = "remove_sub_stage"
	OpMoveStage             = "move_stage"
	OpMoveSubStage          = "move_sub_stage"
	OpUpdateSubStage        = "update_sub_stage"
	OpUpdateGlobalParameter = "update_global_parameter"
	OpAddDependency         = "add_dependency"
	OpRemoveDependency      = "remove_dependency"
	OpAddAttestation        = "add_attestation"
	OpRemoveAttestation     = "remove_attestation"
	OpAddParameter          = "add_parameter"
	OpRemoveParameter       = "remove_parameter"
)

// ConfigStore holds one authored WorkflowConfig. Every mutation works on a deep
// copy that replaces the current config only on success, followed by order
// renumbering and resequencing. Not safe for concurrent use.
type ConfigStore struct {
	cfg *WorkflowConfig
}

// NewConfigStore starts an empty config seeded with global parameters.
func NewConfigStore(applicationID, workflowInstanceID string, params []ConfigParameter) *ConfigStore {
	if params == nil {
		params = []ConfigParameter{}
	}
	return &ConfigStore{cfg: &WorkflowConfig{
		ApplicationID:      applicationID,
		WorkflowInstanceID: workflowInstanceID,
		Stages:             []ConfigStage{},
		Parameters:         cloneParams(params),
	}}
}

// Draft returns a deep copy of the working config, including file configs
// retained while their flag is off.
func (s *ConfigStore) Draft() *WorkflowConfig {
	return s.cfg.Clone()
}

// Snapshot returns the committed shape of the config.
func (s *ConfigStore) Snapshot() *WorkflowConfig {
	return s.cfg.Committed()
}

func (s *ConfigStore) Stage(stageID string) (ConfigStage, bool) {
	si := findStage(s.cfg.Stages, stageID)
	if si < 0 {
		return ConfigStage{}, false
	}
	return s.cfg.Stages[si].Clone(), true
}

// SubStage returns the draft copy of a sub-stage.
func (s *ConfigStore) SubStage(stageID, subStageID string) (ConfigSubStage, bool) {
	si, ji := findSubStage(s.cfg.Stages, stageID, subStageID)
	if ji < 0 {
		return ConfigSubStage{}, false
	}
	return s.cfg.Stages[si].SubStages[ji].Clone(), true
}

// EligibleTargets resolves positions and delegates to EligibleTargets.
func (s *ConfigStore) EligibleTargets(stageID, subStageID string) ([]DependencyTarget, error) {
	si, ji, err := s.locate("eligible_targets", stageID, subStageID)
	if err != nil {
		return nil, err
	}
	return EligibleTargets(s.cfg.Stages, si, ji), nil
}

func (s *ConfigStore) mutate(fn func(c *WorkflowConfig) error) error {
	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	renumber(next.Stages)
	resequence(next.Stages)
	s.cfg = next
	return nil
}

func (s *ConfigStore) locate(op, stageID, subStageID string) (int, int, error) {
	si, ji := findSubStage(s.cfg.Stages, stageID, subStageID)
	if si < 0 {
		return -1, -1, NewError(KindNotFound, op, "stage %q", stageID)
	}
	if ji < 0 {
		return -1, -1, NewError(KindNotFound, op, "sub-stage %q in stage %q", subStageID, stageID)
	}
	return si, ji, nil
}

// AddStage appends a stage built from tpl with no sub-stages.
func (s *ConfigStore) AddStage(tpl catalog.StageTemplate) (ConfigStage, error) {
	if strings.TrimSpace(tpl.ID) == "" {
		return ConfigStage{}, NewError(KindInvalid, OpAddStage, "stage id required")
	}
	if findStage(s.cfg.Stages, tpl.ID) >= 0 {
		return ConfigStage{}, NewError(KindDuplicateEntity, OpAddStage, "stage %q already added", tpl.ID)
	}
	err := s.mutate(func(c *WorkflowConfig) error {
		maxOrder := 0
		for _, st := range c.Stages {
			if st.Order > maxOrder {
				maxOrder = st.Order
			}
		}
		c.Stages = append(c.Stages, ConfigStage{
			ID:          tpl.ID,
			Name:        tpl.Name,
			Description: tpl.Description,
			Order:       maxOrder + 1,
			IsActive:    tpl.IsActive,
			SubStages:   []ConfigSubStage{},
		})
		return nil
	})
	if err != nil {
		return ConfigStage{}, err
	}
	added, _ := s.Stage(tpl.ID)
	return added, nil
}

// RemoveStage drops a stage with its sub-stages and returns how many
// dependency edges pointing into it were removed.
func (s *ConfigStore) RemoveStage(stageID string) (int, error) {
	si := findStage(s.cfg.Stages, stageID)
	if si < 0 {
		return 0, NewError(KindNotFound, OpRemoveStage, "stage %q", stageID)
	}
	pruned := 0
	err := s.mutate(func(c *WorkflowConfig) error {
		c.Stages = append(c.Stages[:si], c.Stages[si+1:]...)
		pruned = pruneDangling(c.Stages)
		return nil
	})
	return pruned, err
}

// AddSubStage appends a sub-stage built from tpl to stageID.
func (s *ConfigStore) AddSubStage(stageID string, tpl catalog.SubStageTemplate) (ConfigSubStage, error) {
	si := findStage(s.cfg.Stages, stageID)
	if si < 0 {
		return ConfigSubStage{}, NewError(KindNotFound, OpAddSubStage, "stage %q", stageID)
	}
	if strings.TrimSpace(tpl.ID) == "" {
		return ConfigSubStage{}, NewError(KindInvalid, OpAddSubStage, "sub-stage id required")
	}
	if _, ji := findSubStage(s.cfg.Stages, stageID, tpl.ID); ji >= 0 {
		return ConfigSubStage{}, NewError(KindDuplicateEntity, OpAddSubStage, "sub-stage %q already in stage %q", tpl.ID, stageID)
	}
	err := s.mutate(func(c *WorkflowConfig) error {
		maxOrder := 0
		for _, sub := range c.Stages[si].SubStages {
			if sub.Order > maxOrder {
				maxOrder = sub.Order
			}
		}
		sub := SubStageFromTemplate(tpl)
		sub.Order = maxOrder + 1
		c.Stages[si].SubStages = append(c.Stages[si].SubStages, sub)
		return nil
	})
	if err != nil {
		return ConfigSubStage{}, err
	}
	added, _ := s.SubStage(stageID, tpl.ID)
	return added, nil
}

// RemoveSubStage drops a sub-stage and returns how many dependency edges
// pointing at it were removed.
func (s *ConfigStore) RemoveSubStage(stageID, subStageID string) (int, error) {
	si, ji, err := s.locate(OpRemoveSubStage, stageID, subStageID)
	if err != nil {
		return 0, err
	}
	pruned := 0
	err = s.mutate(func(c *WorkflowConfig) error {
		subs := c.Stages[si].SubStages
		c.Stages[si].SubStages = append(subs[:ji], subs[ji+1:]...)
		pruned = pruneDangling(c.Stages)
		return nil
	})
	return pruned, err
}

// MoveStageUp swaps a stage with its predecessor. Returns false at the top.
func (s *ConfigStore) MoveStageUp(stageID string) (bool, error) {
	return s.moveStage(stageID, -1)
}

// MoveStageDown swaps a stage with its successor. Returns false at the bottom.
func (s *ConfigStore) MoveStageDown(stageID string) (bool, error) {
	return s.moveStage(stageID, 1)
}

func (s *ConfigStore) moveStage(stageID string, delta int) (bool, error) {
	si := findStage(s.cfg.Stages, stageID)
	if si < 0 {
		return false, NewError(KindNotFound, OpMoveStage, "stage %q", stageID)
	}
	to := si + delta
	if to < 0 || to >= len(s.cfg.Stages) {
		return false, nil
	}
	err := s.mutate(func(c *WorkflowConfig) error {
		c.Stages[si], c.Stages[to] = c.Stages[to], c.Stages[si]
		return nil
	})
	return err == nil, err
}

func (s *ConfigStore) MoveSubStageUp(stageID, subStageID string) (bool, error) {
	return s.moveSubStage(stageID, subStageID, -1)
}

func (s *ConfigStore) MoveSubStageDown(stageID, subStageID string) (bool, error) {
	return s.moveSubStage(stageID, subStageID, 1)
}

func (s *ConfigStore) moveSubStage(stageID, subStageID string, delta int) (bool, error) {
	si, ji, err := s.locate(OpMoveSubStage, stageID, subStageID)
	if err != nil {
		return false, err
	}
	to := ji + delta
	if to < 0 || to >= len(s.cfg.Stages[si].SubStages) {
		return false, nil
	}
	err = s.mutate(func(c *WorkflowConfig) error {
		subs := c.Stages[si].SubStages
		subs[ji], subs[to] = subs[to], subs[ji]
		return nil
	})
	return err == nil, err
}

// SubStagePatch is a partial sub-stage update. Nil fields are left unchanged;
// a non-nil empty slice clears the list.
type SubStagePatch struct {
	Name                *string             `json:"name,omitempty"`
	Description         *string             `json:"description,omitempty"`
	IsActive            *bool               `json:"isActive,omitempty"`
	IsAuto              *bool               `json:"isAuto,omitempty"`
	IsAdhoc             *bool               `json:"isAdhoc,omitempty"`
	IsAlteryx           *bool               `json:"isAlteryx,omitempty"`
	RequiresAttestation *bool               `json:"requiresAttestation,omitempty"`
	RequiresApproval    *bool               `json:"requiresApproval,omitempty"`
	RequiresUpload      *bool               `json:"requiresUpload,omitempty"`
	RequiresDownload    *bool               `json:"requiresDownload,omitempty"`
	ParameterValues     map[string]string   `json:"parameterValues,omitempty"`
	Parameters          []ConfigParameter   `json:"parameters,omitempty"`
	Attestations        []ConfigAttestation `json:"attestations,omitempty"`
	UploadConfig        *FileConfig         `json:"uploadConfig,omitempty"`
	DownloadConfig      *FileConfig         `json:"downloadConfig,omitempty"`
}

// checkPatch validates p against the current sub-stage without mutating it.
func checkPatch(op string, cur ConfigSubStage, p SubStagePatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return NewError(KindInvalid, op, "name must not be empty")
	}
	params := cur.Parameters
	if p.Parameters != nil {
		if err := checkParameters(op, cur.ID, p.Parameters); err != nil {
			return err
		}
		params = p.Parameters
	}
	for id, val := range p.ParameterValues {
		found := false
		for _, param := range params {
			if param.ID != id {
				continue
			}
			found = true
			if err := CheckValue(param.DataType, val); err != nil {
				return NewError(KindInvalid, op, "parameter %q: %v", id, err)
			}
		}
		if !found {
			return NewError(KindNotFound, op, "parameter %q on sub-stage %q", id, cur.ID)
		}
	}
	if p.Attestations != nil {
		seen := map[string]struct{}{}
		for _, a := range p.Attestations {
			if err := checkStruct(op, a); err != nil {
				return err
			}
			if _, dup := seen[a.ID]; dup {
				return NewError(KindDuplicateEntity, op, "attestation %q listed twice", a.ID)
			}
			seen[a.ID] = struct{}{}
		}
	}
	for _, item := range []struct {
		cfg  *FileConfig
		want FileType
	}{{p.UploadConfig, FileTypeUpload}, {p.DownloadConfig, FileTypeDownload}} {
		if item.cfg == nil {
			continue
		}
		fc := item.cfg.Clone()
		if fc.FileType == "" {
			fc.FileType = item.want
		}
		if fc.FileType != item.want {
			return NewError(KindInvalid, op, "fileType %q where %q expected", fc.FileType, item.want)
		}
		if err := checkStruct(op, fc); err != nil {
			return err
		}
		if err := checkParameters(op, string(item.want)+" config", fc.Parameters); err != nil {
			return err
		}
	}
	return nil
}

func emptyFileConfig(ft FileType) *FileConfig {
	return &FileConfig{
		ValidationSettings: ValidationSettings{AllowedExtensions: []string{}},
		Parameters:         []ConfigParameter{},
		FileType:           ft,
	}
}

func applyPatch(sub *ConfigSubStage, p SubStagePatch) {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&sub.Name, p.Name)
	if p.Description != nil {
		sub.Description = *p.Description
	}
	setBool(&sub.IsActive, p.IsActive)
	setBool(&sub.IsAuto, p.IsAuto)
	setBool(&sub.IsAdhoc, p.IsAdhoc)
	setBool(&sub.IsAlteryx, p.IsAlteryx)
	setBool(&sub.RequiresAttestation, p.RequiresAttestation)
	setBool(&sub.RequiresApproval, p.RequiresApproval)
	setBool(&sub.RequiresUpload, p.RequiresUpload)
	setBool(&sub.RequiresDownload, p.RequiresDownload)
	if p.Parameters != nil {
		sub.Parameters = cloneParams(p.Parameters)
	}
	for i := range sub.Parameters {
		if v, ok := p.ParameterValues[sub.Parameters[i].ID]; ok {
			sub.Parameters[i].Value = v
		}
	}
	if p.Attestations != nil {
		sub.Attestations = append([]ConfigAttestation{}, p.Attestations...)
	}
	if p.UploadConfig != nil {
		sub.UploadConfig = p.UploadConfig.Clone()
		sub.UploadConfig.FileType = FileTypeUpload
	}
	if p.DownloadConfig != nil {
		sub.DownloadConfig = p.DownloadConfig.Clone()
		sub.DownloadConfig.FileType = FileTypeDownload
	}
	if sub.RequiresUpload && sub.UploadConfig == nil {
		sub.UploadConfig = emptyFileConfig(FileTypeUpload)
	}
	if sub.RequiresDownload && sub.DownloadConfig == nil {
		sub.DownloadConfig = emptyFileConfig(FileTypeDownload)
	}
}

// UpdateSubStage applies patch and returns the committed shape of the sub-stage.
func (s *ConfigStore) UpdateSubStage(stageID, subStageID string, patch SubStagePatch) (ConfigSubStage, error) {
	si, ji, err := s.locate(OpUpdateSubStage, stageID, subStageID)
	if err != nil {
		return ConfigSubStage{}, err
	}
	if err := checkPatch(OpUpdateSubStage, s.cfg.Stages[si].SubStages[ji], patch); err != nil {
		return ConfigSubStage{}, err
	}
	err = s.mutate(func(c *WorkflowConfig) error {
		applyPatch(&c.Stages[si].SubStages[ji], patch)
		return nil
	})
	if err != nil {
		return ConfigSubStage{}, err
	}
	return s.cfg.Stages[si].SubStages[ji].committed(), nil
}

// UpdateGlobalParameter sets the value of one workflow-level parameter.
func (s *ConfigStore) UpdateGlobalParameter(parameterID, value string) (ConfigParameter, error) {
	idx := -1
	for i, p := range s.cfg.Parameters {
		if p.ID == parameterID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ConfigParameter{}, NewError(KindNotFound, OpUpdateGlobalParameter, "parameter %q", parameterID)
	}
	if err := CheckValue(s.cfg.Parameters[idx].DataType, value); err != nil {
		return ConfigParameter{}, NewError(KindInvalid, OpUpdateGlobalParameter, "parameter %q: %v", parameterID, err)
	}
	err := s.mutate(func(c *WorkflowConfig) error {
		c.Parameters[idx].Value = value
		return nil
	})
	if err != nil {
		return ConfigParameter{}, err
	}
	return s.cfg.Parameters[idx], nil
}

// AddDependency makes (stageID, subStageID) depend on (depStageID, depSubStageID).
// Checks run in order: endpoints exist, edge is new, no cycle, target is earlier.
func (s *ConfigStore) AddDependency(stageID, subStageID, depStageID, depSubStageID string) (ConfigDependency, error) {
	si, ji, err := s.locate(OpAddDependency, stageID, subStageID)
	if err != nil {
		return ConfigDependency{}, err
	}
	ti, tj, err := s.locate(OpAddDependency, depStageID, depSubStageID)
	if err != nil {
		return ConfigDependency{}, err
	}
	for _, dep := range s.cfg.Stages[si].SubStages[ji].Dependencies {
		if dep.StageID == depStageID && dep.SubStageID == depSubStageID {
			return ConfigDependency{}, NewError(KindDuplicateEntity, OpAddDependency,
				"%s/%s already depends on %s/%s", stageID, subStageID, depStageID, depSubStageID)
		}
	}
	if WouldCreateCycle(s.cfg.Stages, depStageID, depSubStageID, stageID, subStageID) {
		return ConfigDependency{}, NewError(KindCyclicDependency, OpAddDependency,
			"%s/%s already reaches %s/%s", depStageID, depSubStageID, stageID, subStageID)
	}
	if !isEarlier(ti, tj, si, ji) {
		return ConfigDependency{}, NewError(KindForwardDependency, OpAddDependency,
			"%s/%s does not precede %s/%s", depStageID, depSubStageID, stageID, subStageID)
	}
	dep := ConfigDependency{
		StageID:    depStageID,
		SubStageID: depSubStageID,
		Name:       DependencyName(s.cfg.Stages[ti].Name, s.cfg.Stages[ti].SubStages[tj].Name),
	}
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Dependencies = append(sub.Dependencies, dep)
		return nil
	})
	return dep, err
}

// RemoveDependency removes the dependency at index.
func (s *ConfigStore) RemoveDependency(stageID, subStageID string, index int) (ConfigDependency, error) {
	si, ji, err := s.locate(OpRemoveDependency, stageID, subStageID)
	if err != nil {
		return ConfigDependency{}, err
	}
	deps := s.cfg.Stages[si].SubStages[ji].Dependencies
	if index < 0 || index >= len(deps) {
		return ConfigDependency{}, NewError(KindNotFound, OpRemoveDependency, "dependency index %d (have %d)", index, len(deps))
	}
	removed := deps[index]
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Dependencies = append(sub.Dependencies[:index], sub.Dependencies[index+1:]...)
		return nil
	})
	return removed, err
}

// AddAttestation attaches att to a sub-stage.
func (s *ConfigStore) AddAttestation(stageID, subStageID string, att ConfigAttestation) (ConfigAttestation, error) {
	si, ji, err := s.locate(OpAddAttestation, stageID, subStageID)
	if err != nil {
		return ConfigAttestation{}, err
	}
	if err := checkStruct(OpAddAttestation, att); err != nil {
		return ConfigAttestation{}, err
	}
	for _, a := range s.cfg.Stages[si].SubStages[ji].Attestations {
		if a.ID == att.ID {
			return ConfigAttestation{}, NewError(KindDuplicateEntity, OpAddAttestation, "attestation %q already on %q", att.ID, subStageID)
		}
	}
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Attestations = append(sub.Attestations, att)
		return nil
	})
	return att, err
}

func (s *ConfigStore) RemoveAttestation(stageID, subStageID, attestationID string) (ConfigAttestation, error) {
	si, ji, err := s.locate(OpRemoveAttestation, stageID, subStageID)
	if err != nil {
		return ConfigAttestation{}, err
	}
	idx := -1
	for i, a := range s.cfg.Stages[si].SubStages[ji].Attestations {
		if a.ID == attestationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ConfigAttestation{}, NewError(KindNotFound, OpRemoveAttestation, "attestation %q on %q", attestationID, subStageID)
	}
	removed := s.cfg.Stages[si].SubStages[ji].Attestations[idx]
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Attestations = append(sub.Attestations[:idx], sub.Attestations[idx+1:]...)
		return nil
	})
	return removed, err
}

// AddParameter attaches p to a sub-stage.
func (s *ConfigStore) AddParameter(stageID, subStageID string, p ConfigParameter) (ConfigParameter, error) {
	si, ji, err := s.locate(OpAddParameter, stageID, subStageID)
	if err != nil {
		return ConfigParameter{}, err
	}
	if err := checkStruct(OpAddParameter, p); err != nil {
		return ConfigParameter{}, err
	}
	if err := CheckValue(p.DataType, p.Value); err != nil {
		return ConfigParameter{}, NewError(KindInvalid, OpAddParameter, "parameter %q: %v", p.ID, err)
	}
	for _, existing := range s.cfg.Stages[si].SubStages[ji].Parameters {
		if existing.ID == p.ID {
			return ConfigParameter{}, NewError(KindDuplicateEntity, OpAddParameter, "parameter %q already on %q", p.ID, subStageID)
		}
	}
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Parameters = append(sub.Parameters, p)
		return nil
	})
	return p, err
}

func (s *ConfigStore) RemoveParameter(stageID, subStageID, parameterID string) (ConfigParameter, error) {
	si, ji, err := s.locate(OpRemoveParameter, stageID, subStageID)
	if err != nil {
		return ConfigParameter{}, err
	}
	idx := -1
	for i, p := range s.cfg.Stages[si].SubStages[ji].Parameters {
		if p.ID == parameterID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ConfigParameter{}, NewError(KindNotFound, OpRemoveParameter, "parameter %q on %q", parameterID, subStageID)
	}
	removed := s.cfg.Stages[si].SubStages[ji].Parameters[idx]
	err = s.mutate(func(c *WorkflowConfig) error {
		sub := &c.Stages[si].SubStages[ji]
		sub.Parameters = append(sub.Parameters[:idx], sub.Parameters[idx+1:]...)
		return nil
	})
	return removed, err
}

// pruneDangling drops dependencies whose target no longer exists.
func pruneDangling(stages []ConfigStage) int {
	pruned := 0
	for i := range stages {
		for j := range stages[i].SubStages {
			sub := &stages[i].SubStages[j]
			kept := sub.Dependencies[:0]
			for _, dep := range sub.Dependencies {
				if _, tj := findSubStage(stages, dep.StageID, dep.SubStageID); tj >= 0 {
					kept = append(kept, dep)
					continue
				}
				pruned++
			}
			sub.Dependencies = kept
		}
	}
	return pruned
}
