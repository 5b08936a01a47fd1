package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validatorUtil = validator.New()

const dateLayout = "2006-01-02"

// checkStruct runs tag validation and converts failures to an ErrInvalid *Error.
func checkStruct(op string, v any) error {
	if err := validatorUtil.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return NewError(KindInvalid, op, "%s", strings.Join(parts, "; "))
		}
		return NewError(KindInvalid, op, "%v", err)
	}
	return nil
}

// CheckValue verifies value parses as dataType. Empty values are accepted.
func CheckValue(dataType, value string) error {
	if value == "" {
		return nil
	}
	switch dataType {
	case "", DataTypeString:
		return nil
	case DataTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%q is not a number", value)
		}
	case DataTypeBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%q is not a boolean", value)
		}
	case DataTypeDate:
		if _, err := time.Parse(dateLayout, value); err != nil {
			return fmt.Errorf("%q is not a date (YYYY-MM-DD)", value)
		}
	default:
		return fmt.Errorf("unknown data type %q", dataType)
	}
	return nil
}

func checkParameters(op, scope string, params []ConfigParameter) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if err := checkStruct(op, p); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return NewError(KindInvalid, op, "duplicate parameter %q in %s", p.ID, scope)
		}
		seen[p.ID] = struct{}{}
		if err := CheckValue(p.DataType, p.Value); err != nil {
			return NewError(KindInvalid, op, "parameter %q in %s: %v", p.ID, scope, err)
		}
	}
	return nil
}

// Validate performs a full structural check of cfg: contiguous orders and
// sequences, unique ids, well-formed parameters and file configs, resolvable
// dependencies and an acyclic dependency graph.
func Validate(cfg *WorkflowConfig) error {
	const op = "validate"
	if cfg == nil {
		return NewError(KindInvalid, op, "config required")
	}
	if strings.TrimSpace(cfg.ApplicationID) == "" || strings.TrimSpace(cfg.WorkflowInstanceID) == "" {
		return NewError(KindInvalid, op, "applicationId and workflowInstanceId required")
	}
	if err := checkParameters(op, "workflow", cfg.Parameters); err != nil {
		return err
	}
	stageIDs := make(map[string]struct{}, len(cfg.Stages))
	seq := 1
	for i, st := range cfg.Stages {
		if st.ID == "" {
			return NewError(KindInvalid, op, "stage %d has no id", i+1)
		}
		if _, dup := stageIDs[st.ID]; dup {
			return NewError(KindInvalid, op, "duplicate stage %q", st.ID)
		}
		stageIDs[st.ID] = struct{}{}
		if st.Order != i+1 {
			return NewError(KindInvalid, op, "stage %q has order %d at position %d", st.ID, st.Order, i+1)
		}
		subIDs := make(map[string]struct{}, len(st.SubStages))
		for j, sub := range st.SubStages {
			if sub.ID == "" {
				return NewError(KindInvalid, op, "sub-stage %d of %q has no id", j+1, st.ID)
			}
			if _, dup := subIDs[sub.ID]; dup {
				return NewError(KindInvalid, op, "duplicate sub-stage %q in %q", sub.ID, st.ID)
			}
			subIDs[sub.ID] = struct{}{}
			if sub.Order != j+1 {
				return NewError(KindInvalid, op, "sub-stage %q has order %d at position %d", sub.ID, sub.Order, j+1)
			}
			if sub.Sequence != seq {
				return NewError(KindInvalid, op, "sub-stage %q has sequence %d, want %d", sub.ID, sub.Sequence, seq)
			}
			seq++
			scope := st.ID + "/" + sub.ID
			if err := checkParameters(op, scope, sub.Parameters); err != nil {
				return err
			}
			attIDs := make(map[string]struct{}, len(sub.Attestations))
			for _, a := range sub.Attestations {
				if err := checkStruct(op, a); err != nil {
					return err
				}
				if _, dup := attIDs[a.ID]; dup {
					return NewError(KindInvalid, op, "duplicate attestation %q in %s", a.ID, scope)
				}
				attIDs[a.ID] = struct{}{}
			}
			for _, fc := range []*FileConfig{sub.UploadConfig, sub.DownloadConfig} {
				if fc == nil {
					continue
				}
				if err := checkStruct(op, fc); err != nil {
					return err
				}
			}
			if sub.UploadConfig != nil && sub.UploadConfig.FileType != FileTypeUpload {
				return NewError(KindInvalid, op, "uploadConfig of %s has fileType %q", scope, sub.UploadConfig.FileType)
			}
			if sub.DownloadConfig != nil && sub.DownloadConfig.FileType != FileTypeDownload {
				return NewError(KindInvalid, op, "downloadConfig of %s has fileType %q", scope, sub.DownloadConfig.FileType)
			}
		}
	}
	edges := map[SubStageRef]map[SubStageRef]struct{}{}
	for _, st := range cfg.Stages {
		for _, sub := range st.SubStages {
			from := SubStageRef{StageID: st.ID, SubStageID: sub.ID}
			edges[from] = map[SubStageRef]struct{}{}
			for _, dep := range sub.Dependencies {
				to := SubStageRef{StageID: dep.StageID, SubStageID: dep.SubStageID}
				if _, ji := cfg.Find(dep.StageID, dep.SubStageID); ji < 0 {
					return NewError(KindInvalid, op, "%s depends on missing %s", from, to)
				}
				if _, dup := edges[from][to]; dup {
					return NewError(KindInvalid, op, "%s depends on %s twice", from, to)
				}
				edges[from][to] = struct{}{}
			}
		}
	}
	if ref, found := detectCycle(cfg.Stages); found {
		return NewError(KindCyclicDependency, op, "cycle through %s", ref)
	}
	return nil
}
