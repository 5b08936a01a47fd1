package workflow

import (
	"time"

	"github.com/cordum/stageflow/core/catalog"
)

// FileType distinguishes the two file configs a sub-stage can carry.
type FileType string

const (
	FileTypeUpload   FileType = "upload"
	FileTypeDownload FileType = "download"
)

// Parameter data types accepted on ConfigParameter.
const (
	DataTypeString  = "string"
	DataTypeNumber  = "number"
	DataTypeBoolean = "boolean"
	DataTypeDate    = "date"
)

// ConfigParameter is a parameter with an authored value.
type ConfigParameter struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	DataType   string `json:"dataType,omitempty" validate:"omitempty,oneof=string number boolean date"`
	IsRequired bool   `json:"isRequired"`
}

// ConfigAttestation is an attestation attached to a sub-stage.
type ConfigAttestation struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	IsRequired bool   `json:"isRequired"`
}

// ValidationSettings constrain files accepted by a FileConfig.
type ValidationSettings struct {
	AllowedExtensions []string `json:"allowedExtensions"`
	MaxFileSize       float64  `json:"maxFileSize" validate:"gte=0"` // MB
	RequireValidation bool     `json:"requireValidation"`
}

// FileConfig describes an upload or download attached to a sub-stage.
type FileConfig struct {
	ValidationSettings   ValidationSettings `json:"validationSettings"`
	EmailNotifications   bool               `json:"emailNotifications"`
	Parameters           []ConfigParameter  `json:"parameters" validate:"dive"`
	FileNamingConvention string             `json:"fileNamingConvention"`
	Description          string             `json:"description"`
	AllowMultiple        bool               `json:"allowMultiple"`
	FileType             FileType           `json:"fileType" validate:"required,oneof=upload download"`
}

// ConfigDependency points at an earlier sub-stage that must complete first.
type ConfigDependency struct {
	StageID    string `json:"stageId"`
	SubStageID string `json:"subStageId"`
	Name       string `json:"name"`
}

// ConfigSubStage is an authored task inside a ConfigStage.
type ConfigSubStage struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description"`
	Type                catalog.SubStageType `json:"type"`
	Order               int                  `json:"order"`
	Sequence            int                  `json:"sequence"`
	Parameters          []ConfigParameter    `json:"parameters"`
	Dependencies        []ConfigDependency   `json:"dependencies"`
	IsActive            bool                 `json:"isActive"`
	IsAuto              bool                 `json:"isAuto"`
	IsAdhoc             bool                 `json:"isAdhoc"`
	IsAlteryx           bool                 `json:"isAlteryx"`
	RequiresAttestation bool                 `json:"requiresAttestation"`
	RequiresApproval    bool                 `json:"requiresApproval"`
	RequiresUpload      bool                 `json:"requiresUpload"`
	RequiresDownload    bool                 `json:"requiresDownload"`
	Attestations        []ConfigAttestation  `json:"attestations"`
	UploadConfig        *FileConfig          `json:"uploadConfig,omitempty"`
	DownloadConfig      *FileConfig          `json:"downloadConfig,omitempty"`
}

// ConfigStage is an authored top-level phase.
type ConfigStage struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Order       int              `json:"order"`
	IsActive    bool             `json:"isActive"`
	SubStages   []ConfigSubStage `json:"subStages"`
}

// WorkflowConfig is the root of an authored workflow instance.
type WorkflowConfig struct {
	ApplicationID      string            `json:"applicationId"`
	WorkflowInstanceID string            `json:"workflowInstanceId"`
	Stages             []ConfigStage     `json:"stages"`
	Parameters         []ConfigParameter `json:"parameters"`

	Revision  int64     `json:"revision,omitempty"`
	SavedBy   string    `json:"savedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// SubStageRef addresses a sub-stage by its stage and sub-stage ids.
type SubStageRef struct {
	StageID    string `json:"stageId"`
	SubStageID string `json:"subStageId"`
}

// cloneSlice copies in, keeping nil and empty distinct so JSON output is stable.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append(make([]T, 0, len(in)), in...)
}

func cloneParams(in []ConfigParameter) []ConfigParameter {
	return cloneSlice(in)
}

// Clone returns a deep copy.
func (f *FileConfig) Clone() *FileConfig {
	if f == nil {
		return nil
	}
	out := *f
	out.ValidationSettings.AllowedExtensions = cloneSlice(f.ValidationSettings.AllowedExtensions)
	out.Parameters = cloneParams(f.Parameters)
	return &out
}

// Clone returns a deep copy.
func (s ConfigSubStage) Clone() ConfigSubStage {
	out := s
	out.Parameters = cloneParams(s.Parameters)
	out.Dependencies = cloneSlice(s.Dependencies)
	out.Attestations = cloneSlice(s.Attestations)
	out.UploadConfig = s.UploadConfig.Clone()
	out.DownloadConfig = s.DownloadConfig.Clone()
	return out
}

// Clone returns a deep copy.
func (s ConfigStage) Clone() ConfigStage {
	out := s
	if s.SubStages == nil {
		return out
	}
	out.SubStages = make([]ConfigSubStage, len(s.SubStages))
	for i, sub := range s.SubStages {
		out.SubStages[i] = sub.Clone()
	}
	return out
}

func cloneStages(in []ConfigStage) []ConfigStage {
	if in == nil {
		return nil
	}
	out := make([]ConfigStage, len(in))
	for i, st := range in {
		out[i] = st.Clone()
	}
	return out
}

// Clone returns a deep copy.
func (c *WorkflowConfig) Clone() *WorkflowConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Stages = cloneStages(c.Stages)
	out.Parameters = cloneParams(c.Parameters)
	return &out
}

// committed drops file configs whose flag is off.
func (s ConfigSubStage) committed() ConfigSubStage {
	out := s.Clone()
	if !out.RequiresUpload {
		out.UploadConfig = nil
	}
	if !out.RequiresDownload {
		out.DownloadConfig = nil
	}
	return out
}

// Committed returns the persisted shape of c.
func (c *WorkflowConfig) Committed() *WorkflowConfig {
	out := c.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Stages {
		for j := range out.Stages[i].SubStages {
			out.Stages[i].SubStages[j] = out.Stages[i].SubStages[j].committed()
		}
	}
	return out
}

// Find returns the indexes of a stage and sub-stage, -1 when absent.
func (c *WorkflowConfig) Find(stageID, subStageID string) (int, int) {
	return findSubStage(c.Stages, stageID, subStageID)
}

func findStage(stages []ConfigStage, stageID string) int {
	for i := range stages {
		if stages[i].ID == stageID {
			return i
		}
	}
	return -1
}

func findSubStage(stages []ConfigStage, stageID, subStageID string) (int, int) {
	si := findStage(stages, stageID)
	if si < 0 {
		return -1, -1
	}
	for j := range stages[si].SubStages {
		if stages[si].SubStages[j].ID == subStageID {
			return si, j
		}
	}
	return si, -1
}

// ParametersFromTemplates seeds config parameters from templates, value from the default.
func ParametersFromTemplates(tpls []catalog.ParameterTemplate) []ConfigParameter {
	out := make([]ConfigParameter, 0, len(tpls))
	for _, p := range tpls {
		out = append(out, ConfigParameter{
			ID:         p.ID,
			Name:       p.Name,
			Value:      p.DefaultValue,
			DataType:   p.DataType,
			IsRequired: p.IsRequired,
		})
	}
	return out
}

func clearedParameters(tpls []catalog.ParameterTemplate) []ConfigParameter {
	out := ParametersFromTemplates(tpls)
	for i := range out {
		out[i].Value = ""
	}
	return out
}

func fileConfigFromTemplate(tpl *catalog.FileTemplate, ft FileType) *FileConfig {
	if tpl == nil {
		return nil
	}
	return &FileConfig{
		ValidationSettings: ValidationSettings{
			AllowedExtensions: append([]string{}, tpl.AllowedExtensions...),
			MaxFileSize:       tpl.MaxFileSize,
			RequireValidation: tpl.RequireValidation,
		},
		EmailNotifications:   tpl.EmailNotifications,
		Parameters:           clearedParameters(tpl.Parameters),
		FileNamingConvention: tpl.FileNamingConvention,
		Description:          tpl.Description,
		AllowMultiple:        tpl.AllowMultiple,
		FileType:             ft,
	}
}

// SubStageFromTemplate builds a config sub-stage with template values cleared.
// Order, Sequence and Dependencies are assigned by the store.
func SubStageFromTemplate(tpl catalog.SubStageTemplate) ConfigSubStage {
	atts := make([]ConfigAttestation, 0, len(tpl.AttestationTemplates))
	for _, a := range tpl.AttestationTemplates {
		atts = append(atts, ConfigAttestation{ID: a.ID, Name: a.Name, Text: a.Text, IsRequired: a.IsRequired})
	}
	return ConfigSubStage{
		ID:                  tpl.ID,
		Name:                tpl.Name,
		Description:         tpl.Description,
		Type:                tpl.Type,
		Parameters:          clearedParameters(tpl.Parameters),
		Dependencies:        []ConfigDependency{},
		IsActive:            tpl.IsActive,
		IsAuto:              tpl.IsAuto,
		IsAdhoc:             tpl.IsAdhoc,
		IsAlteryx:           tpl.IsAlteryx,
		RequiresAttestation: tpl.RequiresAttestation,
		RequiresApproval:    tpl.RequiresApproval,
		RequiresUpload:      tpl.RequiresUpload,
		RequiresDownload:    tpl.RequiresDownload,
		Attestations:        atts,
		UploadConfig:        fileConfigFromTemplate(tpl.UploadConfig, FileTypeUpload),
		DownloadConfig:      fileConfigFromTemplate(tpl.DownloadConfig, FileTypeDownload),
	}
}
