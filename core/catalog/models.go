package catalog

// SubStageType distinguishes manual tasks from automated ones.
type SubStageType string

const (
	SubStageManual SubStageType = "manual"
	SubStageAuto   SubStageType = "auto"
)

// Application is the top-level selection that scopes a catalog.
type Application struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []ParameterTemplate `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ParameterTemplate seeds a ConfigParameter.
type ParameterTemplate struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	DataType     string `json:"dataType,omitempty" yaml:"dataType,omitempty"`
	IsRequired   bool   `json:"isRequired" yaml:"isRequired"`
	DefaultValue string `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
}

// AttestationTemplate is a reusable confirmation text.
type AttestationTemplate struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Text       string `json:"text" yaml:"text"`
	IsRequired bool   `json:"isRequired" yaml:"isRequired"`
}

// EmailTemplate is attached to sub-stage templates for notifications.
type EmailTemplate struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}

// FileTemplate seeds an upload or download FileConfig.
type FileTemplate struct {
	AllowedExtensions    []string            `json:"allowedExtensions,omitempty" yaml:"allowedExtensions,omitempty"`
	MaxFileSize          float64             `json:"maxFileSize,omitempty" yaml:"maxFileSize,omitempty"`
	RequireValidation    bool                `json:"requireValidation" yaml:"requireValidation"`
	EmailNotifications   bool                `json:"emailNotifications" yaml:"emailNotifications"`
	Parameters           []ParameterTemplate `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	FileNamingConvention string              `json:"fileNamingConvention,omitempty" yaml:"fileNamingConvention,omitempty"`
	Description          string              `json:"description,omitempty" yaml:"description,omitempty"`
	AllowMultiple        bool                `json:"allowMultiple" yaml:"allowMultiple"`
}

// SubStageTemplate is an immutable task definition inside a stage template.
type SubStageTemplate struct {
	ID                   string                `json:"id" yaml:"id"`
	Name                 string                `json:"name" yaml:"name"`
	Description          string                `json:"description,omitempty" yaml:"description,omitempty"`
	Type                 SubStageType          `json:"type" yaml:"type"`
	Parameters           []ParameterTemplate   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	EmailTemplates       []EmailTemplate       `json:"emailTemplates,omitempty" yaml:"emailTemplates,omitempty"`
	AttestationTemplates []AttestationTemplate `json:"attestationTemplates,omitempty" yaml:"attestationTemplates,omitempty"`
	ExpectedDuration     string                `json:"expectedDuration,omitempty" yaml:"expectedDuration,omitempty"`
	Order                int                   `json:"order" yaml:"order"`
	IsAuto               bool                  `json:"isAuto" yaml:"isAuto"`
	IsAdhoc              bool                  `json:"isAdhoc" yaml:"isAdhoc"`
	IsAlteryx            bool                  `json:"isAlteryx" yaml:"isAlteryx"`
	RequiresAttestation  bool                  `json:"requiresAttestation" yaml:"requiresAttestation"`
	RequiresUpload       bool                  `json:"requiresUpload" yaml:"requiresUpload"`
	RequiresApproval     bool                  `json:"requiresApproval" yaml:"requiresApproval"`
	RequiresDownload     bool                  `json:"requiresDownload" yaml:"requiresDownload"`
	IsActive             bool                  `json:"isActive" yaml:"isActive"`
	UploadConfig         *FileTemplate         `json:"uploadConfig,omitempty" yaml:"uploadConfig,omitempty"`
	DownloadConfig       *FileTemplate         `json:"downloadConfig,omitempty" yaml:"downloadConfig,omitempty"`
}

// StageTemplate is an immutable top-level phase definition.
type StageTemplate struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Order       int                `json:"order" yaml:"order"`
	IsActive    bool               `json:"isActive" yaml:"isActive"`
	SubStages   []SubStageTemplate `json:"subStages" yaml:"subStages"`
}

// Document is the serialized form of one application's template set.
type Document struct {
	Application  Application           `json:"application" yaml:"application"`
	Stages       []StageTemplate       `json:"stages" yaml:"stages"`
	Attestations []AttestationTemplate `json:"attestations,omitempty" yaml:"attestations,omitempty"`
	Parameters   []ParameterTemplate   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func cloneParameters(in []ParameterTemplate) []ParameterTemplate {
	if in == nil {
		return nil
	}
	return append([]ParameterTemplate(nil), in...)
}

func cloneFileTemplate(in *FileTemplate) *FileTemplate {
	if in == nil {
		return nil
	}
	out := *in
	out.AllowedExtensions = append([]string(nil), in.AllowedExtensions...)
	out.Parameters = cloneParameters(in.Parameters)
	return &out
}

// Clone returns a deep copy.
func (t SubStageTemplate) Clone() SubStageTemplate {
	out := t
	out.Parameters = cloneParameters(t.Parameters)
	out.EmailTemplates = append([]EmailTemplate(nil), t.EmailTemplates...)
	out.AttestationTemplates = append([]AttestationTemplate(nil), t.AttestationTemplates...)
	out.UploadConfig = cloneFileTemplate(t.UploadConfig)
	out.DownloadConfig = cloneFileTemplate(t.DownloadConfig)
	return out
}

// Clone returns a deep copy.
func (t StageTemplate) Clone() StageTemplate {
	out := t
	out.SubStages = make([]SubStageTemplate, len(t.SubStages))
	for i, sub := range t.SubStages {
		out.SubStages[i] = sub.Clone()
	}
	return out
}
