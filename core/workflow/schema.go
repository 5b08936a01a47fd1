package workflow

import (
	"embed"
	"encoding/json"

	"github.com/cordum/stageflow/core/infra/schema"
)

//go:embed schema/workflow_config.schema.json
var schemaFS embed.FS

var configSchema = &schema.Lazy{
	ID: "workflow-config",
	Source: func() ([]byte, error) {
		return schemaFS.ReadFile("schema/workflow_config.schema.json")
	},
}

// DecodeConfig checks raw against the WorkflowConfig JSON schema, decodes it and
// runs Validate. Every failure is an *Error.
func DecodeConfig(raw []byte) (*WorkflowConfig, error) {
	const op = "decode_config"
	if err := configSchema.Validate(json.RawMessage(raw)); err != nil {
		return nil, NewError(KindInvalid, op, "%v", err)
	}
	var cfg WorkflowConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, NewError(KindInvalid, op, "%v", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
