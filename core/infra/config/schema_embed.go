package config

import "embed"

const stageflowSchemaFile = "schema/stageflow.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
