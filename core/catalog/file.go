package catalog

import (
	"embed"
	"fmt"
	"os"

	"github.com/cordum/stageflow/core/infra/schema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/catalog.schema.json
var schemaFS embed.FS

var fileSchema = &schema.Lazy{
	ID: "catalog",
	Source: func() ([]byte, error) {
		return schemaFS.ReadFile("schema/catalog.schema.json")
	},
}

// File is the on-disk catalog layout: one document per application.
type File struct {
	Applications []Document `json:"applications" yaml:"applications"`
}

// Parse decodes a YAML (or JSON) catalog file and builds one catalog per application.
func Parse(data []byte) (map[string]*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidCatalog, err)
	}
	if err := fileSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	out := make(map[string]*Catalog, len(file.Applications))
	for _, doc := range file.Applications {
		c, err := New(doc)
		if err != nil {
			return nil, err
		}
		if _, dup := out[c.app.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate application %q", ErrInvalidCatalog, c.app.ID)
		}
		out[c.app.ID] = c
	}
	return out, nil
}

// LoadFile reads and parses a catalog file from disk.
func LoadFile(path string) (map[string]*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}
