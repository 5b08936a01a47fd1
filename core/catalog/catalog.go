// Package catalog exposes the read-only stage, sub-stage, attestation and
// parameter templates available to one application.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownApplication = errors.New("unknown application")
	ErrInvalidCatalog     = errors.New("invalid catalog")
)

// Catalog is an immutable template set. All accessors return copies.
type Catalog struct {
	app          Application
	stages       []StageTemplate
	attestations []AttestationTemplate
	parameters   []ParameterTemplate
}

// New validates doc and builds a catalog with stages and sub-stages sorted by order.
func New(doc Document) (*Catalog, error) {
	appID := strings.TrimSpace(doc.Application.ID)
	if appID == "" {
		return nil, fmt.Errorf("%w: application id required", ErrInvalidCatalog)
	}
	stageIDs := make(map[string]struct{}, len(doc.Stages))
	stages := make([]StageTemplate, 0, len(doc.Stages))
	for _, st := range doc.Stages {
		if strings.TrimSpace(st.ID) == "" {
			return nil, fmt.Errorf("%w: stage id required", ErrInvalidCatalog)
		}
		if _, dup := stageIDs[st.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate stage %q", ErrInvalidCatalog, st.ID)
		}
		stageIDs[st.ID] = struct{}{}
		subIDs := make(map[string]struct{}, len(st.SubStages))
		for _, sub := range st.SubStages {
			if strings.TrimSpace(sub.ID) == "" {
				return nil, fmt.Errorf("%w: sub-stage id required in stage %q", ErrInvalidCatalog, st.ID)
			}
			if _, dup := subIDs[sub.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate sub-stage %q in stage %q", ErrInvalidCatalog, sub.ID, st.ID)
			}
			subIDs[sub.ID] = struct{}{}
		}
		clone := st.Clone()
		sort.SliceStable(clone.SubStages, func(i, j int) bool {
			return clone.SubStages[i].Order < clone.SubStages[j].Order
		})
		stages = append(stages, clone)
	}
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })

	app := doc.Application
	app.ID = appID
	app.Parameters = cloneParameters(doc.Application.Parameters)
	return &Catalog{
		app:          app,
		stages:       stages,
		attestations: append([]AttestationTemplate(nil), doc.Attestations...),
		parameters:   cloneParameters(doc.Parameters),
	}, nil
}

// MustNew is New for built-in documents.
func MustNew(doc Document) *Catalog {
	c, err := New(doc)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Application() Application {
	app := c.app
	app.Parameters = cloneParameters(c.app.Parameters)
	return app
}

// ListStages returns every stage template in order.
func (c *Catalog) ListStages() []StageTemplate {
	out := make([]StageTemplate, len(c.stages))
	for i, st := range c.stages {
		out[i] = st.Clone()
	}
	return out
}

func (c *Catalog) ListAttestations() []AttestationTemplate {
	return append([]AttestationTemplate{}, c.attestations...)
}

func (c *Catalog) ListParameters() []ParameterTemplate {
	return append([]ParameterTemplate{}, c.parameters...)
}

func (c *Catalog) Stage(id string) (StageTemplate, bool) {
	for _, st := range c.stages {
		if st.ID == id {
			return st.Clone(), true
		}
	}
	return StageTemplate{}, false
}

func (c *Catalog) SubStage(stageID, subStageID string) (SubStageTemplate, bool) {
	for _, st := range c.stages {
		if st.ID != stageID {
			continue
		}
		for _, sub := range st.SubStages {
			if sub.ID == subStageID {
				return sub.Clone(), true
			}
		}
	}
	return SubStageTemplate{}, false
}

func (c *Catalog) Attestation(id string) (AttestationTemplate, bool) {
	for _, a := range c.attestations {
		if a.ID == id {
			return a, true
		}
	}
	return AttestationTemplate{}, false
}

func (c *Catalog) Parameter(id string) (ParameterTemplate, bool) {
	for _, p := range c.parameters {
		if p.ID == id {
			return p, true
		}
	}
	return ParameterTemplate{}, false
}

// Document returns the catalog in serializable form.
func (c *Catalog) Document() Document {
	return Document{
		Application:  c.Application(),
		Stages:       c.ListStages(),
		Attestations: c.ListAttestations(),
		Parameters:   c.ListParameters(),
	}
}
