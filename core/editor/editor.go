// Package editor drives one authoring session: it owns the selected application,
// the workflow config being built and the sub-stage selected for editing, and it
// is the only caller of the workflow.ConfigStore mutators.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cordum/stageflow/core/catalog"
	"github.com/cordum/stageflow/core/infra/logging"
	"github.com/cordum/stageflow/core/infra/metrics"
	"github.com/cordum/stageflow/core/workflow"
	"github.com/google/uuid"
)

// Session-level operation names.
const (
	OpSelectApplication      = "select_application"
	OpSelectWorkflowInstance = "select_workflow_instance"
	OpSelectSubStage         = "select_sub_stage"
	OpClearSelection         = "clear_selection"
	OpUpdateSelected         = "update_selected"
	OpSave                   = "save"
)

// Direction for move operations.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Saver persists a committed workflow config and updates its revision fields.
type Saver interface {
	Save(ctx context.Context, cfg *workflow.WorkflowConfig) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, cfg *workflow.WorkflowConfig) error

func (f SaverFunc) Save(ctx context.Context, cfg *workflow.WorkflowConfig) error { return f(ctx, cfg) }

// Result describes an accepted operation.
type Result struct {
	Op          string                      `json:"op"`
	Message     string                      `json:"message"`
	Changed     bool                        `json:"changed"`
	Stage       *workflow.ConfigStage       `json:"stage,omitempty"`
	SubStage    *workflow.ConfigSubStage    `json:"subStage,omitempty"`
	Dependency  *workflow.ConfigDependency  `json:"dependency,omitempty"`
	Parameter   *workflow.ConfigParameter   `json:"parameter,omitempty"`
	Attestation *workflow.ConfigAttestation `json:"attestation,omitempty"`
	Config      *workflow.WorkflowConfig    `json:"config,omitempty"`
	Pruned      int                         `json:"pruned,omitempty"`
}

// Selection is the sub-stage currently selected for editing.
type Selection struct {
	StageID  string                  `json:"stageId"`
	SubStage workflow.ConfigSubStage `json:"subStage"`
}

// State is a read-only view of a session.
type State struct {
	ID                 string                   `json:"id"`
	ApplicationID      string                   `json:"applicationId,omitempty"`
	WorkflowInstanceID string                   `json:"workflowInstanceId,omitempty"`
	Config             *workflow.WorkflowConfig `json:"config,omitempty"`
	Selected           *Selection               `json:"selected,omitempty"`
	LastUsed           time.Time                `json:"lastUsed"`
}

// AttestationInput adds an attestation from a catalog template or as a custom entry.
type AttestationInput struct {
	TemplateID string `json:"templateId,omitempty"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	Text       string `json:"text,omitempty"`
	IsRequired *bool  `json:"isRequired,omitempty"`
}

// ParameterInput adds a parameter from a catalog template or as a custom entry.
type ParameterInput struct {
	TemplateID string `json:"templateId,omitempty"`
	ID         string `json:"id,omitempty"`
	Name       string `json:"name,omitempty"`
	DataType   string `json:"dataType,omitempty"`
	Value      string `json:"value,omitempty"`
	IsRequired bool   `json:"isRequired,omitempty"`
}

// Editor is one authoring session. Safe for concurrent use.
type Editor struct {
	mu       sync.Mutex
	id       string
	source   catalog.Source
	notifier Notifier
	saver    Saver
	metrics  metrics.Metrics
	now      func() time.Time

	cat      *catalog.Catalog
	store    *workflow.ConfigStore
	selected *Selection
	lastUsed time.Time
}

// Option configures an Editor.
type Option func(*Editor)

func WithID(id string) Option { return func(e *Editor) { e.id = id } }

func WithNotifier(n Notifier) Option { return func(e *Editor) { e.notifier = n } }

func WithSaver(s Saver) Option { return func(e *Editor) { e.saver = s } }

func WithMetrics(m metrics.Metrics) Option { return func(e *Editor) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Editor) { e.now = now } }

// New creates an editor with no application selected.
func New(source catalog.Source, opts ...Option) *Editor {
	e := &Editor{
		source:   source,
		notifier: nopNotifier{},
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.metrics == nil {
		e.metrics = metrics.Noop{}
	}
	e.lastUsed = e.now()
	return e
}

func (e *Editor) ID() string { return e.id }

// LastUsed reports when the session last ran an operation.
func (e *Editor) LastUsed() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// State returns a deep copy of the session state. The config is the draft.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{ID: e.id, LastUsed: e.lastUsed}
	if e.cat != nil {
		st.ApplicationID = e.cat.Application().ID
	}
	if e.store != nil {
		st.Config = e.store.Draft()
		st.WorkflowInstanceID = st.Config.WorkflowInstanceID
	}
	if e.selected != nil {
		sel := *e.selected
		sel.SubStage = e.selected.SubStage.Clone()
		st.Selected = &sel
	}
	return st
}

// Catalog returns the catalog of the selected application.
func (e *Editor) Catalog() (*catalog.Catalog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cat == nil {
		return nil, workflow.NewError(workflow.KindMissingSelection, "catalog", "no application selected")
	}
	return e.cat, nil
}

// run executes fn under the session lock, then refreshes the selection and
// reports the outcome. fn must not change state when it returns an error.
func (e *Editor) run(op string, fn func() (*Result, error)) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = e.now()
	res, err := fn()
	if err != nil {
		e.reject(op, err)
		return nil, err
	}
	res.Op = op
	e.refreshSelection()
	e.metrics.IncEditorOp(op, "ok")
	e.notifier.Notify(Notification{
		SessionID: e.id,
		Level:     LevelSuccess,
		Op:        op,
		Message:   res.Message,
		At:        e.lastUsed,
	})
	return res, nil
}

func (e *Editor) reject(op string, err error) {
	kind := workflow.KindOf(err)
	result := string(kind)
	if result == "" {
		result = "error"
	}
	e.metrics.IncEditorOp(op, result)
	logging.Debug("editor", "rejected", "session", e.id, "op", op, "error", err)
	e.notifier.Notify(Notification{
		SessionID: e.id,
		Level:     LevelError,
		Op:        op,
		Kind:      kind,
		Message:   err.Error(),
		At:        e.lastUsed,
	})
}

// refreshSelection re-points the selection at the current copy of the selected
// sub-stage, or clears it when the sub-stage is gone.
func (e *Editor) refreshSelection() {
	if e.selected == nil {
		return
	}
	if e.store == nil {
		e.selected = nil
		return
	}
	sub, ok := e.store.SubStage(e.selected.StageID, e.selected.SubStage.ID)
	if !ok {
		e.selected = nil
		return
	}
	e.selected.SubStage = sub
}

func (e *Editor) requireConfig(op string) (*workflow.ConfigStore, error) {
	if e.cat == nil {
		return nil, workflow.NewError(workflow.KindMissingSelection, op, "no application selected")
	}
	if e.store == nil {
		return nil, workflow.NewError(workflow.KindMissingSelection, op, "no workflow instance selected")
	}
	return e.store, nil
}

func (e *Editor) requireSelection(op string) (*workflow.ConfigStore, *Selection, error) {
	store, err := e.requireConfig(op)
	if err != nil {
		return nil, nil, err
	}
	if e.selected == nil {
		return nil, nil, workflow.NewError(workflow.KindMissingSelection, op, "no sub-stage selected")
	}
	return store, e.selected, nil
}

// SelectApplication loads the application's catalog and discards any config
// and selection.
func (e *Editor) SelectApplication(ctx context.Context, applicationID string) (*Result, error) {
	return e.run(OpSelectApplication, func() (*Result, error) {
		applicationID = strings.TrimSpace(applicationID)
		if applicationID == "" {
			return nil, workflow.NewError(workflow.KindInvalid, OpSelectApplication, "application id required")
		}
		cat, err := e.source.Catalog(ctx, applicationID)
		if err != nil {
			if errors.Is(err, catalog.ErrUnknownApplication) {
				return nil, workflow.NewError(workflow.KindNotFound, OpSelectApplication, "application %q", applicationID)
			}
			return nil, fmt.Errorf("%s: %w", OpSelectApplication, err)
		}
		e.cat = cat
		e.store = nil
		e.selected = nil
		app := cat.Application()
		return &Result{Changed: true, Message: fmt.Sprintf("Application %s selected", app.Name)}, nil
	})
}

// SelectWorkflowInstance starts an empty config seeded with the application's
// global parameters, replacing any previous config.
func (e *Editor) SelectWorkflowInstance(instanceID string) (*Result, error) {
	return e.run(OpSelectWorkflowInstance, func() (*Result, error) {
		if e.cat == nil {
			return nil, workflow.NewError(workflow.KindMissingSelection, OpSelectWorkflowInstance, "no application selected")
		}
		instanceID = strings.TrimSpace(instanceID)
		if instanceID == "" {
			return nil, workflow.NewError(workflow.KindInvalid, OpSelectWorkflowInstance, "workflow instance id required")
		}
		app := e.cat.Application()
		e.store = workflow.NewConfigStore(app.ID, instanceID, workflow.ParametersFromTemplates(app.Parameters))
		e.selected = nil
		return &Result{
			Changed: true,
			Message: fmt.Sprintf("Workflow instance %s selected", instanceID),
			Config:  e.store.Draft(),
		}, nil
	})
}

func (e *Editor) AddStage(templateID string) (*Result, error) {
	return e.run(workflow.OpAddStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpAddStage)
		if err != nil {
			return nil, err
		}
		tpl, ok := e.cat.Stage(templateID)
		if !ok {
			return nil, workflow.NewError(workflow.KindNotFound, workflow.OpAddStage, "stage template %q", templateID)
		}
		st, err := store.AddStage(tpl)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Stage: &st, Message: fmt.Sprintf("Stage %s added", st.Name)}, nil
	})
}

func (e *Editor) RemoveStage(stageID string) (*Result, error) {
	return e.run(workflow.OpRemoveStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpRemoveStage)
		if err != nil {
			return nil, err
		}
		st, _ := store.Stage(stageID)
		pruned, err := store.RemoveStage(stageID)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Stage: &st, Pruned: pruned, Message: removedMessage("Stage", st.Name, pruned)}, nil
	})
}

func (e *Editor) AddSubStage(stageID, templateID string) (*Result, error) {
	return e.run(workflow.OpAddSubStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpAddSubStage)
		if err != nil {
			return nil, err
		}
		tpl, ok := e.cat.SubStage(stageID, templateID)
		if !ok {
			return nil, workflow.NewError(workflow.KindNotFound, workflow.OpAddSubStage, "sub-stage template %q in stage %q", templateID, stageID)
		}
		sub, err := store.AddSubStage(stageID, tpl)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, SubStage: &sub, Message: fmt.Sprintf("Sub-stage %s added", sub.Name)}, nil
	})
}

func (e *Editor) RemoveSubStage(stageID, subStageID string) (*Result, error) {
	return e.run(workflow.OpRemoveSubStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpRemoveSubStage)
		if err != nil {
			return nil, err
		}
		sub, _ := store.SubStage(stageID, subStageID)
		pruned, err := store.RemoveSubStage(stageID, subStageID)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, SubStage: &sub, Pruned: pruned, Message: removedMessage("Sub-stage", sub.Name, pruned)}, nil
	})
}

func removedMessage(what, name string, pruned int) string {
	msg := fmt.Sprintf("%s %s removed", what, name)
	switch pruned {
	case 0:
		return msg
	case 1:
		return msg + " (1 dependency dropped)"
	default:
		return fmt.Sprintf("%s (%d dependencies dropped)", msg, pruned)
	}
}

// MoveStage swaps a stage with its neighbour. Moving past either end is accepted
// with Changed=false.
func (e *Editor) MoveStage(stageID string, dir Direction) (*Result, error) {
	return e.run(workflow.OpMoveStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpMoveStage)
		if err != nil {
			return nil, err
		}
		var moved bool
		switch dir {
		case Up:
			moved, err = store.MoveStageUp(stageID)
		case Down:
			moved, err = store.MoveStageDown(stageID)
		default:
			return nil, workflow.NewError(workflow.KindInvalid, workflow.OpMoveStage, "direction %q", dir)
		}
		if err != nil {
			return nil, err
		}
		st, _ := store.Stage(stageID)
		return &Result{Changed: moved, Stage: &st, Message: movedMessage("Stage", st.Name, dir, moved)}, nil
	})
}

func (e *Editor) MoveSubStage(stageID, subStageID string, dir Direction) (*Result, error) {
	return e.run(workflow.OpMoveSubStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpMoveSubStage)
		if err != nil {
			return nil, err
		}
		var moved bool
		switch dir {
		case Up:
			moved, err = store.MoveSubStageUp(stageID, subStageID)
		case Down:
			moved, err = store.MoveSubStageDown(stageID, subStageID)
		default:
			return nil, workflow.NewError(workflow.KindInvalid, workflow.OpMoveSubStage, "direction %q", dir)
		}
		if err != nil {
			return nil, err
		}
		sub, _ := store.SubStage(stageID, subStageID)
		return &Result{Changed: moved, SubStage: &sub, Message: movedMessage("Sub-stage", sub.Name, dir, moved)}, nil
	})
}

func movedMessage(what, name string, dir Direction, moved bool) string {
	if !moved {
		return fmt.Sprintf("%s %s already at the %s", what, name, map[Direction]string{Up: "top", Down: "bottom"}[dir])
	}
	return fmt.Sprintf("%s %s moved %s", what, name, dir)
}

// SelectSubStage points the selection at a sub-stage.
func (e *Editor) SelectSubStage(stageID, subStageID string) (*Result, error) {
	return e.run(OpSelectSubStage, func() (*Result, error) {
		store, err := e.requireConfig(OpSelectSubStage)
		if err != nil {
			return nil, err
		}
		sub, ok := store.SubStage(stageID, subStageID)
		if !ok {
			return nil, workflow.NewError(workflow.KindNotFound, OpSelectSubStage, "sub-stage %q in stage %q", subStageID, stageID)
		}
		e.selected = &Selection{StageID: stageID, SubStage: sub}
		return &Result{Changed: true, SubStage: &sub, Message: fmt.Sprintf("Editing %s", sub.Name)}, nil
	})
}

func (e *Editor) ClearSelection() (*Result, error) {
	return e.run(OpClearSelection, func() (*Result, error) {
		changed := e.selected != nil
		e.selected = nil
		return &Result{Changed: changed, Message: "Selection cleared"}, nil
	})
}

// UpdateSubStage applies patch to any sub-stage.
func (e *Editor) UpdateSubStage(stageID, subStageID string, patch workflow.SubStagePatch) (*Result, error) {
	return e.run(workflow.OpUpdateSubStage, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpUpdateSubStage)
		if err != nil {
			return nil, err
		}
		return e.update(store, workflow.OpUpdateSubStage, stageID, subStageID, patch)
	})
}

// UpdateSelected applies patch to the selected sub-stage.
func (e *Editor) UpdateSelected(patch workflow.SubStagePatch) (*Result, error) {
	return e.run(OpUpdateSelected, func() (*Result, error) {
		store, sel, err := e.requireSelection(OpUpdateSelected)
		if err != nil {
			return nil, err
		}
		return e.update(store, OpUpdateSelected, sel.StageID, sel.SubStage.ID, patch)
	})
}

func (e *Editor) update(store *workflow.ConfigStore, op, stageID, subStageID string, patch workflow.SubStagePatch) (*Result, error) {
	sub, err := store.UpdateSubStage(stageID, subStageID, patch)
	if err != nil {
		var we *workflow.Error
		if errors.As(err, &we) && op != workflow.OpUpdateSubStage {
			copied := *we
			copied.Op = op
			return nil, &copied
		}
		return nil, err
	}
	return &Result{Changed: true, SubStage: &sub, Message: fmt.Sprintf("Sub-stage %s updated", sub.Name)}, nil
}

func (e *Editor) UpdateGlobalParameter(parameterID, value string) (*Result, error) {
	return e.run(workflow.OpUpdateGlobalParameter, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpUpdateGlobalParameter)
		if err != nil {
			return nil, err
		}
		p, err := store.UpdateGlobalParameter(parameterID, value)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Parameter: &p, Message: fmt.Sprintf("Parameter %s updated", p.Name)}, nil
	})
}

// EligibleTargets lists the sub-stages (stageID, subStageID) may depend on.
// Read-only: no notification is emitted.
func (e *Editor) EligibleTargets(stageID, subStageID string) ([]workflow.DependencyTarget, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	store, err := e.requireConfig("eligible_targets")
	if err != nil {
		return nil, err
	}
	return store.EligibleTargets(stageID, subStageID)
}

func (e *Editor) AddDependency(stageID, subStageID, depStageID, depSubStageID string) (*Result, error) {
	return e.run(workflow.OpAddDependency, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpAddDependency)
		if err != nil {
			return nil, err
		}
		dep, err := store.AddDependency(stageID, subStageID, depStageID, depSubStageID)
		if err != nil {
			return nil, err
		}
		sub, _ := store.SubStage(stageID, subStageID)
		return &Result{Changed: true, Dependency: &dep, SubStage: &sub, Message: fmt.Sprintf("%s now depends on %s", sub.Name, dep.Name)}, nil
	})
}

func (e *Editor) RemoveDependency(stageID, subStageID string, index int) (*Result, error) {
	return e.run(workflow.OpRemoveDependency, func() (*Result, error) {
		store, err := e.requireConfig(workflow.OpRemoveDependency)
		if err != nil {
			return nil, err
		}
		dep, err := store.RemoveDependency(stageID, subStageID, index)
		if err != nil {
			return nil, err
		}
		sub, _ := store.SubStage(stageID, subStageID)
		return &Result{Changed: true, Dependency: &dep, SubStage: &sub, Message: fmt.Sprintf("Dependency on %s removed", dep.Name)}, nil
	})
}

// AddAttestation attaches an attestation to the selected sub-stage. IsRequired
// defaults to true.
func (e *Editor) AddAttestation(in AttestationInput) (*Result, error) {
	return e.run(workflow.OpAddAttestation, func() (*Result, error) {
		store, sel, err := e.requireSelection(workflow.OpAddAttestation)
		if err != nil {
			return nil, err
		}
		att := workflow.ConfigAttestation{ID: in.ID, Name: in.Name, Text: in.Text, IsRequired: true}
		if in.TemplateID != "" {
			tpl, ok := e.cat.Attestation(in.TemplateID)
			if !ok {
				return nil, workflow.NewError(workflow.KindNotFound, workflow.OpAddAttestation, "attestation template %q", in.TemplateID)
			}
			att = workflow.ConfigAttestation{ID: tpl.ID, Name: tpl.Name, Text: tpl.Text, IsRequired: true}
		} else if strings.TrimSpace(in.Text) == "" {
			return nil, workflow.NewError(workflow.KindInvalid, workflow.OpAddAttestation, "attestation text required")
		}
		if att.ID == "" {
			att.ID = "att-" + uuid.NewString()
		}
		if in.IsRequired != nil {
			att.IsRequired = *in.IsRequired
		}
		added, err := store.AddAttestation(sel.StageID, sel.SubStage.ID, att)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Attestation: &added, Message: fmt.Sprintf("Attestation %s added to %s", added.Name, sel.SubStage.Name)}, nil
	})
}

func (e *Editor) RemoveAttestation(attestationID string) (*Result, error) {
	return e.run(workflow.OpRemoveAttestation, func() (*Result, error) {
		store, sel, err := e.requireSelection(workflow.OpRemoveAttestation)
		if err != nil {
			return nil, err
		}
		removed, err := store.RemoveAttestation(sel.StageID, sel.SubStage.ID, attestationID)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Attestation: &removed, Message: fmt.Sprintf("Attestation %s removed", removed.Name)}, nil
	})
}

// AddParameter attaches a parameter to the selected sub-stage.
func (e *Editor) AddParameter(in ParameterInput) (*Result, error) {
	return e.run(workflow.OpAddParameter, func() (*Result, error) {
		store, sel, err := e.requireSelection(workflow.OpAddParameter)
		if err != nil {
			return nil, err
		}
		p := workflow.ConfigParameter{ID: in.ID, Name: in.Name, DataType: in.DataType, Value: in.Value, IsRequired: in.IsRequired}
		if in.TemplateID != "" {
			tpl, ok := e.cat.Parameter(in.TemplateID)
			if !ok {
				return nil, workflow.NewError(workflow.KindNotFound, workflow.OpAddParameter, "parameter template %q", in.TemplateID)
			}
			p = workflow.ConfigParameter{ID: tpl.ID, Name: tpl.Name, DataType: tpl.DataType, Value: in.Value, IsRequired: tpl.IsRequired}
			if p.Value == "" {
				p.Value = tpl.DefaultValue
			}
		}
		if p.ID == "" {
			p.ID = "param-" + uuid.NewString()
		}
		if p.DataType == "" {
			p.DataType = workflow.DataTypeString
		}
		added, err := store.AddParameter(sel.StageID, sel.SubStage.ID, p)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Parameter: &added, Message: fmt.Sprintf("Parameter %s added to %s", added.Name, sel.SubStage.Name)}, nil
	})
}

func (e *Editor) RemoveParameter(parameterID string) (*Result, error) {
	return e.run(workflow.OpRemoveParameter, func() (*Result, error) {
		store, sel, err := e.requireSelection(workflow.OpRemoveParameter)
		if err != nil {
			return nil, err
		}
		removed, err := store.RemoveParameter(sel.StageID, sel.SubStage.ID, parameterID)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: true, Parameter: &removed, Message: fmt.Sprintf("Parameter %s removed", removed.Name)}, nil
	})
}

// Save validates the committed config and hands it to the Saver.
func (e *Editor) Save(ctx context.Context, savedBy string) (*Result, error) {
	return e.run(OpSave, func() (*Result, error) {
		store, err := e.requireConfig(OpSave)
		if err != nil {
			return nil, err
		}
		if e.saver == nil {
			return nil, fmt.Errorf("%s: no saver configured", OpSave)
		}
		cfg := store.Snapshot()
		if err := workflow.Validate(cfg); err != nil {
			return nil, err
		}
		cfg.SavedBy = savedBy
		if err := e.saver.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", OpSave, err)
		}
		return &Result{
			Changed: true,
			Config:  cfg,
			Message: fmt.Sprintf("Workflow config %s saved (revision %d)", cfg.WorkflowInstanceID, cfg.Revision),
		}, nil
	})
}
