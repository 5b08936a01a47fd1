package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cordum/stageflow/core/infra/bus"
	"github.com/cordum/stageflow/core/infra/logging"
	wf "github.com/cordum/stageflow/core/workflow"
)

// Event types published for config lifecycle changes.
const (
	eventConfigSaved   = "config.saved"
	eventConfigDeleted = "config.deleted"
)

// ConfigEvent is the payload of config lifecycle events.
type ConfigEvent struct {
	ApplicationID      string `json:"applicationId"`
	WorkflowInstanceID string `json:"workflowInstanceId"`
	Revision           int64  `json:"revision,omitempty"`
	SavedBy            string `json:"savedBy,omitempty"`
}

type saveResponse struct {
	ApplicationID      string `json:"applicationId"`
	WorkflowInstanceID string `json:"workflowInstanceId"`
	Revision           int64  `json:"revision"`
}

// persistConfig stores cfg, records metrics and publishes config.saved. It
// backs both the save endpoint and editor sessions.
func (s *server) persistConfig(ctx context.Context, cfg *wf.WorkflowConfig) error {
	if s.configStore == nil {
		return fmt.Errorf("workflow config store unavailable")
	}
	start := time.Now()
	save := func(ctx context.Context) error { return s.configStore.Save(ctx, cfg) }
	var err error
	if s.saveLocks != nil {
		err = s.saveLocks.With(ctx, saveLockResource(cfg), save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return err
	}
	s.configMetrics.ObserveSaveDuration(time.Since(start).Seconds())
	s.configMetrics.IncConfigSaved(cfg.ApplicationID)
	logging.Info("api-gateway", "workflow config saved",
		"application", cfg.ApplicationID,
		"instance", cfg.WorkflowInstanceID,
		"revision", cfg.Revision,
	)
	s.publishConfigEvent(eventConfigSaved, bus.SubjectConfigSaved, ConfigEvent{
		ApplicationID:      cfg.ApplicationID,
		WorkflowInstanceID: cfg.WorkflowInstanceID,
		Revision:           cfg.Revision,
		SavedBy:            cfg.SavedBy,
	})
	return nil
}

// saveLockResource serializes saves of one instance so revisions stay monotonic.
func saveLockResource(cfg *wf.WorkflowConfig) string {
	return "wfcfg:" + wf.InstanceKey(cfg.ApplicationID, cfg.WorkflowInstanceID)
}

func (s *server) publishConfigEvent(eventType, subject string, payload ConfigEvent) {
	if s.bus == nil {
		return
	}
	evt, err := bus.NewEvent(eventType, payload)
	if err != nil {
		logging.Error("api-gateway", "encode config event", "error", err)
		return
	}
	if err := s.bus.Publish(subject, evt); err != nil {
		logging.Error("api-gateway", "publish config event", "subject", subject, "error", err)
	}
}

func (s *server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	if s.configStore == nil {
		http.Error(w, "workflow config store unavailable", http.StatusServiceUnavailable)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	cfg, err := wf.DecodeConfig(body)
	if err != nil {
		writeError(w, err)
		return
	}
	principal, err := s.resolvePrincipal(r, cfg.SavedBy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	saved := cfg.Committed()
	saved.SavedBy = principal
	if err := s.persistConfig(r.Context(), saved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{
		ApplicationID:      saved.ApplicationID,
		WorkflowInstanceID: saved.WorkflowInstanceID,
		Revision:           saved.Revision,
	})
}

func (s *server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	if s.configStore == nil {
		http.Error(w, "workflow config store unavailable", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	limit := int64(100)
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	list, err := s.configStore.List(r.Context(), strings.TrimSpace(q.Get("application_id")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	// Listings are browse views; secret references only leave through Get.
	for i := range list {
		list[i] = list[i].Redacted()
	}
	writeJSON(w, http.StatusOK, list)
}

func configPath(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	app := strings.TrimSpace(r.PathValue("app"))
	inst := strings.TrimSpace(r.PathValue("instance"))
	if app == "" || inst == "" {
		http.Error(w, "missing application or instance id", http.StatusBadRequest)
		return "", "", false
	}
	return app, inst, true
}

func (s *server) handleGetSavedConfig(w http.ResponseWriter, r *http.Request) {
	if s.configStore == nil {
		http.Error(w, "workflow config store unavailable", http.StatusServiceUnavailable)
		return
	}
	app, inst, ok := configPath(w, r)
	if !ok {
		return
	}
	cfg, err := s.configStore.Get(r.Context(), app, inst)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) handleDeleteSavedConfig(w http.ResponseWriter, r *http.Request) {
	if s.configStore == nil {
		http.Error(w, "workflow config store unavailable", http.StatusServiceUnavailable)
		return
	}
	app, inst, ok := configPath(w, r)
	if !ok {
		return
	}
	if err := s.configStore.Delete(r.Context(), app, inst); err != nil {
		writeError(w, err)
		return
	}
	s.publishConfigEvent(eventConfigDeleted, bus.SubjectConfigDeleted, ConfigEvent{
		ApplicationID:      app,
		WorkflowInstanceID: inst,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleConfigHistory(w http.ResponseWriter, r *http.Request) {
	if s.configStore == nil {
		http.Error(w, "workflow config store unavailable", http.StatusServiceUnavailable)
		return
	}
	app, inst, ok := configPath(w, r)
	if !ok {
		return
	}
	history, err := s.configStore.History(r.Context(), app, inst, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
