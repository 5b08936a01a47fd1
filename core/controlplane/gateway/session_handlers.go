package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cordum/stageflow/core/editor"
	wf "github.com/cordum/stageflow/core/workflow"
)

const sessionsRoute = "/api/v1/sessions"

func (s *server) sessionRoutes(mux *http.ServeMux) {
	handle := func(method, path string, fn http.HandlerFunc) {
		route := sessionsRoute + path
		mux.HandleFunc(method+" "+route, s.instrumented(route, fn))
	}
	handle("POST", "", s.handleCreateSession)
	handle("GET", "", s.handleListSessions)
	handle("GET", "/{id}", s.handleGetSession)
	handle("DELETE", "/{id}", s.handleDeleteSession)
	handle("GET", "/{id}/catalog", s.handleSessionCatalog)
	handle("PUT", "/{id}/application", s.handleSelectApplication)
	handle("PUT", "/{id}/instance", s.handleSelectInstance)
	handle("PUT", "/{id}/parameters/{param}", s.handleUpdateGlobalParameter)

	handle("POST", "/{id}/stages", s.handleAddStage)
	handle("DELETE", "/{id}/stages/{stage}", s.handleRemoveStage)
	handle("POST", "/{id}/stages/{stage}/move", s.handleMoveStage)
	handle("POST", "/{id}/stages/{stage}/sub-stages", s.handleAddSubStage)
	handle("DELETE", "/{id}/stages/{stage}/sub-stages/{sub}", s.handleRemoveSubStage)
	handle("PATCH", "/{id}/stages/{stage}/sub-stages/{sub}", s.handleUpdateSubStage)
	handle("POST", "/{id}/stages/{stage}/sub-stages/{sub}/move", s.handleMoveSubStage)
	handle("GET", "/{id}/stages/{stage}/sub-stages/{sub}/eligible-targets", s.handleEligibleTargets)
	handle("POST", "/{id}/stages/{stage}/sub-stages/{sub}/dependencies", s.handleAddDependency)
	handle("DELETE", "/{id}/stages/{stage}/sub-stages/{sub}/dependencies/{index}", s.handleRemoveDependency)

	handle("PUT", "/{id}/selection", s.handleSelectSubStage)
	handle("DELETE", "/{id}/selection", s.handleClearSelection)
	handle("PATCH", "/{id}/selection", s.handleUpdateSelected)
	handle("POST", "/{id}/selection/attestations", s.handleAddAttestation)
	handle("DELETE", "/{id}/selection/attestations/{att}", s.handleRemoveAttestation)
	handle("POST", "/{id}/selection/parameters", s.handleAddParameter)
	handle("DELETE", "/{id}/selection/parameters/{param}", s.handleRemoveParameter)

	handle("POST", "/{id}/save", s.handleSaveSession)
}

// newEditor builds a session wired to the bus, the saved-config store and metrics.
func (s *server) newEditor(opts ...editor.Option) *editor.Editor {
	base := []editor.Option{
		editor.WithNotifier(editor.BusNotifier{Publisher: s.bus}),
		editor.WithSaver(editor.SaverFunc(s.persistConfig)),
		editor.WithMetrics(s.editorMetrics),
	}
	return editor.New(s.catalogs, append(base, opts...)...)
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return nil, false
	}
	ed, ok := s.sessions.get(id)
	if !ok {
		writeError(w, wf.NewError(wf.KindNotFound, "session", "session %q", id))
		return nil, false
	}
	return ed, true
}

func writeResult(w http.ResponseWriter, status int, res *editor.Result, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, res)
}

type createSessionRequest struct {
	ApplicationID      string `json:"applicationId"`
	WorkflowInstanceID string `json:"workflowInstanceId"`
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ed := s.sessions.create()
	if req.ApplicationID != "" {
		if _, err := ed.SelectApplication(r.Context(), req.ApplicationID); err != nil {
			s.sessions.remove(ed.ID())
			writeError(w, err)
			return
		}
	}
	if req.WorkflowInstanceID != "" {
		if _, err := ed.SelectWorkflowInstance(req.WorkflowInstanceID); err != nil {
			s.sessions.remove(ed.ID())
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, ed.State())
}

func (s *server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.list())
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if ed, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, ed.State())
	}
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !s.sessions.remove(id) {
		writeError(w, wf.NewError(wf.KindNotFound, "session", "session %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSessionCatalog(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	cat, err := ed.Catalog()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cat.Document())
}

func (s *server) handleSelectApplication(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.SelectApplication(r.Context(), req.ApplicationID)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleSelectInstance(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.SelectWorkflowInstance(req.WorkflowInstanceID)
	writeResult(w, http.StatusOK, res, err)
}

type valueRequest struct {
	Value string `json:"value"`
}

func (s *server) handleUpdateGlobalParameter(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.UpdateGlobalParameter(r.PathValue("param"), req.Value)
	writeResult(w, http.StatusOK, res, err)
}

type templateRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *server) handleAddStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.AddStage(req.TemplateID)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *server) handleRemoveStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ed.RemoveStage(r.PathValue("stage"))
	writeResult(w, http.StatusOK, res, err)
}

type moveRequest struct {
	Direction editor.Direction `json:"direction"`
}

func (s *server) handleMoveStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.MoveStage(r.PathValue("stage"), req.Direction)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleAddSubStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.AddSubStage(r.PathValue("stage"), req.TemplateID)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *server) handleRemoveSubStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ed.RemoveSubStage(r.PathValue("stage"), r.PathValue("sub"))
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleUpdateSubStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var patch wf.SubStagePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	res, err := ed.UpdateSubStage(r.PathValue("stage"), r.PathValue("sub"), patch)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleMoveSubStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.MoveSubStage(r.PathValue("stage"), r.PathValue("sub"), req.Direction)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleEligibleTargets(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	targets, err := ed.EligibleTargets(r.PathValue("stage"), r.PathValue("sub"))
	if err != nil {
		writeError(w, err)
		return
	}
	if targets == nil {
		targets = []wf.DependencyTarget{}
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req wf.SubStageRef
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.AddDependency(r.PathValue("stage"), r.PathValue("sub"), req.StageID, req.SubStageID)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid dependency index", http.StatusBadRequest)
		return
	}
	res, err := ed.RemoveDependency(r.PathValue("stage"), r.PathValue("sub"), idx)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleSelectSubStage(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req wf.SubStageRef
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ed.SelectSubStage(req.StageID, req.SubStageID)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ed.ClearSelection()
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleUpdateSelected(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var patch wf.SubStagePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	res, err := ed.UpdateSelected(patch)
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleAddAttestation(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var in editor.AttestationInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := ed.AddAttestation(in)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *server) handleRemoveAttestation(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ed.RemoveAttestation(r.PathValue("att"))
	writeResult(w, http.StatusOK, res, err)
}

func (s *server) handleAddParameter(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var in editor.ParameterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := ed.AddParameter(in)
	writeResult(w, http.StatusCreated, res, err)
}

func (s *server) handleRemoveParameter(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := ed.RemoveParameter(r.PathValue("param"))
	writeResult(w, http.StatusOK, res, err)
}

type saveSessionRequest struct {
	SavedBy string `json:"savedBy"`
}

func (s *server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.session(w, r)
	if !ok {
		return
	}
	var req saveSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	principal, err := s.resolvePrincipal(r, req.SavedBy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	res, err := ed.Save(r.Context(), principal)
	writeResult(w, http.StatusOK, res, err)
}
