package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/cordum/stageflow/core/catalog"
	wf "github.com/cordum/stageflow/core/workflow"
)

// catalogDataKey is the application-scope config key holding a published catalog.
const catalogDataKey = "catalog"

type applicationSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Published bool   `json:"published"`
}

func (s *server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	byID := map[string]applicationSummary{}
	if s.staticCatalogs != nil {
		for _, app := range s.staticCatalogs.Applications() {
			byID[app.ID] = applicationSummary{ID: app.ID, Name: app.Name}
		}
	}
	if s.publishedCat != nil {
		ids, err := s.publishedCat.Applications(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		for _, id := range ids {
			summary := byID[id]
			summary.ID = id
			summary.Published = true
			if cat, err := s.publishedCat.Catalog(r.Context(), id); err == nil {
				summary.Name = cat.Application().Name
			}
			byID[id] = summary
		}
	}
	out := make([]applicationSummary, 0, len(byID))
	for _, app := range byID {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *server) lookupCatalog(ctx context.Context, applicationID string) (*catalog.Catalog, error) {
	if s.catalogs == nil {
		return nil, wf.NewError(wf.KindNotFound, "catalog", "application %q", applicationID)
	}
	cat, err := s.catalogs.Catalog(ctx, applicationID)
	if errors.Is(err, catalog.ErrUnknownApplication) {
		return nil, wf.NewError(wf.KindNotFound, "catalog", "application %q", applicationID)
	}
	return cat, err
}

func (s *server) catalogFromPath(w http.ResponseWriter, r *http.Request) (*catalog.Catalog, bool) {
	app := strings.TrimSpace(r.PathValue("app"))
	if app == "" {
		http.Error(w, "missing application id", http.StatusBadRequest)
		return nil, false
	}
	cat, err := s.lookupCatalog(r.Context(), app)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return cat, true
}

func (s *server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	if cat, ok := s.catalogFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, cat.Document())
	}
}

func (s *server) handleListCatalogStages(w http.ResponseWriter, r *http.Request) {
	if cat, ok := s.catalogFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, cat.ListStages())
	}
}

func (s *server) handleListCatalogAttestations(w http.ResponseWriter, r *http.Request) {
	if cat, ok := s.catalogFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, cat.ListAttestations())
	}
}

func (s *server) handleListCatalogParameters(w http.ResponseWriter, r *http.Request) {
	if cat, ok := s.catalogFromPath(w, r); ok {
		writeJSON(w, http.StatusOK, cat.ListParameters())
	}
}

// handlePublishCatalog stores one application JSON document through
// the catalog file schema and the config service.
func (s *server) handlePublishCatalog(w http.ResponseWriter, r *http.Request) {
	if s.publishedCat == nil {
		http.Error(w, "catalog publishing unavailable", http.StatusServiceUnavailable)
		return
	}
	app := strings.TrimSpace(r.PathValue("app"))
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		http.Error(w, "catalog document required", http.StatusBadRequest)
		return
	}
	wrapped := append([]byte(`{"applications":[`), body...)
	wrapped = append(wrapped, ']', '}')
	catalogs, err := catalog.Parse(wrapped)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cat, found := catalogs[app]
	if !found || len(catalogs) != 1 {
		http.Error(w, "application id does not match path", http.StatusBadRequest)
		return
	}
	if err := s.publishedCat.Publish(r.Context(), cat); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cat.Document())
}
