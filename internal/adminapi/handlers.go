package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wsuscatalog/wsuscatalog/internal/filter"
	"github.com/wsuscatalog/wsuscatalog/internal/httputil"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST required")
		return
	}
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}

// handleSync enqueues a manual sync:upstream task. The actual
// CategoriesSource/UpdatesSource run happens in jobqueue.UpstreamSyncHandler
// on the worker, not inline in this request.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST required")
		return
	}
	taskID, err := s.queue.EnqueueUpstreamSync("manual")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// handleReindex enqueues a store:reindex task, for recovering from a store
// whose IsReindexingRequired flag is set.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST required")
		return
	}
	taskID, err := s.queue.EnqueueReindexStore()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

type statsResponse struct {
	PackageCount         int  `json:"package_count"`
	IsReindexingRequired bool `json:"is_reindexing_required"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statsResponse{
		PackageCount:         s.store.Count(),
		IsReindexingRequired: s.store.IsReindexingRequired(),
	})
}

type updateSummary struct {
	UpdateID string `json:"update_id"`
	Revision int32  `json:"revision"`
	Title    string `json:"title"`
	KB       string `json:"kb_article_id,omitempty"`
}

// handleUpdates runs the catalog filter pipeline (classification,
// product, title, ids, superseded, firstX) over every software/driver
// update in the store, for operator browsing and search. Query parameters:
// product, classification, id (repeatable or comma-separated GUIDs), title,
// skipSuperseded=true, perPkgSuperseded=true, firstX.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET required")
		return
	}

	q := r.URL.Query()
	products, err := parseGUIDParam(q.Get("product"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_GUID", "invalid product GUID")
		return
	}
	classifications, err := parseGUIDParam(q.Get("classification"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_GUID", "invalid classification GUID")
		return
	}
	ids, err := parseGUIDParam(q.Get("id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_GUID", "invalid id GUID")
		return
	}
	firstX, _ := strconv.Atoi(q.Get("firstX"))

	query := filter.Query{
		Products:         products,
		Classifications:  classifications,
		Title:            q.Get("title"),
		IDs:              ids,
		SkipSuperseded:   q.Get("skipSuperseded") == "true",
		PerPkgSuperseded: q.Get("perPkgSuperseded") == "true",
		FirstX:           firstX,
	}

	candidates, err := s.loadUpdateCandidates()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "STORE_READ_FAILED", err.Error())
		return
	}

	matched := filter.Apply(candidates, query)
	out := make([]updateSummary, 0, len(matched))
	for _, pkg := range matched {
		out = append(out, updateSummary{
			UpdateID: pkg.Identity.UpdateID.String(),
			Revision: pkg.Identity.Revision,
			Title:    pkg.Title,
			KB:       pkg.KBArticleID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// loadUpdateCandidates rehydrates every software/driver update currently in
// the store, the candidate pool the filter pipeline runs
// over (categories are excluded; they carry no product/classification IDs
// of their own).
func (s *Server) loadUpdateCandidates() ([]*xmlmeta.Package, error) {
	var out []*xmlmeta.Package
	for _, id := range s.store.Identities() {
		pkg, err := s.store.GetPackage(id)
		if err != nil {
			return nil, err
		}
		if pkg.Kind == xmlmeta.KindSoftwareUpdate || pkg.Kind == xmlmeta.KindDriverUpdate {
			pkg.ReleaseRawBytes()
			out = append(out, pkg)
		}
	}
	return out, nil
}

func parseGUIDParam(raw string) ([]identity.GUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []identity.GUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		g, err := identity.GUIDFromString(part)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

type driverMatchResponse struct {
	Matched      bool   `json:"matched"`
	HardwareID   string `json:"hardware_id,omitempty"`
	WHQLDriverID string `json:"whql_driver_id,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// handleDriverMatch exercises the driver-match read path
// against the currently served catalog: given ordered hardware IDs,
// computer hardware IDs, and installed-prerequisite GUIDs, it returns the
// single best-matching driver record (feature score, then DriverVersion).
func (s *Server) handleDriverMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET required")
		return
	}

	q := r.URL.Query()
	hardwareIDs := splitNonEmpty(q.Get("hardwareId"))
	computerHWIDs := splitNonEmpty(q.Get("computerHwId"))
	installedIDs, err := parseGUIDParam(q.Get("installed"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_GUID", "invalid installed GUID")
		return
	}
	installed := make(map[identity.GUID]bool, len(installedIDs))
	for _, id := range installedIDs {
		installed[id] = true
	}

	record, matched := s.downstream.MatchDriver(hardwareIDs, computerHWIDs, installed)
	if !matched {
		httputil.WriteJSON(w, http.StatusOK, driverMatchResponse{Matched: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, driverMatchResponse{
		Matched:      true,
		HardwareID:   record.HardwareID,
		WHQLDriverID: record.WHQLDriverID,
		Manufacturer: record.Manufacturer,
	})
}

func splitNonEmpty(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.history.ListRecent(25)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}
