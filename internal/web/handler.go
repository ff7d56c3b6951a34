package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/tracker"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Handler serves the read-only dashboard
type Handler struct {
	tracker   *tracker.Tracker
	templates *template.Template
}

// NewHandler creates a new dashboard handler
func NewHandler(t *tracker.Tracker) (*Handler, error) {
	tmpl, err := template.New("dashboard").Funcs(template.FuncMap{
		"statusColor": statusColor,
		"statusIcon":  statusIcon,
		"join":        strings.Join,
		"inc":         func(i int) int { return i + 1 },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		tracker:   t,
		templates: tmpl,
	}, nil
}

// RegisterRoutes registers dashboard routes. Everything except /health goes
// through auth when it is non-nil.
func (h *Handler) RegisterRoutes(r *mux.Router, auth *Auth) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")

	protected := r.NewRoute().Subrouter()
	if auth != nil {
		protected.Use(auth.Middleware)
	}

	protected.HandleFunc("/", h.handleOverview).Methods("GET")
	protected.HandleFunc("/projects/{project}", h.handleProjectPage).Methods("GET")

	api := protected.PathPrefix("/api").Subrouter()
	api.HandleFunc("/projects", h.handleProjects).Methods("GET")
	api.HandleFunc("/projects/{project}", h.handleProject).Methods("GET")
	api.HandleFunc("/projects/{project}/tasks", h.handleTasks).Methods("GET")
	api.HandleFunc("/projects/{project}/ready", h.handleReady).Methods("GET")
	api.HandleFunc("/projects/{project}/order", h.handleOrder).Methods("GET")
	api.HandleFunc("/projects/{project}/plans", h.handlePlans).Methods("GET")
	api.HandleFunc("/tasks/{id}", h.handleTask).Methods("GET")
	api.HandleFunc("/diff", h.handleDiff).Methods("GET")
}

// Router returns a fresh router with all dashboard routes.
func (h *Handler) Router(auth *Auth) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r, auth)
	return r
}

// projectView is the JSON shape of a project with its active plan summary.
type projectView struct {
	Project *domain.Project `json:"project"`
	Current bool            `json:"current"`
	Summary summaryView     `json:"summary"`
}

type summaryView struct {
	PlanID      string                    `json:"plan_id"`
	PlanVersion int                       `json:"plan_version"`
	Total       int                       `json:"total"`
	Ready       int                       `json:"ready"`
	Percent     int                       `json:"percent"`
	Counts      map[domain.TaskStatus]int `json:"counts"`
}

type statusChangeView struct {
	TaskID string            `json:"task_id"`
	From   domain.TaskStatus `json:"from"`
	To     domain.TaskStatus `json:"to"`
}

type diffView struct {
	PlanA         string             `json:"plan_a"`
	PlanB         string             `json:"plan_b"`
	Added         []string           `json:"added"`
	Removed       []string           `json:"removed"`
	StatusChanged []statusChangeView `json:"status_changed"`
}

type errorView struct {
	Error   domain.ErrorKind `json:"error"`
	Message string           `json:"message"`
	IDs     []string         `json:"ids,omitempty"`
}

func newSummaryView(s *tracker.Summary) summaryView {
	v := summaryView{
		PlanID:      s.PlanID,
		PlanVersion: s.PlanVersion,
		Total:       s.Total,
		Ready:       s.Ready,
		Counts:      s.Counts,
	}
	if s.Total > 0 {
		v.Percent = s.Counts[domain.StatusCompleted] * 100 / s.Total
	}
	return v
}

func (h *Handler) projectViews() ([]projectView, error) {
	currentID := ""
	if cur, err := h.tracker.CurrentProject(); err == nil {
		currentID = cur.ID
	}

	projects := h.tracker.ListProjects()
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		sum, err := h.tracker.Summarize(p.ID)
		if err != nil {
			// deleted between the listing and the summary
			if domain.KindOf(err) == domain.KindProjectNotFound {
				continue
			}
			return nil, err
		}
		views = append(views, projectView{Project: p, Current: p.ID == currentID, Summary: newSummaryView(sum)})
	}
	return views, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	views, err := h.projectViews()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["project"]
	p, err := h.tracker.GetProject(ref)
	if err != nil {
		writeError(w, err)
		return
	}
	sum, err := h.tracker.Summarize(p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	current := false
	if cur, err := h.tracker.CurrentProject(); err == nil {
		current = cur.ID == p.ID
	}
	writeJSON(w, http.StatusOK, projectView{Project: p, Current: current, Summary: newSummaryView(sum)})
}

func (h *Handler) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tracker.TaskFilter{
		PlanID:   q.Get("plan"),
		ParentID: q.Get("parent"),
		Keyword:  q.Get("keyword"),
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			status, err := domain.ParseStatus(s)
			if err != nil {
				writeError(w, err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	tasks, err := h.tracker.ListTasks(projectRef(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tracker.ReadyTasks(projectRef(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tracker.TopologicalOrder(projectRef(r), r.URL.Query().Get("plan"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handler) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.tracker.ListPlans(projectRef(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if plans == nil {
		plans = []*domain.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *Handler) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tracker.GetTask(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	diff, err := h.tracker.DiffPlans(q.Get("a"), q.Get("b"))
	if err != nil {
		writeError(w, err)
		return
	}

	v := diffView{
		PlanA:         diff.PlanA,
		PlanB:         diff.PlanB,
		Added:         append([]string{}, diff.Added...),
		Removed:       append([]string{}, diff.Removed...),
		StatusChanged: make([]statusChangeView, 0, len(diff.StatusChanged)),
	}
	for _, c := range diff.StatusChanged {
		v.StatusChanged = append(v.StatusChanged, statusChangeView{TaskID: c.TaskID, From: c.From, To: c.To})
	}
	writeJSON(w, http.StatusOK, v)
}

// handleOverview renders the project list page
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	views, err := h.projectViews()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := struct {
		Projects []projectView
	}{
		Projects: views,
	}

	if err := h.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Printf("[Dashboard] Render overview failed: %v", err)
	}
}

// handleProjectPage renders one project's active plan in execution order
func (h *Handler) handleProjectPage(w http.ResponseWriter, r *http.Request) {
	ref := projectRef(r)
	p, err := h.tracker.GetProject(ref)
	if err != nil {
		http.Error(w, "Project not found", statusFor(err))
		return
	}
	sum, err := h.tracker.Summarize(p.ID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	tasks, err := h.tracker.TopologicalOrder(p.ID, "")
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	plans, err := h.tracker.ListPlans(p.ID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	data := struct {
		Project *domain.Project
		Summary summaryView
		Tasks   []*domain.Task
		Plans   []*domain.Plan
	}{
		Project: p,
		Summary: newSummaryView(sum),
		Tasks:   tasks,
		Plans:   plans,
	}

	if err := h.templates.ExecuteTemplate(w, "project.html", data); err != nil {
		log.Printf("[Dashboard] Render project %s failed: %v", p.ID, err)
	}
}

func projectRef(r *http.Request) string {
	return mux.Vars(r)["project"]
}

func nonNil(tasks []*domain.Task) []*domain.Task {
	if tasks == nil {
		return []*domain.Task{}
	}
	return tasks
}

// statusFor maps a domain error kind to an HTTP status code.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindProjectNotFound, domain.KindPlanNotFound, domain.KindTaskNotFound:
		return http.StatusNotFound
	case domain.KindStorageFailure, "":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := domain.KindOf(err)
	if kind == "" {
		log.Printf("[Dashboard] Internal error: %v", err)
	}
	writeJSON(w, status, errorView{Error: kind, Message: domain.MessageOf(err), IDs: domain.IDsOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Dashboard] Encode response failed: %v", err)
	}
}

// Helper functions for templates
func statusColor(status domain.TaskStatus) string {
	switch status {
	case domain.StatusPending:
		return "#6c757d"
	case domain.StatusInProgress:
		return "#0d6efd"
	case domain.StatusCompleted:
		return "#198754"
	case domain.StatusBlocked:
		return "#dc3545"
	default:
		return "#6c757d"
	}
}

func statusIcon(status domain.TaskStatus) string {
	switch status {
	case domain.StatusPending:
		return "○"
	case domain.StatusInProgress:
		return "⟳"
	case domain.StatusCompleted:
		return "✓"
	case domain.StatusBlocked:
		return "⛔"
	default:
		return "○"
	}
}
