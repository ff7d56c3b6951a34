package tracker

import (
	"sort"
	"strings"

	"github.com/cexll/taskgraph/internal/domain"
)

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	PlanID   string
	Statuses []domain.TaskStatus
	ParentID string
	Keyword  string
}

func (f TaskFilter) match(task *domain.Task) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if task.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.ParentID != "" && task.ParentID != f.ParentID {
		return false
	}
	if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
		if !strings.Contains(strings.ToLower(task.Name), kw) &&
			!strings.Contains(strings.ToLower(task.Description), kw) {
			return false
		}
	}
	return true
}

// Summary aggregates a project's active plan.
type Summary struct {
	ProjectID   string
	ProjectName string
	PlanID      string
	PlanVersion int
	Total       int
	Ready       int
	Counts      map[domain.TaskStatus]int
}

// GetTask returns a task by id.
func (t *Tracker) GetTask(id string) (*domain.Task, error) {
	pid, err := t.projectOfTask(id)
	if err != nil {
		return nil, err
	}
	var out *domain.Task
	err = t.view(pid, func(st *domain.ProjectState) error {
		task, ok := st.Tasks[id]
		if !ok {
			return domain.New(domain.KindTaskNotFound, "unknown task", id)
		}
		out = task.Clone()
		return nil
	})
	return out, err
}

// ListTasks returns the tasks of a plan (default: active) matching filter,
// in topological order.
func (t *Tracker) ListTasks(project string, filter TaskFilter) ([]*domain.Task, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}
	var out []*domain.Task
	err = t.view(pid, func(st *domain.ProjectState) error {
		plan, err := planOf(st, filter.PlanID)
		if err != nil {
			return err
		}
		ordered, err := orderedTasks(st, plan)
		if err != nil {
			return err
		}
		for _, task := range ordered {
			if filter.match(task) {
				out = append(out, task.Clone())
			}
		}
		return nil
	})
	return out, err
}

// SearchTasks looks through every task the project has ever had, including
// tasks only listed by archived plans. query matches an exact id or a
// case-insensitive substring of name, description or notes. Results are
// ordered by creation time.
func (t *Tracker) SearchTasks(project, query string) ([]*domain.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Validationf("search query is required")
	}
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var out []*domain.Task
	err = t.view(pid, func(st *domain.ProjectState) error {
		for _, task := range st.Tasks {
			if task.ID == query ||
				strings.Contains(strings.ToLower(task.Name), needle) ||
				strings.Contains(strings.ToLower(task.Description), needle) ||
				strings.Contains(strings.ToLower(task.Notes), needle) {
				out = append(out, task.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// ReadyTasks returns pending tasks of the active plan whose dependencies
// are all completed, in topological order.
func (t *Tracker) ReadyTasks(project string) ([]*domain.Task, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}
	var out []*domain.Task
	err = t.view(pid, func(st *domain.ProjectState) error {
		ordered, err := orderedTasks(st, st.ActivePlan())
		if err != nil {
			return err
		}
		for _, task := range ordered {
			if isReady(st, task) {
				out = append(out, task.Clone())
			}
		}
		return nil
	})
	return out, err
}

// Summarize counts the active plan's tasks per status.
func (t *Tracker) Summarize(project string) (*Summary, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}
	var out *Summary
	err = t.view(pid, func(st *domain.ProjectState) error {
		plan := st.ActivePlan()
		s := &Summary{
			ProjectID:   st.Project.ID,
			ProjectName: st.Project.Name,
			PlanID:      plan.ID,
			PlanVersion: plan.Version,
			Counts:      make(map[domain.TaskStatus]int, len(domain.Statuses)),
		}
		for _, status := range domain.Statuses {
			s.Counts[status] = 0
		}
		for _, task := range st.PlanTasks(plan) {
			s.Total++
			s.Counts[task.Status]++
			if isReady(st, task) {
				s.Ready++
			}
		}
		out = s
		return nil
	})
	return out, err
}

func isReady(st *domain.ProjectState, task *domain.Task) bool {
	if task.Status != domain.StatusPending {
		return false
	}
	for _, dep := range task.Dependencies {
		if d, ok := st.Tasks[dep]; !ok || d.Status != domain.StatusCompleted {
			return false
		}
	}
	return true
}
