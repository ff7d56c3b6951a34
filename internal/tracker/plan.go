package tracker

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/graph"
)

// PlanSelection chooses the tasks of a new plan version.
type PlanSelection struct {
	// TaskIDs lists tasks of the active plan to carry over. Ignored when All is set.
	TaskIDs []string
	// All carries over every task of the active plan.
	All bool
	// ExcludeCompleted drops completed tasks from the selection.
	ExcludeCompleted bool
	// IncludeDependencies adds every transitive dependency of the selection.
	IncludeDependencies bool
	// Label names the new version.
	Label string
}

// StatusChange is a task whose status differs between two plans.
type StatusChange struct {
	TaskID string
	From   domain.TaskStatus
	To     domain.TaskStatus
}

// PlanDiff lists the differences from plan A to plan B.
type PlanDiff struct {
	PlanA         string
	PlanB         string
	Added         []string
	Removed       []string
	StatusChanged []StatusChange
}

// Empty reports whether the plans are equivalent.
func (d *PlanDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.StatusChanged) == 0
}

// CreatePlanVersion snapshots a selection of the active plan into a new
// active plan. The previous plan becomes read-only history with its task
// statuses frozen. Tasks are shared by reference between versions.
func (t *Tracker) CreatePlanVersion(project string, sel PlanSelection) (*domain.Plan, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	var newID string
	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		active := st.ActivePlan()
		ids := sel.TaskIDs
		if sel.All {
			ids = active.TaskIDs
		}
		for _, id := range ids {
			if !active.Contains(id) {
				if _, ok := st.Tasks[id]; ok {
					return domain.New(domain.KindValidation, "task is not in the active plan", id)
				}
				return domain.New(domain.KindTaskNotFound, "unknown task", id)
			}
		}

		plan, err := t.newVersion(st, ids, sel)
		if err != nil {
			return err
		}
		newID = plan.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[tracker] Project %s now on plan v%d (%d tasks)", pid, st.Plans[newID].Version, len(st.Plans[newID].TaskIDs))
	return st.Plans[newID].Clone(), nil
}

// RestorePlan rolls a project back to an archived plan by activating a new
// version with the archived plan's task set.
func (t *Tracker) RestorePlan(project, planID string) (*domain.Plan, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	var newID string
	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		old, err := planOf(st, planID)
		if err != nil {
			return err
		}
		if !old.ReadOnly {
			return domain.New(domain.KindValidation, "plan is already active", planID)
		}
		plan, err := t.newVersion(st, old.TaskIDs, PlanSelection{
			IncludeDependencies: true,
			Label:               fmt.Sprintf("restore of v%d", old.Version),
		})
		if err != nil {
			return err
		}
		newID = plan.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Plans[newID].Clone(), nil
}

func (t *Tracker) newVersion(st *domain.ProjectState, ids []string, sel PlanSelection) (*domain.Plan, error) {
	active := st.ActivePlan()

	selected := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] || (sel.ExcludeCompleted && st.Tasks[id].Status == domain.StatusCompleted) {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}

	edges := make(graph.Edges, len(st.Tasks))
	for id, task := range st.Tasks {
		edges[id] = task.Dependencies
	}
	if sel.IncludeDependencies {
		selected = graph.Closure(edges, selected)
	}

	in := make(map[string]bool, len(selected))
	for _, id := range selected {
		in[id] = true
	}
	var missing []string
	for _, id := range selected {
		for _, dep := range edges[id] {
			if !in[dep] {
				missing = append(missing, dep)
			}
		}
	}
	if len(missing) > 0 {
		return nil, domain.New(domain.KindUnknownDependency, "selection leaves dependencies outside the new plan", missing...)
	}

	// Keep creation order so plan listings stay stable across versions.
	sort.SliceStable(selected, func(i, j int) bool {
		a, b := st.Tasks[selected[i]], st.Tasks[selected[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	now := t.now()
	frozen := make(map[string]domain.TaskStatus, len(active.TaskIDs))
	for _, id := range active.TaskIDs {
		frozen[id] = st.Tasks[id].Status
	}
	active.ReadOnly = true
	active.FrozenAt = &now
	active.FrozenStatus = frozen

	version := 0
	for _, p := range st.Plans {
		if p.Version > version {
			version = p.Version
		}
	}

	plan := &domain.Plan{
		ID:        t.newID("plan"),
		ProjectID: st.Project.ID,
		Version:   version + 1,
		Label:     strings.TrimSpace(sel.Label),
		CreatedAt: now,
		TaskIDs:   selected,
	}
	st.Plans[plan.ID] = plan
	st.Project.PlanHistory = append(st.Project.PlanHistory, active.ID)
	st.Project.ActivePlanID = plan.ID
	return plan, nil
}

// ListPlans returns the project's plans, oldest first.
func (t *Tracker) ListPlans(project string) ([]*domain.Plan, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}
	var out []*domain.Plan
	err = t.view(pid, func(st *domain.ProjectState) error {
		for _, p := range st.Plans {
			out = append(out, p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, err
}

// GetPlan returns a plan by id.
func (t *Tracker) GetPlan(planID string) (*domain.Plan, error) {
	pid, err := t.projectOfPlan(planID)
	if err != nil {
		return nil, err
	}
	var out *domain.Plan
	err = t.view(pid, func(st *domain.ProjectState) error {
		p, err := planOf(st, planID)
		if err != nil {
			return err
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// SwitchProject sets the process-wide current project. An unknown
// reference leaves the previous current project in place.
func (t *Tracker) SwitchProject(ref string) (*domain.Project, error) {
	t.mu.RLock()
	pid, err := t.resolveLocked(ref, false)
	t.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if err := t.setCurrent(pid); err != nil {
		return nil, err
	}
	return t.GetProject(pid)
}

// CurrentProject returns the current project.
func (t *Tracker) CurrentProject() (*domain.Project, error) {
	return t.GetProject("")
}

func (t *Tracker) setCurrent(pid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.projects[pid]; !ok {
		return domain.New(domain.KindProjectNotFound, "unknown project", pid)
	}
	if err := t.store.SaveCurrent(pid); err != nil {
		return domain.StorageFailure("save current project", err)
	}
	t.current = pid
	return nil
}

// DiffPlans compares two plans of the same project. Ids are ordered by
// topological position in the newer plan; ids present only in the older
// plan follow, in the older plan's topological order.
func (t *Tracker) DiffPlans(planA, planB string) (*PlanDiff, error) {
	pidA, err := t.projectOfPlan(planA)
	if err != nil {
		return nil, err
	}
	pidB, err := t.projectOfPlan(planB)
	if err != nil {
		return nil, err
	}
	if pidA != pidB {
		return nil, domain.New(domain.KindValidation, "plans belong to different projects", planA, planB)
	}

	diff := &PlanDiff{PlanA: planA, PlanB: planB}
	err = t.view(pidA, func(st *domain.ProjectState) error {
		a, b := st.Plans[planA], st.Plans[planB]
		if a == nil || b == nil {
			return domain.New(domain.KindPlanNotFound, "unknown plan", planA, planB)
		}
		newer, older := b, a
		if a.Version > b.Version {
			newer, older = a, b
		}

		newerOrder, err := orderedTasks(st, newer)
		if err != nil {
			return err
		}
		olderOrder, err := orderedTasks(st, older)
		if err != nil {
			return err
		}

		for _, task := range newerOrder {
			id := task.ID
			switch {
			case !a.Contains(id):
				diff.Added = append(diff.Added, id)
			case !b.Contains(id):
				diff.Removed = append(diff.Removed, id)
			default:
				from, to := st.StatusIn(a, id), st.StatusIn(b, id)
				if from != to {
					diff.StatusChanged = append(diff.StatusChanged, StatusChange{TaskID: id, From: from, To: to})
				}
			}
		}
		for _, task := range olderOrder {
			id := task.ID
			if newer.Contains(id) {
				continue
			}
			if !a.Contains(id) {
				diff.Added = append(diff.Added, id)
			} else {
				diff.Removed = append(diff.Removed, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diff, nil
}
