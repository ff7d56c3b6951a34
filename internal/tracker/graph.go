package tracker

import (
	"strings"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/graph"
)

// RemovePolicy decides what happens to tasks that depend on a removed task.
type RemovePolicy string

const (
	// RemoveStrict refuses to remove a task that still has dependents.
	RemoveStrict RemovePolicy = "strict"
	// RemoveDetach strips the removed task from its dependents' dependency lists.
	RemoveDetach RemovePolicy = "detach"
	// RemoveCascade also removes every transitive dependent.
	RemoveCascade RemovePolicy = "cascade"
)

// ParseRemovePolicy converts user input into a RemovePolicy. Empty input is strict.
func ParseRemovePolicy(s string) (RemovePolicy, error) {
	switch RemovePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RemoveStrict:
		return RemoveStrict, nil
	case RemoveDetach:
		return RemoveDetach, nil
	case RemoveCascade:
		return RemoveCascade, nil
	}
	return "", domain.Validationf("unknown remove policy %q", s)
}

// TaskPatch lists task fields to change; nil fields are left alone.
type TaskPatch struct {
	Name                 *string
	Description          *string
	Notes                *string
	Dependencies         *[]string
	RelatedFiles         *[]domain.RelatedFile
	ImplementationGuide  *string
	VerificationCriteria *string
}

func (p TaskPatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Notes == nil && p.Dependencies == nil &&
		p.RelatedFiles == nil && p.ImplementationGuide == nil && p.VerificationCriteria == nil
}

// RemoveResult reports what a removal touched.
type RemoveResult struct {
	Removed  []string
	Detached []string
}

// AddTask validates draft and inserts it into the project's active plan.
func (t *Tracker) AddTask(project string, draft domain.TaskDraft) (*domain.Task, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	var id string
	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		plan := st.ActivePlan()
		deps, err := resolveDeps(st, plan, draft.Dependencies, nil)
		if err != nil {
			return err
		}

		task := t.newTask(st, plan, draft, deps)
		id = task.ID

		edges := planEdges(st, plan)
		edges[id] = deps
		if err := graph.CheckEdges(edges, []string{id}); err != nil {
			return err
		}

		st.Tasks[id] = task
		plan.TaskIDs = append(plan.TaskIDs, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Tasks[id].Clone(), nil
}

func (t *Tracker) newTask(st *domain.ProjectState, plan *domain.Plan, d domain.TaskDraft, deps []string) *domain.Task {
	now := t.now()
	files := append([]domain.RelatedFile{}, d.RelatedFiles...)
	return &domain.Task{
		ID:                   t.newID("task"),
		ProjectID:            st.Project.ID,
		PlanID:               plan.ID,
		Name:                 strings.TrimSpace(d.Name),
		Description:          strings.TrimSpace(d.Description),
		Notes:                d.Notes,
		Status:               domain.StatusPending,
		Dependencies:         deps,
		RelatedFiles:         files,
		ImplementationGuide:  d.ImplementationGuide,
		VerificationCriteria: d.VerificationCriteria,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// RemoveTask removes a task from the active plan according to policy.
// The task record itself is kept while an archived plan still lists it.
func (t *Tracker) RemoveTask(project, id string, policy RemovePolicy) (*RemoveResult, error) {
	if policy == "" {
		policy = RemoveStrict
	}
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	result := &RemoveResult{}
	_, err = t.mutate(pid, func(st *domain.ProjectState) error {
		plan := st.ActivePlan()
		task, err := activeTask(st, plan, id)
		if err != nil {
			return err
		}
		if task.Status == domain.StatusCompleted {
			return domain.New(domain.KindInvalidTransition, "completed tasks cannot be removed", id)
		}

		nodes := graph.NodesOf(st.PlanTasks(plan))
		dependents := graph.Dependents(nodes, id)
		remove := []string{id}

		switch policy {
		case RemoveStrict:
			if len(dependents) > 0 {
				return domain.New(domain.KindHasDependents, "other tasks depend on "+id, dependents...)
			}
		case RemoveDetach:
			result.Detached = dependents
		case RemoveCascade:
			all := graph.TransitiveDependents(nodes, id)
			for _, d := range all {
				if st.Tasks[d].Status == domain.StatusCompleted {
					return domain.New(domain.KindInvalidTransition, "cascade would remove a completed task", d)
				}
			}
			remove = append(remove, all...)
		default:
			return domain.Validationf("unknown remove policy %q", policy)
		}

		gone := make(map[string]bool, len(remove))
		for _, r := range remove {
			gone[r] = true
		}
		kept := plan.TaskIDs[:0:0]
		for _, tid := range plan.TaskIDs {
			if !gone[tid] {
				kept = append(kept, tid)
			}
		}
		plan.TaskIDs = kept

		for _, tid := range plan.TaskIDs {
			other := st.Tasks[tid]
			deps := other.Dependencies[:0:0]
			for _, dep := range other.Dependencies {
				if !gone[dep] {
					deps = append(deps, dep)
				}
			}
			if len(deps) != len(other.Dependencies) {
				other.Dependencies = deps
				t.touch(other)
			}
		}

		for _, r := range remove {
			if !listedByAnyPlan(st, r) {
				delete(st.Tasks, r)
			}
		}
		result.Removed = remove
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTask applies patch to a task of the active plan. Dependency changes
// are re-resolved and the full candidate edge set is checked for cycles.
func (t *Tracker) UpdateTask(project, id string, patch TaskPatch) (*domain.Task, error) {
	if patch.empty() {
		return nil, domain.Validationf("nothing to update")
	}
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		plan := st.ActivePlan()
		task, err := activeTask(st, plan, id)
		if err != nil {
			return err
		}
		if task.Status == domain.StatusCompleted {
			return domain.New(domain.KindInvalidTransition, "completed tasks only accept audit notes", id)
		}

		if patch.Name != nil {
			if err := domain.ValidateName(*patch.Name); err != nil {
				return err
			}
			task.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			if err := domain.ValidateDescription(*patch.Description); err != nil {
				return err
			}
			task.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Notes != nil {
			task.Notes = *patch.Notes
		}
		if patch.RelatedFiles != nil {
			if err := domain.ValidateRelatedFiles(*patch.RelatedFiles); err != nil {
				return err
			}
			task.RelatedFiles = append([]domain.RelatedFile{}, *patch.RelatedFiles...)
		}
		if patch.ImplementationGuide != nil {
			task.ImplementationGuide = *patch.ImplementationGuide
		}
		if patch.VerificationCriteria != nil {
			task.VerificationCriteria = *patch.VerificationCriteria
		}
		if patch.Dependencies != nil {
			deps, err := resolveDeps(st, plan, *patch.Dependencies, nil)
			if err != nil {
				return err
			}
			edges := planEdges(st, plan)
			edges[id] = deps
			if err := graph.CheckEdges(edges, []string{id}); err != nil {
				return err
			}
			task.Dependencies = deps
		}
		t.touch(task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.Tasks[id].Clone(), nil
}

// TopologicalOrder returns the tasks of a plan ("" for the active plan) in
// dependency order.
func (t *Tracker) TopologicalOrder(project, planID string) ([]*domain.Task, error) {
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}
	var out []*domain.Task
	err = t.view(pid, func(st *domain.ProjectState) error {
		plan, err := planOf(st, planID)
		if err != nil {
			return err
		}
		ordered, err := orderedTasks(st, plan)
		if err != nil {
			return err
		}
		out = cloneTasks(ordered)
		return nil
	})
	return out, err
}

// resolveDeps maps dependency references to task ids of plan. A reference
// is a task id in the plan, the name of a sibling being created in the same
// call, or the exact name of a task in the plan. Duplicates are dropped.
func resolveDeps(st *domain.ProjectState, plan *domain.Plan, refs []string, siblings map[string]string) ([]string, error) {
	deps := make([]string, 0, len(refs))
	seen := make(map[string]bool)
	var unknown []string

	for _, raw := range refs {
		ref := strings.TrimSpace(raw)
		if ref == "" {
			continue
		}
		id, err := resolveDep(st, plan, ref, siblings)
		if err != nil {
			return nil, err
		}
		if id == "" {
			unknown = append(unknown, ref)
			continue
		}
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}

	if len(unknown) > 0 {
		return nil, domain.New(domain.KindUnknownDependency, "dependencies must exist in the same plan", unknown...)
	}
	return deps, nil
}

func resolveDep(st *domain.ProjectState, plan *domain.Plan, ref string, siblings map[string]string) (string, error) {
	if plan.Contains(ref) {
		return ref, nil
	}
	sibling, isSibling := siblings[ref]
	var match string
	for _, tid := range plan.TaskIDs {
		if tid == sibling || st.Tasks[tid].Name != ref {
			continue
		}
		if match != "" || isSibling {
			return "", domain.Validationf("dependency name %q is ambiguous", ref)
		}
		match = tid
	}
	if isSibling {
		return sibling, nil
	}
	return match, nil
}

// activeTask returns the task if it belongs to the active plan. Tasks only
// listed by archived plans are read-only.
func activeTask(st *domain.ProjectState, plan *domain.Plan, id string) (*domain.Task, error) {
	task, ok := st.Tasks[id]
	if !ok {
		return nil, domain.New(domain.KindTaskNotFound, "unknown task", id)
	}
	if !plan.Contains(id) {
		return nil, domain.New(domain.KindValidation, "task is only listed by read-only plans", id)
	}
	return task, nil
}

func planEdges(st *domain.ProjectState, plan *domain.Plan) graph.Edges {
	edges := make(graph.Edges, len(plan.TaskIDs))
	for _, tid := range plan.TaskIDs {
		edges[tid] = st.Tasks[tid].Dependencies
	}
	return edges
}

func orderedTasks(st *domain.ProjectState, plan *domain.Plan) ([]*domain.Task, error) {
	tasks := st.PlanTasks(plan)
	order, err := graph.TopologicalOrder(graph.NodesOf(tasks))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Task, 0, len(order))
	for _, id := range order {
		out = append(out, st.Tasks[id])
	}
	return out, nil
}

func planOf(st *domain.ProjectState, planID string) (*domain.Plan, error) {
	if planID == "" {
		return st.ActivePlan(), nil
	}
	plan, ok := st.Plans[planID]
	if !ok {
		return nil, domain.New(domain.KindPlanNotFound, "plan does not belong to project "+st.Project.ID, planID)
	}
	return plan, nil
}

func listedByAnyPlan(st *domain.ProjectState, taskID string) bool {
	for _, p := range st.Plans {
		if p.Contains(taskID) {
			return true
		}
	}
	return false
}
