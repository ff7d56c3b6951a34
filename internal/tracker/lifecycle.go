package tracker

import (
	"fmt"
	"strings"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/graph"
)

// SplitOptions controls how Split wires the new subtasks.
type SplitOptions struct {
	// Sequential makes every subtask depend on the one before it.
	Sequential bool
	// ReplaceParent completes the parent once the subtasks exist.
	ReplaceParent bool
	// Summary is recorded on the parent when ReplaceParent is set.
	Summary string
}

// SplitResult holds the updated parent and the created subtasks.
type SplitResult struct {
	Parent   *domain.Task
	Subtasks []*domain.Task
}

// VerifyResult reports the outcome of a verification.
type VerifyResult struct {
	Task      *domain.Task
	Score     int
	Threshold int
	Passed    bool
}

// BulkResult is the outcome of one id of UpdateStatusBulk.
type BulkResult struct {
	TaskID string
	OK     bool
	Status domain.TaskStatus
	Kind   domain.ErrorKind
	Detail string
}

// Start moves a task from pending to in_progress.
func (t *Tracker) Start(id string) (*domain.Task, error) {
	return t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		return t.start(task)
	})
}

// Complete finishes an in_progress task whose dependencies are all completed.
func (t *Tracker) Complete(id, summary string) (*domain.Task, error) {
	return t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		return t.complete(st, task, summary)
	})
}

// Block pauses a pending or in_progress task.
func (t *Tracker) Block(id, reason string) (*domain.Task, error) {
	return t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		return t.block(task, reason)
	})
}

// Unblock returns a blocked task to pending.
func (t *Tracker) Unblock(id string) (*domain.Task, error) {
	return t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		return t.unblock(task)
	})
}

// AppendNote adds an audit note. It is the only change a completed task accepts.
func (t *Tracker) AppendNote(id, text string) (*domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Validationf("note text is required")
	}
	return t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		t.note(task, text)
		return nil
	})
}

// Verify scores an in_progress task. A score at or above the pass threshold
// completes it; a lower score is recorded and the task stays open.
func (t *Tracker) Verify(id string, score int, summary string) (*VerifyResult, error) {
	if score < 0 || score > 100 {
		return nil, domain.Validationf("score must be between 0 and 100, got %d", score)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, domain.Validationf("verification summary is required")
	}

	passed := score >= t.passScore
	task, err := t.mutateTask(id, func(st *domain.ProjectState, task *domain.Task) error {
		if task.Status != domain.StatusInProgress {
			return invalidTransition(task, "verify")
		}
		t.note(task, fmt.Sprintf("verification score %d/%d: %s", score, t.passScore, summary))
		if passed {
			return t.complete(st, task, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Task: task, Score: score, Threshold: t.passScore, Passed: passed}, nil
}

// Split creates subtasks of id in the same plan. Subtask dependencies may
// name siblings or existing tasks; every subtask inherits the parent's
// dependencies, and tasks that depended on the parent also wait for the
// subtasks. Either every subtask is created and the parent updated, or
// nothing changes.
func (t *Tracker) Split(id string, drafts []domain.TaskDraft, opts SplitOptions) (*SplitResult, error) {
	if len(drafts) == 0 {
		return nil, domain.Validationf("at least one subtask is required")
	}
	names := make(map[string]bool, len(drafts))
	for i := range drafts {
		if err := drafts[i].Validate(); err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i, err)
		}
		name := strings.TrimSpace(drafts[i].Name)
		if names[name] {
			return nil, domain.Validationf("duplicate subtask name %q", name)
		}
		names[name] = true
	}

	pid, err := t.projectOfTask(id)
	if err != nil {
		return nil, err
	}

	var subIDs []string
	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		plan := st.ActivePlan()
		parent, err := activeTask(st, plan, id)
		if err != nil {
			return err
		}
		if parent.Status != domain.StatusPending && parent.Status != domain.StatusInProgress {
			return invalidTransition(parent, "split")
		}

		siblings := make(map[string]string, len(drafts))
		for _, d := range drafts {
			siblings[strings.TrimSpace(d.Name)] = t.newID("task")
		}

		edges := planEdges(st, plan)
		var changed []string
		for i, d := range drafts {
			subID := siblings[strings.TrimSpace(d.Name)]
			refs := append(append([]string{}, parent.Dependencies...), d.Dependencies...)
			if opts.Sequential && i > 0 {
				refs = append(refs, subIDs[i-1])
			}
			deps, err := resolveDeps(st, plan, refs, siblings)
			if err != nil {
				return fmt.Errorf("subtask %d: %w", i, err)
			}

			sub := t.newTask(st, plan, d, deps)
			sub.ID = subID
			sub.ParentID = parent.ID
			st.Tasks[subID] = sub
			plan.TaskIDs = append(plan.TaskIDs, subID)
			edges[subID] = deps
			subIDs = append(subIDs, subID)
			changed = append(changed, subID)

			if t.splitHook != nil {
				if err := t.splitHook(i); err != nil {
					return err
				}
			}
		}

		for _, dependent := range graph.Dependents(graph.NodesOf(st.PlanTasks(plan)), parent.ID) {
			task := st.Tasks[dependent]
			if task.ParentID == parent.ID {
				continue
			}
			task.Dependencies = appendMissing(task.Dependencies, subIDs)
			edges[dependent] = task.Dependencies
			changed = append(changed, dependent)
			t.touch(task)
		}

		if err := graph.CheckEdges(edges, changed); err != nil {
			return err
		}

		t.note(parent, "split into subtasks: "+strings.Join(subIDs, ", "))
		if opts.ReplaceParent {
			summary := strings.TrimSpace(opts.Summary)
			if summary == "" {
				summary = "replaced by subtasks " + strings.Join(subIDs, ", ")
			}
			if parent.Status == domain.StatusPending {
				if err := t.start(parent); err != nil {
					return err
				}
			}
			return t.complete(st, parent, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &SplitResult{Parent: st.Tasks[id].Clone()}
	for _, sid := range subIDs {
		result.Subtasks = append(result.Subtasks, st.Tasks[sid].Clone())
	}
	return result, nil
}

// UpdateStatusBulk moves each task to status using the single-task rules.
// Every id gets its own result; failures do not stop the batch.
func (t *Tracker) UpdateStatusBulk(project string, ids []string, status domain.TaskStatus) ([]BulkResult, error) {
	if len(ids) == 0 {
		return nil, domain.Validationf("at least one task id is required")
	}
	pid, err := t.resolveProject(project)
	if err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(ids))
	_, err = t.mutate(pid, func(st *domain.ProjectState) error {
		results = results[:0]
		for _, id := range ids {
			r := BulkResult{TaskID: id}
			task, ok := st.Tasks[id]
			if !ok {
				r.Kind = domain.KindTaskNotFound
				r.Detail = "unknown task in project " + st.Project.Name
				results = append(results, r)
				continue
			}
			if err := t.transition(st, task, status); err != nil {
				r.Kind = domain.KindOf(err)
				r.Detail = err.Error()
				r.Status = task.Status
			} else {
				r.OK = true
				r.Status = task.Status
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// transition applies the single-task rule that leads to target. A failed
// transition leaves the task untouched.
func (t *Tracker) transition(st *domain.ProjectState, task *domain.Task, target domain.TaskStatus) error {
	switch target {
	case domain.StatusInProgress:
		return t.start(task)
	case domain.StatusCompleted:
		return t.complete(st, task, "")
	case domain.StatusBlocked:
		return t.block(task, "")
	case domain.StatusPending:
		return t.unblock(task)
	}
	return domain.Validationf("unknown status %q", target)
}

func (t *Tracker) start(task *domain.Task) error {
	if task.Status != domain.StatusPending {
		return invalidTransition(task, "start")
	}
	task.Status = domain.StatusInProgress
	t.touch(task)
	return nil
}

func (t *Tracker) complete(st *domain.ProjectState, task *domain.Task, summary string) error {
	if task.Status != domain.StatusInProgress {
		return invalidTransition(task, "complete")
	}
	var unmet []string
	for _, dep := range task.Dependencies {
		if d, ok := st.Tasks[dep]; !ok || d.Status != domain.StatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	if len(unmet) > 0 {
		return domain.New(domain.KindDependenciesUnmet, "task "+task.ID+" has unfinished dependencies", unmet...)
	}

	now := t.now()
	task.Status = domain.StatusCompleted
	task.Summary = strings.TrimSpace(summary)
	task.CompletedAt = &now
	task.BlockedReason = ""
	t.touch(task)
	return nil
}

func (t *Tracker) block(task *domain.Task, reason string) error {
	if task.Status != domain.StatusPending && task.Status != domain.StatusInProgress {
		return invalidTransition(task, "block")
	}
	task.Status = domain.StatusBlocked
	task.BlockedReason = strings.TrimSpace(reason)
	t.touch(task)
	return nil
}

func (t *Tracker) unblock(task *domain.Task) error {
	if task.Status != domain.StatusBlocked {
		return invalidTransition(task, "unblock")
	}
	task.Status = domain.StatusPending
	task.BlockedReason = ""
	t.touch(task)
	return nil
}

func invalidTransition(task *domain.Task, action string) error {
	return domain.New(domain.KindInvalidTransition,
		fmt.Sprintf("cannot %s a task that is %s", action, task.Status), task.ID)
}

func appendMissing(list, add []string) []string {
	out := append([]string{}, list...)
	for _, a := range add {
		found := false
		for _, l := range out {
			if l == a {
				found = true
				break
			}
		}
		if !found {
			out = append(out, a)
		}
	}
	return out
}
