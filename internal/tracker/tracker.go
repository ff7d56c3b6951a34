// Package tracker is the task graph engine: projects, plans, tasks and the
// operations an agent performs on them.
//
// Every project is an isolated unit. Mutations of one project are
// serialized by a per-project write lock and run as in-memory transactions:
// the current state is cloned, the mutation is applied to the clone, the
// clone is persisted and only then published. On any error the clone is
// discarded, so neither readers nor the durable store observe a partial
// change. Queries take the per-project read lock.
//
// Operations take an explicit project reference (id or name). An empty
// reference falls back to the process-wide current project set by
// SwitchProject; callers that need determinism under concurrency should
// always pass the reference explicitly.
package tracker

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cexll/taskgraph/internal/concurrency"
	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/store"
)

// DefaultPassScore is the verification score at or above which a task is
// completed by Verify.
const DefaultPassScore = 80

// Options tunes a Tracker
type Options struct {
	// PassScore is the verification threshold (0-100). Zero means DefaultPassScore.
	PassScore int
	// Now overrides the clock.
	Now func() time.Time
	// NewID overrides identifier generation.
	NewID func(prefix string) string
}

// Tracker owns all projects and serializes access to them.
type Tracker struct {
	store     store.Store
	locks     *concurrency.Manager
	passScore int
	now       func() time.Time
	newID     func(prefix string) string

	// createMu serializes operations that must see every project name.
	createMu sync.Mutex

	mu        sync.RWMutex
	projects  map[string]*domain.ProjectState
	taskIndex map[string]string // task id -> project id
	planIndex map[string]string // plan id -> project id
	current   string

	// splitHook runs after each subtask insertion. Tests use it to inject failures.
	splitHook func(i int) error
}

// New loads every project from st and returns a ready Tracker.
func New(st store.Store, opts Options) (*Tracker, error) {
	t := &Tracker{
		store:     st,
		locks:     concurrency.NewManager(),
		passScore: opts.PassScore,
		now:       opts.Now,
		newID:     opts.NewID,
		projects:  make(map[string]*domain.ProjectState),
		taskIndex: make(map[string]string),
		planIndex: make(map[string]string),
	}
	if t.passScore <= 0 {
		t.passScore = DefaultPassScore
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.newID == nil {
		t.newID = func(prefix string) string { return prefix + "-" + uuid.NewString() }
	}

	states, err := st.LoadAll()
	if err != nil {
		return nil, domain.StorageFailure("load projects", err)
	}
	for _, s := range states {
		t.index(nil, s)
	}

	current, err := st.LoadCurrent()
	if err != nil {
		return nil, domain.StorageFailure("load current project", err)
	}
	if _, ok := t.projects[current]; ok {
		t.current = current
	} else if current != "" {
		log.Printf("[tracker] Ignoring unknown current project %s", current)
	}

	log.Printf("[tracker] Loaded %d projects", len(states))
	return t, nil
}

// PassScore returns the verification threshold.
func (t *Tracker) PassScore() int {
	return t.passScore
}

// index replaces old with next in the lookup maps. Caller holds t.mu or is
// the constructor.
func (t *Tracker) index(old, next *domain.ProjectState) {
	id := next.Project.ID
	if old != nil {
		for tid := range old.Tasks {
			if _, ok := next.Tasks[tid]; !ok {
				delete(t.taskIndex, tid)
			}
		}
		for pid := range old.Plans {
			if _, ok := next.Plans[pid]; !ok {
				delete(t.planIndex, pid)
			}
		}
	}
	for tid := range next.Tasks {
		t.taskIndex[tid] = id
	}
	for pid := range next.Plans {
		t.planIndex[pid] = id
	}
	t.projects[id] = next
}

func (t *Tracker) unindex(st *domain.ProjectState) {
	for tid := range st.Tasks {
		delete(t.taskIndex, tid)
	}
	for pid := range st.Plans {
		delete(t.planIndex, pid)
	}
	delete(t.projects, st.Project.ID)
	if t.current == st.Project.ID {
		t.current = ""
	}
}

// resolveProject maps a reference (id, name, or "" for current) to a project id.
func (t *Tracker) resolveProject(ref string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(ref, true)
}

func (t *Tracker) resolveLocked(ref string, fallback bool) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if !fallback || t.current == "" {
			return "", domain.New(domain.KindProjectNotFound, "no project given and no current project selected")
		}
		return t.current, nil
	}
	if _, ok := t.projects[ref]; ok {
		return ref, nil
	}
	for id, st := range t.projects {
		if strings.EqualFold(st.Project.Name, ref) {
			return id, nil
		}
	}
	return "", domain.New(domain.KindProjectNotFound, "unknown project", ref)
}

func (t *Tracker) state(projectID string) (*domain.ProjectState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.projects[projectID]
	if !ok {
		return nil, domain.New(domain.KindProjectNotFound, "unknown project", projectID)
	}
	return st, nil
}

func (t *Tracker) projectOfTask(taskID string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pid, ok := t.taskIndex[taskID]
	if !ok {
		return "", domain.New(domain.KindTaskNotFound, "unknown task", taskID)
	}
	return pid, nil
}

func (t *Tracker) projectOfPlan(planID string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pid, ok := t.planIndex[planID]
	if !ok {
		return "", domain.New(domain.KindPlanNotFound, "unknown plan", planID)
	}
	return pid, nil
}

// mutate applies fn to a copy of the project state and commits it.
func (t *Tracker) mutate(projectID string, fn func(st *domain.ProjectState) error) (*domain.ProjectState, error) {
	unlock := t.locks.Lock(projectID)
	defer unlock()

	cur, err := t.state(projectID)
	if err != nil {
		return nil, err
	}

	draft := cur.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.Project.UpdatedAt = t.now()

	if err := t.store.Save(draft); err != nil {
		log.Printf("[tracker] Failed to save project %s: %v", projectID, err)
		return nil, domain.StorageFailure("save project", err)
	}

	t.mu.Lock()
	t.index(cur, draft)
	t.mu.Unlock()
	return draft, nil
}

// view runs fn against the published state under the project read lock.
func (t *Tracker) view(projectID string, fn func(st *domain.ProjectState) error) error {
	unlock := t.locks.RLock(projectID)
	defer unlock()

	st, err := t.state(projectID)
	if err != nil {
		return err
	}
	return fn(st)
}

// mutateTask locates the project owning taskID and mutates that task.
func (t *Tracker) mutateTask(taskID string, fn func(st *domain.ProjectState, task *domain.Task) error) (*domain.Task, error) {
	pid, err := t.projectOfTask(taskID)
	if err != nil {
		return nil, err
	}
	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		task, ok := st.Tasks[taskID]
		if !ok {
			return domain.New(domain.KindTaskNotFound, "unknown task", taskID)
		}
		return fn(st, task)
	})
	if err != nil {
		return nil, err
	}
	return st.Tasks[taskID].Clone(), nil
}

func (t *Tracker) touch(task *domain.Task) {
	task.UpdatedAt = t.now()
}

func (t *Tracker) note(task *domain.Task, text string) {
	task.AuditNotes = append(task.AuditNotes, domain.AuditNote{Timestamp: t.now(), Text: text})
	t.touch(task)
}

func cloneTasks(tasks []*domain.Task) []*domain.Task {
	out := make([]*domain.Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Clone())
	}
	return out
}
