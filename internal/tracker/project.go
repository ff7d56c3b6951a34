package tracker

import (
	"log"
	"sort"
	"strings"

	"github.com/cexll/taskgraph/internal/domain"
)

// ProjectPatch lists project fields to change; nil fields are left alone.
type ProjectPatch struct {
	Name        *string
	Description *string
}

// CreateProject creates a project with an empty first plan. Names are
// unique ignoring case. When no current project is selected the new project
// becomes current.
func (t *Tracker) CreateProject(name, description string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	t.createMu.Lock()
	defer t.createMu.Unlock()

	if err := t.checkNameFree(name, ""); err != nil {
		return nil, err
	}

	now := t.now()
	project := &domain.Project{
		ID:          t.newID("proj"),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
		PlanHistory: []string{},
	}
	plan := &domain.Plan{
		ID:        t.newID("plan"),
		ProjectID: project.ID,
		Version:   1,
		CreatedAt: now,
		TaskIDs:   []string{},
	}
	project.ActivePlanID = plan.ID

	st := domain.NewProjectState(project)
	st.Plans[plan.ID] = plan

	if err := t.store.Save(st); err != nil {
		return nil, domain.StorageFailure("save project", err)
	}

	t.mu.Lock()
	t.index(nil, st)
	makeCurrent := t.current == ""
	t.mu.Unlock()

	if makeCurrent {
		if err := t.setCurrent(project.ID); err != nil {
			log.Printf("[tracker] Failed to select new project %s: %v", project.ID, err)
		}
	}

	log.Printf("[tracker] Created project %s (%s)", project.ID, project.Name)
	p := *project
	return &p, nil
}

func (t *Tracker) checkNameFree(name, exceptID string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, st := range t.projects {
		if id != exceptID && strings.EqualFold(st.Project.Name, name) {
			return domain.New(domain.KindDuplicateName, "project name already in use: "+name, id)
		}
	}
	return nil
}

// GetProject returns a project by id or name ("" for the current project).
func (t *Tracker) GetProject(ref string) (*domain.Project, error) {
	pid, err := t.resolveProject(ref)
	if err != nil {
		return nil, err
	}
	var out domain.Project
	err = t.view(pid, func(st *domain.ProjectState) error {
		out = *st.Project
		out.PlanHistory = append([]string{}, st.Project.PlanHistory...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns every project ordered by creation time.
func (t *Tracker) ListProjects() []*domain.Project {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*domain.Project, 0, len(t.projects))
	for _, st := range t.projects {
		p := *st.Project
		p.PlanHistory = append([]string{}, st.Project.PlanHistory...)
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateProject renames a project or changes its description.
func (t *Tracker) UpdateProject(ref string, patch ProjectPatch) (*domain.Project, error) {
	if patch.Name == nil && patch.Description == nil {
		return nil, domain.Validationf("nothing to update")
	}

	t.createMu.Lock()
	defer t.createMu.Unlock()

	pid, err := t.resolveProject(ref)
	if err != nil {
		return nil, err
	}

	var name string
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
		if err := domain.ValidateName(name); err != nil {
			return nil, err
		}
		if err := t.checkNameFree(name, pid); err != nil {
			return nil, err
		}
	}

	st, err := t.mutate(pid, func(st *domain.ProjectState) error {
		if patch.Name != nil {
			st.Project.Name = name
		}
		if patch.Description != nil {
			st.Project.Description = strings.TrimSpace(*patch.Description)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p := *st.Project
	return &p, nil
}

// DeleteProject irreversibly removes a project with all its plans and tasks.
func (t *Tracker) DeleteProject(ref string) error {
	t.createMu.Lock()
	defer t.createMu.Unlock()

	t.mu.RLock()
	pid, err := t.resolveLocked(ref, false)
	t.mu.RUnlock()
	if err != nil {
		return err
	}

	unlock := t.locks.Lock(pid)
	defer unlock()

	st, err := t.state(pid)
	if err != nil {
		return err
	}
	// t.mu is held across the store call so that setCurrent cannot write
	// the pointer between the store clearing it and unindex.
	t.mu.Lock()
	if err := t.store.Delete(pid); err != nil {
		t.mu.Unlock()
		return domain.StorageFailure("delete project", err)
	}
	t.unindex(st)
	t.mu.Unlock()
	t.locks.Forget(pid)

	log.Printf("[tracker] Deleted project %s (%d plans, %d tasks)", pid, len(st.Plans), len(st.Tasks))
	return nil
}
