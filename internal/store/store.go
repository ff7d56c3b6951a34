// Package store persists project states.
//
// A project state (project, plans and tasks) is always written as one unit,
// so a reader of the durable copy never observes a half-applied mutation.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cexll/taskgraph/internal/domain"
)

// Store is the durable backing of the tracker.
type Store interface {
	// LoadAll returns every persisted project state.
	LoadAll() ([]*domain.ProjectState, error)
	// Save replaces the persisted state of one project.
	Save(state *domain.ProjectState) error
	// Delete removes a project and everything it owns.
	Delete(projectID string) error
	// LoadCurrent returns the persisted current-project pointer ("" if unset).
	LoadCurrent() (string, error)
	// SaveCurrent persists the current-project pointer.
	SaveCurrent(projectID string) error
}

// MemoryStore keeps states in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*domain.ProjectState
	current  string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*domain.ProjectState),
	}
}

// LoadAll returns copies of all states, ordered by project creation time.
func (s *MemoryStore) LoadAll() ([]*domain.ProjectState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*domain.ProjectState, 0, len(s.projects))
	for _, st := range s.projects {
		states = append(states, st.Clone())
	}
	sortStates(states)
	return states, nil
}

// Save stores a copy of the state
func (s *MemoryStore) Save(state *domain.ProjectState) error {
	if state == nil || state.Project == nil || state.Project.ID == "" {
		return fmt.Errorf("project ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[state.Project.ID] = state.Clone()
	return nil
}

// Delete removes a project
func (s *MemoryStore) Delete(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[projectID]; !exists {
		return fmt.Errorf("project not found: %s", projectID)
	}
	delete(s.projects, projectID)
	if s.current == projectID {
		s.current = ""
	}
	return nil
}

// LoadCurrent returns the current-project pointer
func (s *MemoryStore) LoadCurrent() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// SaveCurrent sets the current-project pointer
func (s *MemoryStore) SaveCurrent(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = projectID
	return nil
}

func sortStates(states []*domain.ProjectState) {
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i].Project, states[j].Project
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
