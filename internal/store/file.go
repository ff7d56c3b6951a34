package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cexll/taskgraph/internal/domain"
)

const (
	projectFile = "project.json"
	currentFile = "current.json"
)

// FileStore keeps one directory per project under a root directory:
//
//	<root>/current.json
//	<root>/<project-id>/project.json
//
// Every write goes to a temporary file that is renamed into place.
type FileStore struct {
	root string
	mu   sync.Mutex // serializes writes to current.json
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the data directory
func (s *FileStore) Root() string {
	return s.root
}

// LoadAll reads every project directory
func (s *FileStore) LoadAll() ([]*domain.ProjectState, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var states []*domain.ProjectState
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(s.root, entry.Name(), projectFile)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var st domain.ProjectState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if st.Project == nil || st.Project.ID != entry.Name() {
			return nil, fmt.Errorf("project file %s does not match its directory", path)
		}
		if st.Plans == nil {
			st.Plans = make(map[string]*domain.Plan)
		}
		if st.Tasks == nil {
			st.Tasks = make(map[string]*domain.Task)
		}
		states = append(states, &st)
	}

	sortStates(states)
	return states, nil
}

// Save writes the project state atomically
func (s *FileStore) Save(state *domain.ProjectState) error {
	if state == nil || state.Project == nil || state.Project.ID == "" {
		return fmt.Errorf("project ID cannot be empty")
	}
	if err := validID(state.Project.ID); err != nil {
		return err
	}

	dir := filepath.Join(s.root, state.Project.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project %s: %w", state.Project.ID, err)
	}
	return atomicWrite(filepath.Join(dir, projectFile), data)
}

// Delete removes the project directory
func (s *FileStore) Delete(projectID string) error {
	if err := validID(projectID); err != nil {
		return err
	}
	dir := filepath.Join(s.root, projectID)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("project not found: %s", projectID)
	}

	// Clear the pointer first so a failure leaves the project intact.
	current, err := s.LoadCurrent()
	if err != nil {
		return err
	}
	if current == projectID {
		if err := s.SaveCurrent(""); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	return nil
}

type currentPointer struct {
	ProjectID string `json:"project_id"`
}

// LoadCurrent reads the current-project pointer
func (s *FileStore) LoadCurrent() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current project: %w", err)
	}
	var ptr currentPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return "", fmt.Errorf("failed to parse current project: %w", err)
	}
	return ptr.ProjectID, nil
}

// SaveCurrent writes the current-project pointer
func (s *FileStore) SaveCurrent(projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(currentPointer{ProjectID: projectID})
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(s.root, currentFile), data)
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid project ID: %q", id)
	}
	return nil
}

// atomicWrite is replaced in tests to inject write failures.
var atomicWrite = writeAtomic

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
