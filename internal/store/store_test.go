package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cexll/taskgraph/internal/domain"
)

func sampleState(id, name string, created time.Time) *domain.ProjectState {
	st := domain.NewProjectState(&domain.Project{
		ID:           id,
		Name:         name,
		CreatedAt:    created,
		ActivePlanID: id + "-plan-2",
		PlanHistory:  []string{id + "-plan-1"},
	})
	frozen := created.Add(time.Minute)
	st.Plans[id+"-plan-1"] = &domain.Plan{
		ID:           id + "-plan-1",
		ProjectID:    id,
		Version:      1,
		TaskIDs:      []string{id + "-task"},
		ReadOnly:     true,
		FrozenAt:     &frozen,
		FrozenStatus: map[string]domain.TaskStatus{id + "-task": domain.StatusPending},
	}
	st.Plans[id+"-plan-2"] = &domain.Plan{
		ID:        id + "-plan-2",
		ProjectID: id,
		Version:   2,
		TaskIDs:   []string{id + "-task"},
	}
	st.Tasks[id+"-task"] = &domain.Task{
		ID:           id + "-task",
		ProjectID:    id,
		PlanID:       id + "-plan-1",
		Name:         "Write docs",
		Description:  "Write the user documentation",
		Status:       domain.StatusInProgress,
		Dependencies: []string{},
		RelatedFiles: []domain.RelatedFile{{Path: "README.md", Kind: domain.ChangeModify}},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	return st
}

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	if err := s.Save(sampleState("b", "second", now.Add(time.Second))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(sampleState("a", "first", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	states, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("LoadAll length = %d, want 2", len(states))
	}
	if states[0].Project.ID != "a" || states[1].Project.ID != "b" {
		t.Fatalf("LoadAll order = [%s, %s], want [a, b]", states[0].Project.ID, states[1].Project.ID)
	}

	// Returned states are copies.
	states[0].Tasks["a-task"].Name = "mutated"
	again, _ := s.LoadAll()
	if again[0].Tasks["a-task"].Name != "Write docs" {
		t.Fatal("LoadAll should return copies, store was mutated")
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("a"); err == nil {
		t.Fatal("Delete of missing project should fail")
	}
}

func TestMemoryStore_SaveRejectsEmptyID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Save(domain.NewProjectState(&domain.Project{})); err == nil {
		t.Fatal("expected error for empty project ID")
	}
}

func TestMemoryStore_CurrentClearedOnDelete(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Save(sampleState("p", "proj", time.Now()))
	_ = s.SaveCurrent("p")

	if cur, _ := s.LoadCurrent(); cur != "p" {
		t.Fatalf("current = %q, want p", cur)
	}
	_ = s.Delete("p")
	if cur, _ := s.LoadCurrent(); cur != "" {
		t.Fatalf("current = %q, want empty after delete", cur)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleState("proj-1", "alpha", created)
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.SaveCurrent("proj-1"); err != nil {
		t.Fatalf("SaveCurrent failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "proj-1", "project.json")); err != nil {
		t.Fatalf("project file missing: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	states, err := reopened.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("LoadAll length = %d, want 1", len(states))
	}

	got := states[0]
	if got.Project.Name != "alpha" || got.Project.ActivePlanID != "proj-1-plan-2" {
		t.Errorf("project = %+v", got.Project)
	}
	old := got.Plans["proj-1-plan-1"]
	if old == nil || !old.ReadOnly {
		t.Fatalf("historical plan not restored as read-only: %+v", old)
	}
	if old.FrozenStatus["proj-1-task"] != domain.StatusPending {
		t.Errorf("frozen status = %q, want pending", old.FrozenStatus["proj-1-task"])
	}
	task := got.Tasks["proj-1-task"]
	if task == nil || task.Status != domain.StatusInProgress || len(task.RelatedFiles) != 1 {
		t.Fatalf("task not restored: %+v", task)
	}

	cur, err := reopened.LoadCurrent()
	if err != nil || cur != "proj-1" {
		t.Fatalf("LoadCurrent = %q, %v; want proj-1", cur, err)
	}
}

func TestFileStore_Delete(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	_ = s.Save(sampleState("gone", "gone", time.Now()))
	_ = s.SaveCurrent("gone")

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "gone")); !os.IsNotExist(err) {
		t.Fatalf("project directory still present: %v", err)
	}
	if cur, _ := s.LoadCurrent(); cur != "" {
		t.Fatalf("current = %q, want empty", cur)
	}
	if err := s.Delete("gone"); err == nil {
		t.Fatal("second Delete should fail")
	}
}

func TestFileStore_DeleteKeepsProjectWhenPointerWriteFails(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	_ = s.Save(sampleState("kept", "kept", time.Now()))
	_ = s.SaveCurrent("kept")

	orig := atomicWrite
	atomicWrite = func(path string, data []byte) error {
		if filepath.Base(path) == currentFile {
			return errors.New("read-only file system")
		}
		return orig(path, data)
	}
	t.Cleanup(func() { atomicWrite = orig })

	if err := s.Delete("kept"); err == nil {
		t.Fatal("Delete should fail when the pointer cannot be cleared")
	}
	if _, err := os.Stat(filepath.Join(dir, "kept", projectFile)); err != nil {
		t.Fatalf("project removed despite failed delete: %v", err)
	}
	states, err := s.LoadAll()
	if err != nil || len(states) != 1 {
		t.Fatalf("LoadAll = %d states, %v; want the project back", len(states), err)
	}
	if cur, _ := s.LoadCurrent(); cur != "kept" {
		t.Fatalf("current = %q, want kept", cur)
	}
}

func TestFileStore_DeleteOtherProjectKeepsPointer(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	_ = s.Save(sampleState("a", "a", time.Now()))
	_ = s.Save(sampleState("b", "b", time.Now()))
	_ = s.SaveCurrent("a")

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if cur, _ := s.LoadCurrent(); cur != "a" {
		t.Fatalf("current = %q, want a", cur)
	}
}

func TestFileStore_RejectsPathLikeIDs(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	for _, id := range []string{"..", "a/b", `a\b`} {
		st := sampleState("x", "x", time.Now())
		st.Project.ID = id
		if err := s.Save(st); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
	}
}

func TestFileStore_LoadAllSkipsStrayEntries(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	if err := os.MkdirAll(filepath.Join(dir, "empty-dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	states, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("LoadAll length = %d, want 0", len(states))
	}
}

func TestNewFileStore_EmptyRoot(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}
