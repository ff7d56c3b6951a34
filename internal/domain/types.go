package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

// Statuses lists every status in display order.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked}

// ParseStatus converts user input into a TaskStatus.
func ParseStatus(s string) (TaskStatus, error) {
	switch TaskStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusInProgress, "in-progress", "inprogress":
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusBlocked:
		return StatusBlocked, nil
	}
	return "", Validationf("unknown status %q", s)
}

// ChangeKind tags how a task touches a related file
type ChangeKind string

const (
	ChangeCreate    ChangeKind = "CREATE"
	ChangeModify    ChangeKind = "MODIFY"
	ChangeDelete    ChangeKind = "DELETE"
	ChangeReference ChangeKind = "REFERENCE"
)

func (k ChangeKind) valid() bool {
	switch k {
	case ChangeCreate, ChangeModify, ChangeDelete, ChangeReference:
		return true
	}
	return false
}

// RelatedFile is a file reference recorded on a task. Content is never inspected.
type RelatedFile struct {
	Path        string     `json:"path"`
	Kind        ChangeKind `json:"kind"`
	Description string     `json:"description,omitempty"`
	LineStart   int        `json:"line_start,omitempty"`
	LineEnd     int        `json:"line_end,omitempty"`
}

// AuditNote is an append-only remark attached to a task.
type AuditNote struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Task is a unit of agent work inside a plan
type Task struct {
	ID                   string        `json:"id"`
	ProjectID            string        `json:"project_id"`
	PlanID               string        `json:"plan_id"`
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Notes                string        `json:"notes,omitempty"`
	Status               TaskStatus    `json:"status"`
	Dependencies         []string      `json:"dependencies"`
	RelatedFiles         []RelatedFile `json:"related_files,omitempty"`
	ImplementationGuide  string        `json:"implementation_guide,omitempty"`
	VerificationCriteria string        `json:"verification_criteria,omitempty"`
	Summary              string        `json:"summary,omitempty"`
	ParentID             string        `json:"parent_id,omitempty"`
	BlockedReason        string        `json:"blocked_reason,omitempty"`
	AuditNotes           []AuditNote   `json:"audit_notes,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Dependencies = append([]string{}, t.Dependencies...)
	if t.RelatedFiles != nil {
		c.RelatedFiles = append([]RelatedFile{}, t.RelatedFiles...)
	}
	if t.AuditNotes != nil {
		c.AuditNotes = append([]AuditNote{}, t.AuditNotes...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

// Plan is a named view over a project's task set.
type Plan struct {
	ID           string                `json:"id"`
	ProjectID    string                `json:"project_id"`
	Version      int                   `json:"version"`
	Label        string                `json:"label,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	TaskIDs      []string              `json:"task_ids"`
	ReadOnly     bool                  `json:"read_only"`
	FrozenAt     *time.Time            `json:"frozen_at,omitempty"`
	FrozenStatus map[string]TaskStatus `json:"frozen_status,omitempty"`
}

// Contains reports whether the plan lists the task id.
func (p *Plan) Contains(id string) bool {
	for _, tid := range p.TaskIDs {
		if tid == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	c := *p
	c.TaskIDs = append([]string{}, p.TaskIDs...)
	if p.FrozenAt != nil {
		at := *p.FrozenAt
		c.FrozenAt = &at
	}
	if p.FrozenStatus != nil {
		c.FrozenStatus = make(map[string]TaskStatus, len(p.FrozenStatus))
		for k, v := range p.FrozenStatus {
			c.FrozenStatus[k] = v
		}
	}
	return &c
}

// Project groups plans and their tasks.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ActivePlanID string    `json:"active_plan_id"`
	PlanHistory  []string  `json:"plan_history"`
}

// ProjectState is everything owned by one project. It is the unit of
// persistence and of locking.
type ProjectState struct {
	Project *Project         `json:"project"`
	Plans   map[string]*Plan `json:"plans"`
	Tasks   map[string]*Task `json:"tasks"`
}

// NewProjectState returns an empty state for the project.
func NewProjectState(p *Project) *ProjectState {
	return &ProjectState{
		Project: p,
		Plans:   make(map[string]*Plan),
		Tasks:   make(map[string]*Task),
	}
}

// Clone returns a deep copy so a mutation can be applied and discarded.
func (s *ProjectState) Clone() *ProjectState {
	p := *s.Project
	p.PlanHistory = append([]string{}, s.Project.PlanHistory...)
	c := NewProjectState(&p)
	for id, plan := range s.Plans {
		c.Plans[id] = plan.Clone()
	}
	for id, task := range s.Tasks {
		c.Tasks[id] = task.Clone()
	}
	return c
}

// ActivePlan returns the project's writable plan.
func (s *ProjectState) ActivePlan() *Plan {
	return s.Plans[s.Project.ActivePlanID]
}

// PlanTasks returns the tasks listed by the plan, in plan order.
func (s *ProjectState) PlanTasks(plan *Plan) []*Task {
	out := make([]*Task, 0, len(plan.TaskIDs))
	for _, id := range plan.TaskIDs {
		if t, ok := s.Tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// StatusIn returns the status of the task as seen by the plan: the frozen
// status for read-only plans, the live status otherwise.
func (s *ProjectState) StatusIn(plan *Plan, taskID string) TaskStatus {
	if plan.ReadOnly {
		if st, ok := plan.FrozenStatus[taskID]; ok {
			return st
		}
	}
	if t, ok := s.Tasks[taskID]; ok {
		return t.Status
	}
	return ""
}

const (
	MaxNameLength        = 100
	MinDescriptionLength = 10
)

// TaskDraft holds the caller-supplied fields of a new task.
type TaskDraft struct {
	Name                 string
	Description          string
	Notes                string
	Dependencies         []string
	RelatedFiles         []RelatedFile
	ImplementationGuide  string
	VerificationCriteria string
}

// Validate checks field constraints. Dependencies are resolved elsewhere.
func (d *TaskDraft) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateDescription(d.Description); err != nil {
		return err
	}
	return ValidateRelatedFiles(d.RelatedFiles)
}

// ValidateName enforces the 1-100 character task name rule.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return Validationf("name is required")
	}
	if n > MaxNameLength {
		return Validationf("name must be at most %d characters, got %d", MaxNameLength, n)
	}
	return nil
}

// ValidateDescription enforces the minimum description length.
func ValidateDescription(desc string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(desc)); n < MinDescriptionLength {
		return Validationf("description must be at least %d characters, got %d", MinDescriptionLength, n)
	}
	return nil
}

// ValidateRelatedFiles checks paths, change kinds and line ranges.
func ValidateRelatedFiles(files []RelatedFile) error {
	for i, f := range files {
		if strings.TrimSpace(f.Path) == "" {
			return Validationf("related file %d: path is required", i)
		}
		if !f.Kind.valid() {
			return Validationf("related file %d: unknown kind %q", i, f.Kind)
		}
		if f.LineStart < 0 || f.LineEnd < 0 {
			return Validationf("related file %d: line numbers must be positive", i)
		}
		if f.LineEnd > 0 && f.LineEnd < f.LineStart {
			return Validationf("related file %d: line_end before line_start", i)
		}
	}
	return nil
}
