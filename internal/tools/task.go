package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/tracker"
)

// RelatedFileParams describe a file a task touches.
type RelatedFileParams struct {
	Path        string `json:"path" jsonschema:"File path relative to the repository root"`
	Kind        string `json:"kind" jsonschema:"One of CREATE, MODIFY, DELETE, REFERENCE"`
	Description string `json:"description,omitempty" jsonschema:"Why the file matters"`
	LineStart   int    `json:"line_start,omitempty" jsonschema:"First relevant line"`
	LineEnd     int    `json:"line_end,omitempty" jsonschema:"Last relevant line"`
}

// AddTaskParams are the arguments of add_task.
type AddTaskParams struct {
	Project              string              `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	Name                 string              `json:"name" jsonschema:"Task name, 1-100 characters"`
	Description          string              `json:"description" jsonschema:"What has to be done, at least 10 characters"`
	Notes                string              `json:"notes,omitempty" jsonschema:"Free-form notes"`
	Dependencies         []string            `json:"dependencies,omitempty" jsonschema:"Ids or exact names of tasks in the active plan that must complete first"`
	RelatedFiles         []RelatedFileParams `json:"related_files,omitempty" jsonschema:"Files the task creates, modifies, deletes or references"`
	ImplementationGuide  string              `json:"implementation_guide,omitempty" jsonschema:"How to implement the task"`
	VerificationCriteria string              `json:"verification_criteria,omitempty" jsonschema:"How to tell the task is done"`
}

// UpdateTaskParams are the arguments of update_task. Omitted fields are kept.
type UpdateTaskParams struct {
	Project              string              `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	TaskID               string              `json:"task_id" jsonschema:"Task to update"`
	Name                 *string             `json:"name,omitempty" jsonschema:"New name"`
	Description          *string             `json:"description,omitempty" jsonschema:"New description"`
	Notes                *string             `json:"notes,omitempty" jsonschema:"New notes"`
	Dependencies         []string            `json:"dependencies,omitempty" jsonschema:"Replacement dependency list; an empty list clears all dependencies"`
	RelatedFiles         []RelatedFileParams `json:"related_files,omitempty" jsonschema:"Replacement related file list"`
	ImplementationGuide  *string             `json:"implementation_guide,omitempty" jsonschema:"New implementation guide"`
	VerificationCriteria *string             `json:"verification_criteria,omitempty" jsonschema:"New verification criteria"`
}

// DeleteTaskParams are the arguments of delete_task.
type DeleteTaskParams struct {
	Project string `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	TaskID  string `json:"task_id" jsonschema:"Task to remove"`
	Policy  string `json:"policy,omitempty" jsonschema:"strict, detach or cascade; defaults to the server setting"`
}

// TaskParams name one task.
type TaskParams struct {
	TaskID string `json:"task_id" jsonschema:"Task id"`
}

// ListTasksParams are the arguments of list_tasks.
type ListTasksParams struct {
	Project  string   `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	PlanID   string   `json:"plan_id,omitempty" jsonschema:"Plan to list; defaults to the active plan"`
	Status   []string `json:"status,omitempty" jsonschema:"Only tasks with one of these statuses"`
	ParentID string   `json:"parent_id,omitempty" jsonschema:"Only subtasks of this task"`
	Keyword  string   `json:"keyword,omitempty" jsonschema:"Only tasks whose name or description contains this text"`
}

// QueryTaskParams are the arguments of query_task.
type QueryTaskParams struct {
	Project string `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	Query   string `json:"query" jsonschema:"Task id or keyword"`
}

// PlanScopeParams select a plan of a project.
type PlanScopeParams struct {
	Project string `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	PlanID  string `json:"plan_id,omitempty" jsonschema:"Plan id; defaults to the active plan"`
}

func relatedFiles(in []RelatedFileParams) []domain.RelatedFile {
	if in == nil {
		return nil
	}
	out := make([]domain.RelatedFile, 0, len(in))
	for _, f := range in {
		out = append(out, domain.RelatedFile{
			Path:        f.Path,
			Kind:        domain.ChangeKind(f.Kind),
			Description: f.Description,
			LineStart:   f.LineStart,
			LineEnd:     f.LineEnd,
		})
	}
	return out
}

// AddTask handles the add_task tool call.
func (h *Handlers) AddTask(ctx context.Context, req *mcp.CallToolRequest, params AddTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "add_task"
	task, err := h.tracker.AddTask(params.Project, domain.TaskDraft{
		Name:                 params.Name,
		Description:          params.Description,
		Notes:                params.Notes,
		Dependencies:         params.Dependencies,
		RelatedFiles:         relatedFiles(params.RelatedFiles),
		ImplementationGuide:  params.ImplementationGuide,
		VerificationCriteria: params.VerificationCriteria,
	})
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"name":              task.Name,
		"taskId":            task.ID,
		"dependenciesCount": len(task.Dependencies),
		"dependencies":      orDash(task.Dependencies),
	})
}

// UpdateTask handles the update_task tool call.
func (h *Handlers) UpdateTask(ctx context.Context, req *mcp.CallToolRequest, params UpdateTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "update_task"
	patch := tracker.TaskPatch{
		Name:                 params.Name,
		Description:          params.Description,
		Notes:                params.Notes,
		ImplementationGuide:  params.ImplementationGuide,
		VerificationCriteria: params.VerificationCriteria,
	}
	if params.Dependencies != nil {
		deps := params.Dependencies
		patch.Dependencies = &deps
	}
	if params.RelatedFiles != nil {
		files := relatedFiles(params.RelatedFiles)
		patch.RelatedFiles = &files
	}

	task, err := h.tracker.UpdateTask(params.Project, params.TaskID, patch)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"taskId": task.ID, "task": h.taskDetail(task)})
}

// DeleteTask handles the delete_task tool call. Without an explicit policy
// the server default applies.
func (h *Handlers) DeleteTask(ctx context.Context, req *mcp.CallToolRequest, params DeleteTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "delete_task"
	policy := h.policy
	if params.Policy != "" {
		p, err := tracker.ParseRemovePolicy(params.Policy)
		if err != nil {
			return h.fail(op, err, nil)
		}
		policy = p
	}

	res, err := h.tracker.RemoveTask(params.Project, params.TaskID, policy)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"removedCount": len(res.Removed),
		"removed":      orDash(res.Removed),
		"detached":     orDash(res.Detached),
	})
}

// GetTaskDetail handles the get_task_detail tool call.
func (h *Handlers) GetTaskDetail(ctx context.Context, req *mcp.CallToolRequest, params TaskParams) (*mcp.CallToolResult, any, error) {
	const op = "get_task_detail"
	task, err := h.tracker.GetTask(params.TaskID)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"task": h.taskDetail(task)})
}

// ListTasks handles the list_tasks tool call.
func (h *Handlers) ListTasks(ctx context.Context, req *mcp.CallToolRequest, params ListTasksParams) (*mcp.CallToolResult, any, error) {
	const op = "list_tasks"
	filter := tracker.TaskFilter{
		PlanID:   params.PlanID,
		ParentID: params.ParentID,
		Keyword:  params.Keyword,
	}
	for _, s := range params.Status {
		status, err := domain.ParseStatus(s)
		if err != nil {
			return h.fail(op, err, nil)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	tasks, err := h.tracker.ListTasks(params.Project, filter)
	if err != nil {
		return h.fail(op, err, nil)
	}
	if len(tasks) == 0 {
		return h.ok(op, "empty", nil)
	}
	return h.ok(op, "success", map[string]any{"count": len(tasks), "tasks": h.taskList(tasks)})
}

// QueryTask handles the query_task tool call.
func (h *Handlers) QueryTask(ctx context.Context, req *mcp.CallToolRequest, params QueryTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "query_task"
	tasks, err := h.tracker.SearchTasks(params.Project, params.Query)
	if err != nil {
		return h.fail(op, err, nil)
	}
	if len(tasks) == 0 {
		return h.ok(op, "empty", map[string]any{"query": params.Query})
	}
	return h.ok(op, "success", map[string]any{
		"query": params.Query,
		"count": len(tasks),
		"tasks": h.taskList(tasks),
	})
}

// TopologicalOrder handles the topological_order tool call.
func (h *Handlers) TopologicalOrder(ctx context.Context, req *mcp.CallToolRequest, params PlanScopeParams) (*mcp.CallToolResult, any, error) {
	const op = "topological_order"
	tasks, err := h.tracker.TopologicalOrder(params.Project, params.PlanID)
	if err != nil {
		return h.fail(op, err, nil)
	}
	items := h.taskItems(tasks)
	for i := range items {
		items[i]["position"] = fmt.Sprint(i + 1)
	}
	return h.ok(op, "success", map[string]any{
		"count": len(tasks),
		"tasks": h.render.List("task.order", items),
	})
}
