package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/tracker"
)

// CompleteTaskParams are the arguments of complete_task.
type CompleteTaskParams struct {
	TaskID  string `json:"task_id" jsonschema:"Task to complete"`
	Summary string `json:"summary,omitempty" jsonschema:"What was done"`
}

// VerifyTaskParams are the arguments of verify_task.
type VerifyTaskParams struct {
	TaskID  string `json:"task_id" jsonschema:"Task to verify"`
	Score   int    `json:"score" jsonschema:"Score from 0 to 100 against the verification criteria"`
	Summary string `json:"summary" jsonschema:"Verification findings"`
}

// BlockTaskParams are the arguments of block_task.
type BlockTaskParams struct {
	TaskID string `json:"task_id" jsonschema:"Task to block"`
	Reason string `json:"reason,omitempty" jsonschema:"Why the task cannot proceed"`
}

// SubtaskParams describe one subtask of split_task.
type SubtaskParams struct {
	Name                 string              `json:"name" jsonschema:"Subtask name, unique among the new subtasks"`
	Description          string              `json:"description" jsonschema:"What has to be done, at least 10 characters"`
	Notes                string              `json:"notes,omitempty" jsonschema:"Free-form notes"`
	Dependencies         []string            `json:"dependencies,omitempty" jsonschema:"Names of sibling subtasks or ids and names of tasks in the active plan"`
	RelatedFiles         []RelatedFileParams `json:"related_files,omitempty" jsonschema:"Files the subtask touches"`
	ImplementationGuide  string              `json:"implementation_guide,omitempty" jsonschema:"How to implement the subtask"`
	VerificationCriteria string              `json:"verification_criteria,omitempty" jsonschema:"How to tell the subtask is done"`
}

// SplitTaskParams are the arguments of split_task.
type SplitTaskParams struct {
	TaskID        string          `json:"task_id" jsonschema:"Task to split"`
	Subtasks      []SubtaskParams `json:"subtasks" jsonschema:"Subtasks to create"`
	Sequential    bool            `json:"sequential,omitempty" jsonschema:"Make each subtask depend on the previous one"`
	ReplaceParent bool            `json:"replace_parent,omitempty" jsonschema:"Complete the parent once the subtasks exist"`
	Summary       string          `json:"summary,omitempty" jsonschema:"Completion summary for the replaced parent"`
}

// UpdateStatusBulkParams are the arguments of update_status_bulk.
type UpdateStatusBulkParams struct {
	Project string   `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	TaskIDs []string `json:"task_ids" jsonschema:"Tasks to update, processed in order"`
	Status  string   `json:"status" jsonschema:"Target status: pending, in_progress, completed or blocked"`
}

// AppendNoteParams are the arguments of append_task_note.
type AppendNoteParams struct {
	TaskID string `json:"task_id" jsonschema:"Task to annotate"`
	Note   string `json:"note" jsonschema:"Note text"`
}

// StartTask handles the start_task tool call.
func (h *Handlers) StartTask(ctx context.Context, req *mcp.CallToolRequest, params TaskParams) (*mcp.CallToolResult, any, error) {
	const op = "start_task"
	task, err := h.tracker.Start(params.TaskID)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"name": task.Name, "taskId": task.ID})
}

// CompleteTask handles the complete_task tool call and names the tasks it
// unlocked.
func (h *Handlers) CompleteTask(ctx context.Context, req *mcp.CallToolRequest, params CompleteTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "complete_task"
	task, err := h.tracker.Complete(params.TaskID, params.Summary)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"name":    task.Name,
		"taskId":  task.ID,
		"summary": textOrDash(task.Summary),
		"ready":   h.readyAfter(task),
	})
}

// readyAfter names the tasks unlocked by completing task.
func (h *Handlers) readyAfter(task *domain.Task) string {
	ready, err := h.tracker.ReadyTasks(task.ProjectID)
	if err != nil {
		return "-"
	}
	var names []string
	for _, r := range ready {
		for _, dep := range r.Dependencies {
			if dep == task.ID {
				names = append(names, r.Name+" ("+r.ID+")")
				break
			}
		}
	}
	return orDash(names)
}

// VerifyTask handles the verify_task tool call.
func (h *Handlers) VerifyTask(ctx context.Context, req *mcp.CallToolRequest, params VerifyTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "verify_task"
	res, err := h.tracker.Verify(params.TaskID, params.Score, params.Summary)
	if err != nil {
		return h.fail(op, err, nil)
	}
	outcome := "failed"
	if res.Passed {
		outcome = "passed"
	}
	return h.ok(op, outcome, map[string]any{
		"name":      res.Task.Name,
		"taskId":    res.Task.ID,
		"score":     res.Score,
		"threshold": res.Threshold,
		"summary":   params.Summary,
	})
}

// BlockTask handles the block_task tool call.
func (h *Handlers) BlockTask(ctx context.Context, req *mcp.CallToolRequest, params BlockTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "block_task"
	task, err := h.tracker.Block(params.TaskID, params.Reason)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"name":   task.Name,
		"taskId": task.ID,
		"reason": textOrDash(task.BlockedReason),
	})
}

// UnblockTask handles the unblock_task tool call.
func (h *Handlers) UnblockTask(ctx context.Context, req *mcp.CallToolRequest, params TaskParams) (*mcp.CallToolResult, any, error) {
	const op = "unblock_task"
	task, err := h.tracker.Unblock(params.TaskID)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"name": task.Name, "taskId": task.ID})
}

// SplitTask handles the split_task tool call.
func (h *Handlers) SplitTask(ctx context.Context, req *mcp.CallToolRequest, params SplitTaskParams) (*mcp.CallToolResult, any, error) {
	const op = "split_task"
	drafts := make([]domain.TaskDraft, 0, len(params.Subtasks))
	for _, s := range params.Subtasks {
		drafts = append(drafts, domain.TaskDraft{
			Name:                 s.Name,
			Description:          s.Description,
			Notes:                s.Notes,
			Dependencies:         s.Dependencies,
			RelatedFiles:         relatedFiles(s.RelatedFiles),
			ImplementationGuide:  s.ImplementationGuide,
			VerificationCriteria: s.VerificationCriteria,
		})
	}

	res, err := h.tracker.Split(params.TaskID, drafts, tracker.SplitOptions{
		Sequential:    params.Sequential,
		ReplaceParent: params.ReplaceParent,
		Summary:       params.Summary,
	})
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"name":     res.Parent.Name,
		"taskId":   res.Parent.ID,
		"count":    len(res.Subtasks),
		"subtasks": h.taskList(res.Subtasks),
		"status":   string(res.Parent.Status),
	})
}

// UpdateStatusBulk handles the update_status_bulk tool call.
func (h *Handlers) UpdateStatusBulk(ctx context.Context, req *mcp.CallToolRequest, params UpdateStatusBulkParams) (*mcp.CallToolResult, any, error) {
	const op = "update_status_bulk"
	status, err := domain.ParseStatus(params.Status)
	if err != nil {
		return h.fail(op, err, nil)
	}
	results, err := h.tracker.UpdateStatusBulk(params.Project, params.TaskIDs, status)
	if err != nil {
		return h.fail(op, err, nil)
	}

	okCount := 0
	lines := make([]string, 0, len(results))
	for _, r := range results {
		fields := map[string]any{"taskId": r.TaskID, "status": textOrDash(string(r.Status))}
		if r.OK {
			okCount++
			lines = append(lines, h.render.Render("bulk.ok", fields))
			continue
		}
		fields["kind"] = string(r.Kind)
		fields["detail"] = r.Detail
		lines = append(lines, h.render.Render("bulk.failed", fields))
	}
	return h.ok(op, "success", map[string]any{
		"status":      string(status),
		"okCount":     okCount,
		"failedCount": len(results) - okCount,
		"results":     strings.Join(lines, "\n"),
	})
}

// AppendTaskNote handles the append_task_note tool call.
func (h *Handlers) AppendTaskNote(ctx context.Context, req *mcp.CallToolRequest, params AppendNoteParams) (*mcp.CallToolResult, any, error) {
	const op = "append_task_note"
	task, err := h.tracker.AppendNote(params.TaskID, params.Note)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"taskId": task.ID, "noteCount": len(task.AuditNotes)})
}
