// Package tools exposes tracker operations as MCP tools.
//
// Each handler takes a typed argument struct, calls the tracker and renders
// the outcome through the template catalog. Domain failures come back as
// tool results with IsError set so the agent can read and react to them;
// the Go error return is left for failures of the call itself.
package tools

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/render"
	"github.com/cexll/taskgraph/internal/tracker"
)

// Handlers binds the tool handlers to a tracker and a renderer.
type Handlers struct {
	tracker *tracker.Tracker
	render  *render.Renderer
	policy  tracker.RemovePolicy
}

// New creates the handlers. policy is used by delete_task when the caller
// does not name one.
func New(t *tracker.Tracker, r *render.Renderer, policy tracker.RemovePolicy) *Handlers {
	if policy == "" {
		policy = tracker.RemoveStrict
	}
	return &Handlers{tracker: t, render: r, policy: policy}
}

// Register adds every tool to server.
func (h *Handlers) Register(server *mcp.Server) {
	// Projects
	mcp.AddTool(server, &mcp.Tool{Name: "create_project", Description: "Create a project with an empty first plan. The first project becomes the current project."}, h.CreateProject)
	mcp.AddTool(server, &mcp.Tool{Name: "list_projects", Description: "List every project."}, h.ListProjects)
	mcp.AddTool(server, &mcp.Tool{Name: "get_project_info", Description: "Show a project with its active plan and task counts."}, h.GetProjectInfo)
	mcp.AddTool(server, &mcp.Tool{Name: "update_project", Description: "Rename a project or change its description."}, h.UpdateProject)
	mcp.AddTool(server, &mcp.Tool{Name: "delete_project", Description: "Delete a project with all of its plans and tasks. Irreversible."}, h.DeleteProject)
	mcp.AddTool(server, &mcp.Tool{Name: "switch_project", Description: "Select the current project used when a call names no project."}, h.SwitchProject)

	// Task graph
	mcp.AddTool(server, &mcp.Tool{Name: "add_task", Description: "Add a task to the active plan. Dependencies are task ids or exact task names of the same plan."}, h.AddTask)
	mcp.AddTool(server, &mcp.Tool{Name: "update_task", Description: "Change fields of a task in the active plan. Omitted fields are kept; an empty dependency list clears dependencies."}, h.UpdateTask)
	mcp.AddTool(server, &mcp.Tool{Name: "delete_task", Description: "Remove a task from the active plan. Policy strict refuses tasks with dependents, detach strips the edges, cascade removes dependents too."}, h.DeleteTask)
	mcp.AddTool(server, &mcp.Tool{Name: "get_task_detail", Description: "Show every field of a task."}, h.GetTaskDetail)
	mcp.AddTool(server, &mcp.Tool{Name: "list_tasks", Description: "List tasks of a plan in dependency order, optionally filtered."}, h.ListTasks)
	mcp.AddTool(server, &mcp.Tool{Name: "query_task", Description: "Search all tasks of a project, including archived plans, by id or keyword."}, h.QueryTask)
	mcp.AddTool(server, &mcp.Tool{Name: "topological_order", Description: "List the tasks of a plan in an order that respects every dependency."}, h.TopologicalOrder)

	// Lifecycle
	mcp.AddTool(server, &mcp.Tool{Name: "start_task", Description: "Move a pending task to in_progress."}, h.StartTask)
	mcp.AddTool(server, &mcp.Tool{Name: "complete_task", Description: "Complete an in_progress task whose dependencies are all completed."}, h.CompleteTask)
	mcp.AddTool(server, &mcp.Tool{Name: "verify_task", Description: "Score an in_progress task from 0 to 100. A passing score completes it."}, h.VerifyTask)
	mcp.AddTool(server, &mcp.Tool{Name: "block_task", Description: "Mark a pending or in_progress task as blocked."}, h.BlockTask)
	mcp.AddTool(server, &mcp.Tool{Name: "unblock_task", Description: "Return a blocked task to pending."}, h.UnblockTask)
	mcp.AddTool(server, &mcp.Tool{Name: "split_task", Description: "Split a task into subtasks. Either every subtask is created or nothing changes."}, h.SplitTask)
	mcp.AddTool(server, &mcp.Tool{Name: "update_status_bulk", Description: "Apply one status change to many tasks and report the result per task."}, h.UpdateStatusBulk)
	mcp.AddTool(server, &mcp.Tool{Name: "append_task_note", Description: "Append an audit note to a task. Allowed on completed tasks."}, h.AppendTaskNote)

	// Plans
	mcp.AddTool(server, &mcp.Tool{Name: "create_plan_version", Description: "Start a new plan version from a selection of the active plan. The old plan becomes read-only."}, h.CreatePlanVersion)
	mcp.AddTool(server, &mcp.Tool{Name: "restore_plan", Description: "Roll back to an archived plan by activating a new version with its tasks."}, h.RestorePlan)
	mcp.AddTool(server, &mcp.Tool{Name: "list_plans", Description: "List every plan version of a project."}, h.ListPlans)
	mcp.AddTool(server, &mcp.Tool{Name: "diff_plans", Description: "Compare two plans of the same project."}, h.DiffPlans)

	// Reporting
	mcp.AddTool(server, &mcp.Tool{Name: "ready_tasks", Description: "List pending tasks whose dependencies are all completed."}, h.ReadyTasks)
	mcp.AddTool(server, &mcp.Tool{Name: "summarize_project", Description: "Count the active plan's tasks per status."}, h.SummarizeProject)

	log.Printf("[MCP] Registered %d tools", len(ToolNames))
}

// ToolNames lists every registered tool.
var ToolNames = []string{
	"create_project", "list_projects", "get_project_info", "update_project", "delete_project", "switch_project",
	"add_task", "update_task", "delete_task", "get_task_detail", "list_tasks", "query_task", "topological_order",
	"start_task", "complete_task", "verify_task", "block_task", "unblock_task", "split_task", "update_status_bulk", "append_task_note",
	"create_plan_version", "restore_plan", "list_plans", "diff_plans",
	"ready_tasks", "summarize_project",
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func (h *Handlers) ok(op, outcome string, fields map[string]any) (*mcp.CallToolResult, any, error) {
	return textResult(h.render.Outcome(op, outcome, fields), false), nil, nil
}

// fail renders err with the most specific template of op. extra adds
// op-specific placeholders.
func (h *Handlers) fail(op string, err error, extra map[string]any) (*mcp.CallToolResult, any, error) {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindValidation
	}
	log.Printf("[MCP] %s failed: %v", op, err)

	fields := map[string]any{
		"kind":    string(kind),
		"message": domain.MessageOf(err),
		"ids":     orDash(domain.IDsOf(err)),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return textResult(h.render.Outcome(op, string(kind), fields), true), nil, nil
}

func orDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}

func textOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (h *Handlers) taskItems(tasks []*domain.Task) []map[string]any {
	items := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, map[string]any{
			"id":           t.ID,
			"name":         t.Name,
			"status":       string(t.Status),
			"dependencies": orDash(t.Dependencies),
		})
	}
	return items
}

func (h *Handlers) taskList(tasks []*domain.Task) string {
	return h.render.List("task.item", h.taskItems(tasks))
}

func (h *Handlers) taskDetail(t *domain.Task) string {
	files := "-"
	if len(t.RelatedFiles) > 0 {
		items := make([]map[string]any, 0, len(t.RelatedFiles))
		for _, f := range t.RelatedFiles {
			lines := ""
			switch {
			case f.LineStart > 0 && f.LineEnd > 0:
				lines = fmt.Sprintf(" L%d-L%d", f.LineStart, f.LineEnd)
			case f.LineStart > 0:
				lines = fmt.Sprintf(" L%d", f.LineStart)
			}
			items = append(items, map[string]any{
				"path":        f.Path,
				"kind":        string(f.Kind),
				"lines":       lines,
				"description": f.Description,
			})
		}
		files = h.render.List("file.item", items)
	}

	notes := "-"
	if len(t.AuditNotes) > 0 {
		items := make([]map[string]any, 0, len(t.AuditNotes))
		for _, n := range t.AuditNotes {
			items = append(items, map[string]any{"timestamp": timestamp(n.Timestamp), "text": n.Text})
		}
		notes = h.render.List("note.item", items)
	}

	return h.render.Render("task.detail", map[string]any{
		"id":                   t.ID,
		"name":                 t.Name,
		"status":               string(t.Status),
		"parentId":             textOrDash(t.ParentID),
		"dependencies":         orDash(t.Dependencies),
		"createdAt":            timestamp(t.CreatedAt),
		"updatedAt":            timestamp(t.UpdatedAt),
		"description":          t.Description,
		"notes":                textOrDash(t.Notes),
		"relatedFiles":         files,
		"implementationGuide":  textOrDash(t.ImplementationGuide),
		"verificationCriteria": textOrDash(t.VerificationCriteria),
		"summary":              textOrDash(t.Summary),
		"auditNotes":           notes,
	})
}
