package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/domain"
	"github.com/cexll/taskgraph/internal/tracker"
)

// CreateProjectParams are the arguments of create_project.
type CreateProjectParams struct {
	Name        string `json:"name" jsonschema:"Unique project name, 1-100 characters"`
	Description string `json:"description,omitempty" jsonschema:"What the project is about"`
}

// ListProjectsParams are the arguments of list_projects.
type ListProjectsParams struct{}

// ProjectParams scope a call to one project.
type ProjectParams struct {
	Project string `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
}

// UpdateProjectParams are the arguments of update_project.
type UpdateProjectParams struct {
	Project     string  `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	Name        *string `json:"name,omitempty" jsonschema:"New project name"`
	Description *string `json:"description,omitempty" jsonschema:"New project description"`
}

// RequiredProjectParams name a project explicitly.
type RequiredProjectParams struct {
	Project string `json:"project" jsonschema:"Project id or name"`
}

// CreateProject handles the create_project tool call.
func (h *Handlers) CreateProject(ctx context.Context, req *mcp.CallToolRequest, params CreateProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "create_project"
	p, err := h.tracker.CreateProject(params.Name, params.Description)
	if err != nil {
		return h.fail(op, err, map[string]any{"name": params.Name})
	}

	current := "-"
	if cur, err := h.tracker.CurrentProject(); err == nil {
		current = cur.Name
	}
	return h.ok(op, "success", map[string]any{
		"name":      p.Name,
		"projectId": p.ID,
		"planId":    p.ActivePlanID,
		"current":   current,
	})
}

// ListProjects handles the list_projects tool call.
func (h *Handlers) ListProjects(ctx context.Context, req *mcp.CallToolRequest, params ListProjectsParams) (*mcp.CallToolResult, any, error) {
	const op = "list_projects"
	projects := h.tracker.ListProjects()
	if len(projects) == 0 {
		return h.ok(op, "empty", nil)
	}

	currentID := ""
	if cur, err := h.tracker.CurrentProject(); err == nil {
		currentID = cur.ID
	}
	lines := make([]string, 0, len(projects))
	for _, p := range projects {
		key := "project.item"
		if p.ID == currentID {
			key = "project.current"
		}
		lines = append(lines, h.render.Render(key, map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"description": textOrDash(p.Description),
		}))
	}
	return h.ok(op, "success", map[string]any{
		"count":    len(projects),
		"projects": strings.Join(lines, "\n"),
	})
}

// GetProjectInfo handles the get_project_info tool call.
func (h *Handlers) GetProjectInfo(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "get_project_info"
	p, err := h.tracker.GetProject(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}
	sum, err := h.tracker.Summarize(p.ID)
	if err != nil {
		return h.fail(op, err, nil)
	}

	fields := summaryFields(sum)
	fields["description"] = textOrDash(p.Description)
	fields["projectId"] = p.ID
	fields["planId"] = p.ActivePlanID
	fields["history"] = orDash(p.PlanHistory)
	return h.ok(op, "success", fields)
}

// UpdateProject handles the update_project tool call.
func (h *Handlers) UpdateProject(ctx context.Context, req *mcp.CallToolRequest, params UpdateProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "update_project"
	p, err := h.tracker.UpdateProject(params.Project, tracker.ProjectPatch{
		Name:        params.Name,
		Description: params.Description,
	})
	if err != nil {
		name := ""
		if params.Name != nil {
			name = *params.Name
		}
		return h.fail(op, err, map[string]any{"name": name})
	}
	return h.ok(op, "success", map[string]any{"projectId": p.ID, "name": p.Name})
}

// DeleteProject handles the delete_project tool call.
func (h *Handlers) DeleteProject(ctx context.Context, req *mcp.CallToolRequest, params RequiredProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "delete_project"
	// Destructive calls never fall back to the current project.
	if strings.TrimSpace(params.Project) == "" {
		return h.fail(op, domain.Validationf("project is required"), nil)
	}
	p, err := h.tracker.GetProject(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}
	if err := h.tracker.DeleteProject(p.ID); err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"name": p.Name, "projectId": p.ID})
}

// SwitchProject handles the switch_project tool call.
func (h *Handlers) SwitchProject(ctx context.Context, req *mcp.CallToolRequest, params RequiredProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "switch_project"
	p, err := h.tracker.SwitchProject(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{"name": p.Name, "projectId": p.ID})
}

// SummarizeProject handles the summarize_project tool call.
func (h *Handlers) SummarizeProject(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "summarize_project"
	sum, err := h.tracker.Summarize(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", summaryFields(sum))
}

func summaryFields(sum *tracker.Summary) map[string]any {
	percent := 0
	if sum.Total > 0 {
		percent = sum.Counts[domain.StatusCompleted] * 100 / sum.Total
	}
	return map[string]any{
		"name":        sum.ProjectName,
		"planVersion": sum.PlanVersion,
		"total":       sum.Total,
		"ready":       sum.Ready,
		"pending":     sum.Counts[domain.StatusPending],
		"inProgress":  sum.Counts[domain.StatusInProgress],
		"completed":   sum.Counts[domain.StatusCompleted],
		"blocked":     sum.Counts[domain.StatusBlocked],
		"percent":     percent,
	}
}
