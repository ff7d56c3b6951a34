package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/tracker"
)

// CreatePlanVersionParams are the arguments of create_plan_version.
type CreatePlanVersionParams struct {
	Project             string   `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	TaskIDs             []string `json:"task_ids,omitempty" jsonschema:"Tasks of the active plan to carry over"`
	All                 bool     `json:"all,omitempty" jsonschema:"Carry over every task of the active plan"`
	ExcludeCompleted    bool     `json:"exclude_completed,omitempty" jsonschema:"Leave completed tasks behind"`
	IncludeDependencies bool     `json:"include_dependencies,omitempty" jsonschema:"Also carry over every dependency of the selection"`
	Label               string   `json:"label,omitempty" jsonschema:"Name of the new version"`
}

// RestorePlanParams are the arguments of restore_plan.
type RestorePlanParams struct {
	Project string `json:"project,omitempty" jsonschema:"Project id or name; defaults to the current project"`
	PlanID  string `json:"plan_id" jsonschema:"Archived plan to restore"`
}

// DiffPlansParams are the arguments of diff_plans.
type DiffPlansParams struct {
	PlanA string `json:"plan_a" jsonschema:"Plan to compare from"`
	PlanB string `json:"plan_b" jsonschema:"Plan to compare to"`
}

// CreatePlanVersion handles the create_plan_version tool call.
func (h *Handlers) CreatePlanVersion(ctx context.Context, req *mcp.CallToolRequest, params CreatePlanVersionParams) (*mcp.CallToolResult, any, error) {
	const op = "create_plan_version"
	before, err := h.tracker.GetProject(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}

	plan, err := h.tracker.CreatePlanVersion(before.ID, tracker.PlanSelection{
		TaskIDs:             params.TaskIDs,
		All:                 params.All,
		ExcludeCompleted:    params.ExcludeCompleted,
		IncludeDependencies: params.IncludeDependencies,
		Label:               params.Label,
	})
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"version":    plan.Version,
		"planId":     plan.ID,
		"count":      len(plan.TaskIDs),
		"label":      plan.Label,
		"previousId": before.ActivePlanID,
	})
}

// RestorePlan handles the restore_plan tool call.
func (h *Handlers) RestorePlan(ctx context.Context, req *mcp.CallToolRequest, params RestorePlanParams) (*mcp.CallToolResult, any, error) {
	const op = "restore_plan"
	plan, err := h.tracker.RestorePlan(params.Project, params.PlanID)
	if err != nil {
		return h.fail(op, err, nil)
	}
	return h.ok(op, "success", map[string]any{
		"sourceId": params.PlanID,
		"version":  plan.Version,
		"planId":   plan.ID,
		"count":    len(plan.TaskIDs),
	})
}

// ListPlans handles the list_plans tool call.
func (h *Handlers) ListPlans(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "list_plans"
	plans, err := h.tracker.ListPlans(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}

	lines := make([]string, 0, len(plans))
	for _, p := range plans {
		fields := map[string]any{
			"version": p.Version,
			"id":      p.ID,
			"count":   len(p.TaskIDs),
			"label":   p.Label,
		}
		if !p.ReadOnly {
			lines = append(lines, h.render.Render("plan.active", fields))
			continue
		}
		fields["frozenAt"] = "-"
		if p.FrozenAt != nil {
			fields["frozenAt"] = timestamp(*p.FrozenAt)
		}
		lines = append(lines, h.render.Render("plan.archived", fields))
	}
	return h.ok(op, "success", map[string]any{"count": len(plans), "plans": strings.Join(lines, "\n")})
}

// DiffPlans handles the diff_plans tool call.
func (h *Handlers) DiffPlans(ctx context.Context, req *mcp.CallToolRequest, params DiffPlansParams) (*mcp.CallToolResult, any, error) {
	const op = "diff_plans"
	diff, err := h.tracker.DiffPlans(params.PlanA, params.PlanB)
	if err != nil {
		return h.fail(op, err, nil)
	}
	if diff.Empty() {
		return h.ok(op, "empty", map[string]any{"planA": diff.PlanA, "planB": diff.PlanB})
	}

	changes := "  -"
	if len(diff.StatusChanged) > 0 {
		items := make([]map[string]any, 0, len(diff.StatusChanged))
		for _, c := range diff.StatusChanged {
			items = append(items, map[string]any{"taskId": c.TaskID, "from": string(c.From), "to": string(c.To)})
		}
		changes = h.render.List("diff.change", items)
	}
	return h.ok(op, "success", map[string]any{
		"planA":   diff.PlanA,
		"planB":   diff.PlanB,
		"added":   orDash(diff.Added),
		"removed": orDash(diff.Removed),
		"changes": changes,
	})
}

// ReadyTasks handles the ready_tasks tool call.
func (h *Handlers) ReadyTasks(ctx context.Context, req *mcp.CallToolRequest, params ProjectParams) (*mcp.CallToolResult, any, error) {
	const op = "ready_tasks"
	tasks, err := h.tracker.ReadyTasks(params.Project)
	if err != nil {
		return h.fail(op, err, nil)
	}
	if len(tasks) == 0 {
		return h.ok(op, "empty", nil)
	}
	return h.ok(op, "success", map[string]any{"count": len(tasks), "tasks": h.taskList(tasks)})
}
