package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cexll/taskgraph/internal/render"
	"github.com/cexll/taskgraph/internal/store"
	"github.com/cexll/taskgraph/internal/tracker"
)

func newHandlers(t *testing.T, locale string) *Handlers {
	t.Helper()
	tr, err := tracker.New(store.NewMemoryStore(), tracker.Options{})
	if err != nil {
		t.Fatalf("tracker.New() error = %v", err)
	}
	r, err := render.New(locale)
	if err != nil {
		t.Fatalf("render.New() error = %v", err)
	}
	return New(tr, r, "")
}

func resultText(t *testing.T, res *mcp.CallToolResult, err error) (string, bool) {
	t.Helper()
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %#v", res)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text, res.IsError
}

// mustOK wraps a handler call and fails the test on a tool error.
func mustOK(t *testing.T) func(*mcp.CallToolResult, any, error) string {
	return func(res *mcp.CallToolResult, _ any, err error) string {
		t.Helper()
		text, isErr := resultText(t, res, err)
		if isErr {
			t.Fatalf("unexpected tool error: %s", text)
		}
		return text
	}
}

// mustFail wraps a handler call and fails the test unless it is a tool error.
func mustFail(t *testing.T) func(*mcp.CallToolResult, any, error) string {
	return func(res *mcp.CallToolResult, _ any, err error) string {
		t.Helper()
		text, isErr := resultText(t, res, err)
		if !isErr {
			t.Fatalf("expected tool error, got: %s", text)
		}
		return text
	}
}

// taskID extracts the first `task-...` id from a rendered response.
func taskID(t *testing.T, text string) string {
	t.Helper()
	i := strings.Index(text, "`task-")
	if i < 0 {
		t.Fatalf("no task id in %q", text)
	}
	rest := text[i+1:]
	return rest[:strings.Index(rest, "`")]
}

func TestScenario_CompleteOrder(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()

	text := mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P1", Description: "demo"}))
	if !strings.Contains(text, "**P1**") || !strings.Contains(text, "Current project: P1") {
		t.Fatalf("create_project = %q", text)
	}

	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	text = mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work", Dependencies: []string{"A"}}))
	b := taskID(t, text)
	if !strings.Contains(text, "Dependencies (1): "+a) {
		t.Fatalf("add_task = %q", text)
	}

	mustOK(t)(h.StartTask(ctx, nil, TaskParams{TaskID: b}))
	text = mustFail(t)(h.CompleteTask(ctx, nil, CompleteTaskParams{TaskID: b}))
	if !strings.Contains(text, "Unfinished dependencies: "+a) {
		t.Fatalf("complete_task error = %q", text)
	}

	mustOK(t)(h.StartTask(ctx, nil, TaskParams{TaskID: a}))
	mustOK(t)(h.CompleteTask(ctx, nil, CompleteTaskParams{TaskID: a, Summary: "done"}))
	text = mustOK(t)(h.CompleteTask(ctx, nil, CompleteTaskParams{TaskID: b, Summary: "shipped"}))
	if !strings.Contains(text, "Summary: shipped") {
		t.Fatalf("complete_task = %q", text)
	}
}

func TestCompleteTask_ListsUnlockedTasks(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work", Dependencies: []string{a}}))

	mustOK(t)(h.StartTask(ctx, nil, TaskParams{TaskID: a}))
	text := mustOK(t)(h.CompleteTask(ctx, nil, CompleteTaskParams{TaskID: a}))
	if !strings.Contains(text, "Ready next: B (") {
		t.Fatalf("complete_task = %q", text)
	}
}

func TestAddTask_CycleAndUnknown(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work", Dependencies: []string{a}}))

	text := mustFail(t)(h.UpdateTask(ctx, nil, UpdateTaskParams{TaskID: a, Dependencies: []string{"B"}}))
	if !strings.Contains(text, "would create a cycle") {
		t.Fatalf("update_task cycle = %q", text)
	}

	text = mustFail(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "C", Description: "third piece of work", Dependencies: []string{"ghost"}}))
	if !strings.Contains(text, "Unknown dependencies: ghost") {
		t.Fatalf("add_task unknown = %q", text)
	}

	text = mustFail(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "D", Description: "short"}))
	if !strings.Contains(text, "**ValidationError**") {
		t.Fatalf("add_task validation = %q", text)
	}
}

func TestUpdateTask_ClearsDependencies(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	b := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work", Dependencies: []string{a}})))

	name := "B2"
	text := mustOK(t)(h.UpdateTask(ctx, nil, UpdateTaskParams{TaskID: b, Name: &name, Dependencies: []string{},
		RelatedFiles: []RelatedFileParams{{Path: "cmd/main.go", Kind: "MODIFY", LineStart: 3, LineEnd: 9}}}))
	if !strings.Contains(text, "## B2") || !strings.Contains(text, "- Dependencies: -") {
		t.Fatalf("update_task = %q", text)
	}
	if !strings.Contains(text, "`cmd/main.go` (MODIFY) L3-L9") {
		t.Fatalf("update_task related files = %q", text)
	}
}

func TestDeleteTask_Policies(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	b := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work", Dependencies: []string{a}})))

	text := mustFail(t)(h.DeleteTask(ctx, nil, DeleteTaskParams{TaskID: a}))
	if !strings.Contains(text, "these tasks depend on it: "+b) {
		t.Fatalf("delete_task strict = %q", text)
	}

	mustFail(t)(h.DeleteTask(ctx, nil, DeleteTaskParams{TaskID: a, Policy: "sometimes"}))

	text = mustOK(t)(h.DeleteTask(ctx, nil, DeleteTaskParams{TaskID: a, Policy: "cascade"}))
	if !strings.Contains(text, "Removed 2 task(s)") {
		t.Fatalf("delete_task cascade = %q", text)
	}
	text = mustOK(t)(h.ListTasks(ctx, nil, ListTasksParams{}))
	if text != "No tasks match." {
		t.Fatalf("list_tasks = %q", text)
	}
}

func TestSplitAndBulk(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	parent := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "Parent", Description: "too big to do at once"})))

	text := mustOK(t)(h.SplitTask(ctx, nil, SplitTaskParams{
		TaskID: parent,
		Subtasks: []SubtaskParams{
			{Name: "one", Description: "the first half of it"},
			{Name: "two", Description: "the second half of it", Dependencies: []string{"one"}},
		},
		ReplaceParent: true,
	}))
	if !strings.Contains(text, "split into 2 subtasks") || !strings.Contains(text, "Parent status: completed") {
		t.Fatalf("split_task = %q", text)
	}

	text = mustOK(t)(h.ListTasks(ctx, nil, ListTasksParams{ParentID: parent}))
	if !strings.Contains(text, "## Tasks (2)") {
		t.Fatalf("list_tasks by parent = %q", text)
	}

	ready := mustOK(t)(h.ReadyTasks(ctx, nil, ProjectParams{}))
	one := taskID(t, ready)

	text = mustOK(t)(h.UpdateStatusBulk(ctx, nil, UpdateStatusBulkParams{TaskIDs: []string{one, "task-nope"}, Status: "in_progress"}))
	if !strings.Contains(text, "1 ok, 1 failed") || !strings.Contains(text, "TaskNotFound") {
		t.Fatalf("update_status_bulk = %q", text)
	}

	mustFail(t)(h.UpdateStatusBulk(ctx, nil, UpdateStatusBulkParams{TaskIDs: []string{one}, Status: "done"}))
	text = mustFail(t)(h.ListTasks(ctx, nil, ListTasksParams{Status: []string{"finished"}}))
	if !strings.Contains(text, "unknown status") {
		t.Fatalf("list_tasks bad status = %q", text)
	}
}

func TestVerifyTask(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	mustOK(t)(h.StartTask(ctx, nil, TaskParams{TaskID: a}))

	text := mustOK(t)(h.VerifyTask(ctx, nil, VerifyTaskParams{TaskID: a, Score: 40, Summary: "tests missing"}))
	if !strings.Contains(text, "score 40 is below 80") {
		t.Fatalf("verify_task failed = %q", text)
	}
	text = mustOK(t)(h.VerifyTask(ctx, nil, VerifyTaskParams{TaskID: a, Score: 90, Summary: "all good"}))
	if !strings.Contains(text, "Verification passed (90/80)") {
		t.Fatalf("verify_task passed = %q", text)
	}

	text = mustOK(t)(h.AppendTaskNote(ctx, nil, AppendNoteParams{TaskID: a, Note: "reviewed"}))
	if !strings.Contains(text, "(3 notes)") {
		t.Fatalf("append_task_note = %q", text)
	}

	text = mustOK(t)(h.GetTaskDetail(ctx, nil, TaskParams{TaskID: a}))
	if !strings.Contains(text, "**completed**") || !strings.Contains(text, "reviewed") {
		t.Fatalf("get_task_detail = %q", text)
	}
}

func TestPlans(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "P"}))
	a := taskID(t, mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "A", Description: "first piece of work"})))
	mustOK(t)(h.AddTask(ctx, nil, AddTaskParams{Name: "B", Description: "second piece of work"}))

	tr := h.tracker
	v1, _ := tr.GetProject("")
	text := mustOK(t)(h.CreatePlanVersion(ctx, nil, CreatePlanVersionParams{TaskIDs: []string{a}, Label: "focus"}))
	if !strings.Contains(text, "Plan v2") || !strings.Contains(text, v1.ActivePlanID) {
		t.Fatalf("create_plan_version = %q", text)
	}
	v2, _ := tr.GetProject("")

	text = mustOK(t)(h.ListPlans(ctx, nil, ProjectParams{}))
	if !strings.Contains(text, "read-only since") || !strings.Contains(text, "**v2**") {
		t.Fatalf("list_plans = %q", text)
	}

	text = mustOK(t)(h.DiffPlans(ctx, nil, DiffPlansParams{PlanA: v1.ActivePlanID, PlanB: v2.ActivePlanID}))
	if !strings.Contains(text, "- Added: -") || !strings.Contains(text, "- Removed: task-") {
		t.Fatalf("diff_plans = %q", text)
	}
	text = mustOK(t)(h.DiffPlans(ctx, nil, DiffPlansParams{PlanA: v2.ActivePlanID, PlanB: v2.ActivePlanID}))
	if !strings.HasPrefix(text, "No differences") {
		t.Fatalf("diff_plans self = %q", text)
	}

	text = mustOK(t)(h.RestorePlan(ctx, nil, RestorePlanParams{PlanID: v1.ActivePlanID}))
	if !strings.Contains(text, "as v3") || !strings.Contains(text, "with 2 tasks") {
		t.Fatalf("restore_plan = %q", text)
	}

	text = mustOK(t)(h.TopologicalOrder(ctx, nil, PlanScopeParams{}))
	if !strings.Contains(text, "1. `"+a+"`") {
		t.Fatalf("topological_order = %q", text)
	}

	text = mustOK(t)(h.QueryTask(ctx, nil, QueryTaskParams{Query: "second"}))
	if !strings.Contains(text, "(1)") {
		t.Fatalf("query_task = %q", text)
	}
	text = mustOK(t)(h.QueryTask(ctx, nil, QueryTaskParams{Query: "nothing like this"}))
	if !strings.Contains(text, "No task matches") {
		t.Fatalf("query_task empty = %q", text)
	}
}

func TestProjects(t *testing.T) {
	h := newHandlers(t, "en")
	ctx := context.Background()

	if text := mustOK(t)(h.ListProjects(ctx, nil, ListProjectsParams{})); !strings.HasPrefix(text, "No projects yet") {
		t.Fatalf("list_projects empty = %q", text)
	}

	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "Alpha"}))
	mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "Beta", Description: "second"}))

	text := mustFail(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "alpha"}))
	if !strings.Contains(text, "A project named **alpha** already exists") {
		t.Fatalf("create_project duplicate = %q", text)
	}

	text = mustOK(t)(h.ListProjects(ctx, nil, ListProjectsParams{}))
	if !strings.Contains(text, "**Alpha** (current)") || !strings.Contains(text, "**Beta**: second") {
		t.Fatalf("list_projects = %q", text)
	}

	text = mustFail(t)(h.SwitchProject(ctx, nil, RequiredProjectParams{Project: "Gamma"}))
	if !strings.Contains(text, "current project is unchanged") {
		t.Fatalf("switch_project missing = %q", text)
	}
	mustOK(t)(h.SwitchProject(ctx, nil, RequiredProjectParams{Project: "beta"}))

	desc := "renamed project"
	text = mustOK(t)(h.UpdateProject(ctx, nil, UpdateProjectParams{Description: &desc}))
	if !strings.Contains(text, "**Beta**") {
		t.Fatalf("update_project = %q", text)
	}

	text = mustOK(t)(h.GetProjectInfo(ctx, nil, ProjectParams{}))
	if !strings.Contains(text, "renamed project") || !strings.Contains(text, "Tasks: 0 total") {
		t.Fatalf("get_project_info = %q", text)
	}

	text = mustOK(t)(h.SummarizeProject(ctx, nil, ProjectParams{Project: "Alpha"}))
	if !strings.Contains(text, "done 0%") {
		t.Fatalf("summarize_project = %q", text)
	}

	mustFail(t)(h.DeleteProject(ctx, nil, RequiredProjectParams{}))
	text = mustOK(t)(h.DeleteProject(ctx, nil, RequiredProjectParams{Project: "Beta"}))
	if !strings.Contains(text, "**Beta**") {
		t.Fatalf("delete_project = %q", text)
	}
	text = mustFail(t)(h.GetProjectInfo(ctx, nil, ProjectParams{Project: "Beta"}))
	if !strings.Contains(text, "**ProjectNotFound**") {
		t.Fatalf("get_project_info after delete = %q", text)
	}
}

func TestLocaleZH(t *testing.T) {
	h := newHandlers(t, "zh")
	ctx := context.Background()
	text := mustOK(t)(h.CreateProject(ctx, nil, CreateProjectParams{Name: "项目"}))
	if !strings.Contains(text, "已创建项目") {
		t.Fatalf("zh create_project = %q", text)
	}
	text = mustFail(t)(h.StartTask(ctx, nil, TaskParams{TaskID: "task-missing"}))
	if !strings.Contains(text, "**TaskNotFound**") || !strings.Contains(text, "相关 ID：task-missing") {
		t.Fatalf("zh common error = %q", text)
	}
}

func TestRegister(t *testing.T) {
	h := newHandlers(t, "en")
	server := mcp.NewServer(&mcp.Implementation{Name: "taskgraph-test", Version: "v0.0.0"}, nil)
	h.Register(server)

	if len(ToolNames) != 27 {
		t.Fatalf("ToolNames has %d entries, want 27", len(ToolNames))
	}
	seen := make(map[string]bool)
	for _, name := range ToolNames {
		if seen[name] {
			t.Fatalf("duplicate tool name %s", name)
		}
		seen[name] = true
	}
}
