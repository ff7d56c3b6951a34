package render

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedCatalogsAreConsistent(t *testing.T) {
	catalogs, err := Load(catalogFS)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := strings.Join(Locales(catalogs), ","); got != "en,zh" {
		t.Fatalf("Locales() = %q, want en,zh", got)
	}
	if err := Validate(catalogs); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(catalogs["en"]) != len(catalogs["zh"]) {
		t.Fatalf("catalog sizes differ: en=%d zh=%d", len(catalogs["en"]), len(catalogs["zh"]))
	}
}

func TestNew_Locales(t *testing.T) {
	for _, loc := range []string{"", "en", "ZH"} {
		r, err := New(loc)
		if err != nil {
			t.Fatalf("New(%q) error = %v", loc, err)
		}
		if !r.Has(CommonError) {
			t.Fatalf("New(%q) renderer lacks %s", loc, CommonError)
		}
	}

	r, _ := New("")
	if r.Locale() != DefaultLocale {
		t.Fatalf("Locale() = %q, want %q", r.Locale(), DefaultLocale)
	}

	if _, err := New("fr"); err == nil || !strings.Contains(err.Error(), "unknown locale") {
		t.Fatalf("New(fr) error = %v, want unknown locale", err)
	}
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		fields map[string]any
		want   string
	}{
		{"plain", "Task {taskId} added", map[string]any{"taskId": "t-1"}, "Task t-1 added"},
		{"int", "{dependenciesCount} deps", map[string]any{"dependenciesCount": 3}, "3 deps"},
		{"slice", "deps: {ids}", map[string]any{"ids": []string{"a", "b"}}, "deps: a, b"},
		{"repeated", "{x}-{x}", map[string]any{"x": "y"}, "y-y"},
		{"missing stays", "hello {who}", nil, "hello {who}"},
		{"not a placeholder", "json {\"a\": 1} {1x}", map[string]any{"a": "b"}, "json {\"a\": 1} {1x}"},
		{"nil value", "[{v}]", map[string]any{"v": nil}, "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.tmpl, tt.fields); got != tt.want {
				t.Fatalf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{b} {a} {b} {not valid} {c_1}")
	want := []string{"a", "b", "c_1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Placeholders() = %v, want %v", got, want)
	}
}

func TestValidate_DetectsDrift(t *testing.T) {
	tests := []struct {
		name     string
		catalogs map[string]Catalog
		wantErr  string
	}{
		{
			name: "missing key",
			catalogs: map[string]Catalog{
				"en": {CommonError: "{kind}", "a.success": "x"},
				"zh": {CommonError: "{kind}"},
			},
			wantErr: "zh: missing a.success",
		},
		{
			name: "placeholder mismatch",
			catalogs: map[string]Catalog{
				"en": {CommonError: "{kind}", "a.success": "{taskId}"},
				"zh": {CommonError: "{kind}", "a.success": "{task}"},
			},
			wantErr: "a.success placeholders",
		},
		{
			name:     "no common error",
			catalogs: map[string]Catalog{"en": {"a.success": "x"}},
			wantErr:  "missing common.error",
		},
		{
			name:     "empty",
			catalogs: map[string]Catalog{},
			wantErr:  "no template catalogs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.catalogs)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/en.yaml": {Data: []byte("common:\n  error: \"{kind}: {message}\"\nadd_task:\n  success: |-\n    added {taskId}\n")},
		"templates/xx.yaml": {Data: []byte("common:\n  error: \"{message} ({kind})\"\nadd_task:\n  success: \"{taskId} ok\"\n")},
	}
	catalogs, err := Load(fsys)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	r, err := NewFromCatalogs(catalogs, "en")
	if err != nil {
		t.Fatalf("NewFromCatalogs() error = %v", err)
	}
	if got := r.Render("add_task.success", map[string]any{"taskId": "t-9"}); got != "added t-9" {
		t.Fatalf("Render() = %q", got)
	}

	if _, err := Load(fstest.MapFS{"templates/bad.yaml": {Data: []byte("- not a map")}}); err == nil {
		t.Fatal("Load() accepted malformed catalog")
	}
	if _, err := Load(fstest.MapFS{}); err == nil {
		t.Fatal("Load() accepted empty filesystem")
	}
}

func TestOutcome_FallbackChain(t *testing.T) {
	r, err := NewFromCatalogs(map[string]Catalog{
		"en": {
			CommonError:        "common {kind}",
			"op.success":       "ok {id}",
			"op.error":         "op failed {kind}",
			"op.CycleDetected": "cycle {ids}",
			"other.success":    "other ok",
		},
	}, "en")
	if err != nil {
		t.Fatalf("NewFromCatalogs() error = %v", err)
	}

	fields := map[string]any{"id": "1", "kind": "TaskNotFound", "ids": "a, b"}
	tests := []struct {
		op, outcome, want string
	}{
		{"op", "success", "ok 1"},
		{"op", "CycleDetected", "cycle a, b"},
		{"op", "TaskNotFound", "op failed TaskNotFound"},
		{"other", "TaskNotFound", "common TaskNotFound"},
		{"missing", "success", "missing.success"},
	}
	for _, tt := range tests {
		if got := r.Outcome(tt.op, tt.outcome, fields); got != tt.want {
			t.Errorf("Outcome(%s, %s) = %q, want %q", tt.op, tt.outcome, got, tt.want)
		}
	}
}

func TestEmbeddedTemplates_Render(t *testing.T) {
	en, _ := New("en")
	zh, _ := New("zh")

	fields := map[string]any{"name": "Login", "taskId": "task-1", "dependenciesCount": 0, "dependencies": "-"}
	if got := en.Outcome("add_task", "success", fields); !strings.Contains(got, "**Login**") || !strings.Contains(got, "task-1") {
		t.Fatalf("en add_task.success = %q", got)
	}
	if got := zh.Outcome("add_task", "success", fields); !strings.Contains(got, "已添加任务") || strings.Contains(got, "{") {
		t.Fatalf("zh add_task.success = %q", got)
	}

	errFields := map[string]any{"kind": "DependenciesUnmet", "message": "task has unfinished dependencies", "ids": "task-a"}
	if got := en.Outcome("complete_task", "DependenciesUnmet", errFields); !strings.Contains(got, "task-a") {
		t.Fatalf("complete_task.DependenciesUnmet = %q", got)
	}
	if got := en.Outcome("start_task", "TaskNotFound", errFields); !strings.HasPrefix(got, "❌ **DependenciesUnmet**") {
		t.Fatalf("common error fallback = %q", got)
	}

	items := []map[string]any{
		{"id": "a", "name": "A", "status": "pending", "dependencies": "-"},
		{"id": "b", "name": "B", "status": "blocked", "dependencies": "a"},
	}
	list := en.List("task.item", items)
	if strings.Count(list, "\n") != 1 || !strings.Contains(list, "[blocked]") {
		t.Fatalf("List() = %q", list)
	}
}
