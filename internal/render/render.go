// Package render turns operation outcomes into Markdown responses.
//
// Templates are plain text with {placeholder} slots, grouped per locale in
// YAML catalogs embedded into the binary. A template is addressed by
// "<operation>.<outcome>", where outcome is "success", "error", an error
// kind such as "CycleDetected", or a list fragment such as "item".
package render

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var catalogFS embed.FS

// DefaultLocale is used when no locale is configured.
const DefaultLocale = "en"

// CommonError is the last fallback for error outcomes.
const CommonError = "common.error"

var placeholderRe = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// Catalog maps template keys to template text for one locale.
type Catalog map[string]string

// Renderer renders templates of one locale.
type Renderer struct {
	locale  string
	catalog Catalog
}

// New loads the embedded catalogs, checks them for parity and returns a
// renderer for locale ("" means DefaultLocale).
func New(locale string) (*Renderer, error) {
	catalogs, err := Load(catalogFS)
	if err != nil {
		return nil, err
	}
	return NewFromCatalogs(catalogs, locale)
}

// NewFromCatalogs validates catalogs and selects locale.
func NewFromCatalogs(catalogs map[string]Catalog, locale string) (*Renderer, error) {
	if err := Validate(catalogs); err != nil {
		return nil, err
	}
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" {
		locale = DefaultLocale
	}
	catalog, ok := catalogs[locale]
	if !ok {
		return nil, fmt.Errorf("unknown locale %q (available: %s)", locale, strings.Join(Locales(catalogs), ", "))
	}
	return &Renderer{locale: locale, catalog: catalog}, nil
}

// Load reads every "templates/<locale>.yaml" file in fsys. Each file maps
// operation names to outcome templates.
func Load(fsys fs.FS) (map[string]Catalog, error) {
	files, err := fs.Glob(fsys, "templates/*.yaml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no template catalogs found")
	}

	catalogs := make(map[string]Catalog, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		var raw map[string]map[string]string
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		catalog := make(Catalog)
		for op, outcomes := range raw {
			for outcome, text := range outcomes {
				catalog[op+"."+outcome] = strings.TrimRight(text, "\n")
			}
		}
		locale := strings.TrimSuffix(path.Base(file), ".yaml")
		catalogs[locale] = catalog
	}
	return catalogs, nil
}

// Validate checks that every locale defines the same keys with the same
// placeholder sets, and that the common error fallback exists.
func Validate(catalogs map[string]Catalog) error {
	locales := Locales(catalogs)
	if len(locales) == 0 {
		return fmt.Errorf("no template catalogs")
	}

	ref := locales[0]
	var problems []string
	for _, loc := range locales {
		if _, ok := catalogs[loc][CommonError]; !ok {
			problems = append(problems, fmt.Sprintf("%s: missing %s", loc, CommonError))
		}
	}

	keys := make(map[string]bool)
	for _, loc := range locales {
		for key := range catalogs[loc] {
			keys[key] = true
		}
	}
	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		refText, refOK := catalogs[ref][key]
		for _, loc := range locales {
			text, ok := catalogs[loc][key]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s: missing %s", loc, key))
				continue
			}
			if loc == ref || !refOK {
				continue
			}
			if a, b := strings.Join(Placeholders(refText), ","), strings.Join(Placeholders(text), ","); a != b {
				problems = append(problems, fmt.Sprintf("%s: %s placeholders [%s] differ from %s [%s]", loc, key, b, ref, a))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("template catalogs are inconsistent:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Locales lists the locales of catalogs in sorted order.
func Locales(catalogs map[string]Catalog) []string {
	out := make([]string, 0, len(catalogs))
	for loc := range catalogs {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Placeholders returns the sorted, de-duplicated placeholder names of tmpl.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}

// Substitute replaces every {name} in tmpl with fields[name]. Placeholders
// without a value are left as they are.
func Substitute(tmpl string, fields map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		v, ok := fields[m[1:len(m)-1]]
		if !ok {
			return m
		}
		return format(v)
	})
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Locale reports the renderer's locale.
func (r *Renderer) Locale() string {
	return r.locale
}

// Has reports whether key exists.
func (r *Renderer) Has(key string) bool {
	_, ok := r.catalog[key]
	return ok
}

// Render renders key with fields. An unknown key renders as the key itself
// so a missing template is visible instead of silently empty.
func (r *Renderer) Render(key string, fields map[string]any) string {
	tmpl, ok := r.catalog[key]
	if !ok {
		return key
	}
	return Substitute(tmpl, fields)
}

// Outcome renders "<op>.<outcome>". For anything but success the lookup
// falls back to "<op>.error" and then to the common error template.
func (r *Renderer) Outcome(op, outcome string, fields map[string]any) string {
	key := op + "." + outcome
	if r.Has(key) || outcome == "success" {
		return r.Render(key, fields)
	}
	if r.Has(op + ".error") {
		return r.Render(op+".error", fields)
	}
	return r.Render(CommonError, fields)
}

// List renders each element with key and joins the results with newlines.
func (r *Renderer) List(key string, items []map[string]any) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, r.Render(key, item))
	}
	return strings.Join(lines, "\n")
}
