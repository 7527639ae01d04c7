package render

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

//go:embed templates/*.toml
var builtinTemplates embed.FS

// Layout is the on-disk description of a document. String values are
// text/template expressions evaluated against the ProfileViewModel.
type Layout struct {
	ID        string    `toml:"id"`
	Title     string    `toml:"title"`
	Header    string    `toml:"header"`
	Subheader string    `toml:"subheader"`
	Footer    string    `toml:"footer"`
	Photo     PhotoBox  `toml:"photo"`
	Sections  []Section `toml:"sections"`
}

type PhotoBox struct {
	Show        bool    `toml:"show"`
	WidthMM     float64 `toml:"width_mm"`
	HeightMM    float64 `toml:"height_mm"`
	Placeholder string  `toml:"placeholder"`
}

type Section struct {
	Title string `toml:"title"`
	Rows  []Row  `toml:"rows"`
}

type Row struct {
	Label string `toml:"label"`
	Value string `toml:"value"`
}

// compiled holds a Layout together with its parsed expressions. Every string
// of the layout is a named template inside root.
type compiled struct {
	layout Layout
	root   *template.Template
}

// bound is a Layout with all expressions already evaluated.
type bound struct {
	Title     string
	Header    string
	Subheader string
	Footer    string
	Photo     PhotoBox
	Sections  []boundSection
}

type boundSection struct {
	Title string
	Rows  []Row
}

func baseFuncs() template.FuncMap {
	return template.FuncMap{
		"field": func(string) string { return "" },
		"date":  formatDate,
		"upper": strings.ToUpper,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return model.PlaceholderValue
	}
	return t.UTC().Format("02 Jan 2006")
}

func parseLayout(name string, raw []byte) (*compiled, error) {
	var layout Layout
	if _, err := toml.Decode(string(raw), &layout); err != nil {
		return nil, fmt.Errorf("%w: decode layout %s: %w", apperr.ErrTemplate, name, err)
	}
	if layout.ID == "" {
		layout.ID = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	if layout.Photo.Show {
		if layout.Photo.WidthMM <= 0 {
			layout.Photo.WidthMM = 40
		}
		if layout.Photo.HeightMM <= 0 {
			layout.Photo.HeightMM = 50
		}
	}

	root := template.New(layout.ID).Funcs(baseFuncs()).Option("missingkey=error")
	add := func(key, text string) error {
		if _, err := root.New(key).Parse(text); err != nil {
			return fmt.Errorf("%w: layout %s %s: %w", apperr.ErrTemplate, layout.ID, key, err)
		}
		return nil
	}
	for key, text := range map[string]string{
		"title":     layout.Title,
		"header":    layout.Header,
		"subheader": layout.Subheader,
		"footer":    layout.Footer,
	} {
		if err := add(key, text); err != nil {
			return nil, err
		}
	}
	for i, section := range layout.Sections {
		if err := add(sectionKey(i), section.Title); err != nil {
			return nil, err
		}
		for j, row := range section.Rows {
			if err := add(rowKey(i, j), row.Value); err != nil {
				return nil, err
			}
		}
	}
	return &compiled{layout: layout, root: root}, nil
}

func sectionKey(i int) string { return fmt.Sprintf("section.%d", i) }

func rowKey(i, j int) string { return fmt.Sprintf("section.%d.row.%d", i, j) }

// bind evaluates every expression of the layout against vm.
func (c *compiled) bind(vm *model.ProfileViewModel) (*bound, error) {
	tmpl, err := c.root.Clone()
	if err != nil {
		return nil, fmt.Errorf("%w: clone layout %s: %w", apperr.ErrTemplate, c.layout.ID, err)
	}
	tmpl.Funcs(template.FuncMap{
		"field": func(key string) string {
			if v := strings.TrimSpace(vm.Fields[key]); v != "" {
				return v
			}
			return model.PlaceholderValue
		},
	})

	exec := func(key string) (string, error) {
		var sb strings.Builder
		if err := tmpl.ExecuteTemplate(&sb, key, vm); err != nil {
			return "", fmt.Errorf("%w: layout %s %s: %w", apperr.ErrTemplate, c.layout.ID, key, err)
		}
		return sb.String(), nil
	}

	out := &bound{Photo: c.layout.Photo}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"title", &out.Title},
		{"header", &out.Header},
		{"subheader", &out.Subheader},
		{"footer", &out.Footer},
	} {
		v, err := exec(f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	for i, section := range c.layout.Sections {
		title, err := exec(sectionKey(i))
		if err != nil {
			return nil, err
		}
		bs := boundSection{Title: title, Rows: make([]Row, 0, len(section.Rows))}
		for j, row := range section.Rows {
			value, err := exec(rowKey(i, j))
			if err != nil {
				return nil, err
			}
			bs.Rows = append(bs.Rows, Row{Label: row.Label, Value: value})
		}
		out.Sections = append(out.Sections, bs)
	}
	return out, nil
}

// loadLayouts reads the embedded layouts and then any *.toml in dir, which
// replace embedded layouts with the same id.
func loadLayouts(dir string) (map[string]*compiled, error) {
	layouts := make(map[string]*compiled)
	if err := loadFS(builtinTemplates, "templates", layouts); err != nil {
		return nil, err
	}
	if dir == "" {
		return layouts, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("template dir %s: %w", dir, err)
	}
	if err := loadFS(os.DirFS(dir), ".", layouts); err != nil {
		return nil, err
	}
	return layouts, nil
}

func loadFS(fsys fs.FS, root string, into map[string]*compiled) error {
	matches, err := fs.Glob(fsys, pathJoin(root, "*.toml"))
	if err != nil {
		return fmt.Errorf("list layouts failed: %w", err)
	}
	sort.Strings(matches)
	for _, name := range matches {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read layout %s failed: %w", name, err)
		}
		c, err := parseLayout(name, raw)
		if err != nil {
			return err
		}
		into[c.layout.ID] = c
	}
	return nil
}

func pathJoin(root, pattern string) string {
	if root == "." || root == "" {
		return pattern
	}
	return root + "/" + pattern
}
