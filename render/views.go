package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Renderer turns a view path and data into HTML.
type Renderer interface {
	Render(viewPath string, data map[string]any) (string, error)
	Exists(viewPath string) bool
}

// TemplateRenderer renders html/template views stored as
// <root>/<viewPath>.html. Parsed templates are cached unless Reload is set.
type TemplateRenderer struct {
	Root   string
	Reload bool

	funcs template.FuncMap
	mu    sync.RWMutex
	cache map[string]*template.Template
}

func NewTemplateRenderer(root string) *TemplateRenderer {
	return &TemplateRenderer{
		Root:  root,
		cache: map[string]*template.Template{},
		funcs: template.FuncMap{
			"markdown": Markdown,
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
			"default": func(def, v any) any {
				if v == nil || v == "" {
					return def
				}
				return v
			},
		},
	}
}

func (r *TemplateRenderer) file(viewPath string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(viewPath))
	if viewPath == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(r.Root, clean+".html"), true
}

func (r *TemplateRenderer) Exists(viewPath string) bool {
	path, ok := r.file(viewPath)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (r *TemplateRenderer) Render(viewPath string, data map[string]any) (string, error) {
	tpl, err := r.load(viewPath)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", viewPath, err)
	}
	return buf.String(), nil
}

func (r *TemplateRenderer) load(viewPath string) (*template.Template, error) {
	if !r.Reload {
		r.mu.RLock()
		tpl, ok := r.cache[viewPath]
		r.mu.RUnlock()
		if ok {
			return tpl, nil
		}
	}
	path, ok := r.file(viewPath)
	if !ok {
		return nil, fmt.Errorf("invalid view path %q", viewPath)
	}
	tpl, err := template.New(filepath.Base(path)).Funcs(r.funcs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse view %s: %w", viewPath, err)
	}
	r.mu.Lock()
	r.cache[viewPath] = tpl
	r.mu.Unlock()
	return tpl, nil
}
