package dashboard

import (
	_ "embed"
	"fmt"

	"merchantcrm/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed widgets.yaml
var defaultWidgets []byte

type Widget struct {
	Key         string   `yaml:"key" json:"key"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Roles       []string `yaml:"roles" json:"-"`
}

func (w Widget) allows(role string) bool {
	for _, r := range w.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Registry is the fixed list of widgets and the roles that may see them.
type Registry struct {
	widgets []Widget
	byKey   map[string]Widget
}

// LoadRegistry parses a widget list. Keys must be unique and roles known.
func LoadRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Widgets []Widget `yaml:"widgets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse widgets: %w", err)
	}

	r := &Registry{byKey: make(map[string]Widget, len(doc.Widgets))}
	for _, w := range doc.Widgets {
		if w.Key == "" {
			return nil, fmt.Errorf("widget %q has no key", w.Title)
		}
		if _, dup := r.byKey[w.Key]; dup {
			return nil, fmt.Errorf("widget %q is defined twice", w.Key)
		}
		for _, role := range w.Roles {
			if !models.ValidRole(role) {
				return nil, fmt.Errorf("widget %q names unknown role %q", w.Key, role)
			}
		}
		r.widgets = append(r.widgets, w)
		r.byKey[w.Key] = w
	}
	return r, nil
}

// DefaultRegistry returns the built-in widgets.
func DefaultRegistry() *Registry {
	r, err := LoadRegistry(defaultWidgets)
	if err != nil {
		panic(err)
	}
	return r
}

// Allowed lists the widgets role may see, in registry order.
func (r *Registry) Allowed(role string) []Widget {
	var out []Widget
	for _, w := range r.widgets {
		if w.allows(role) {
			out = append(out, w)
		}
	}
	return out
}

func (r *Registry) Permits(role, key string) bool {
	w, ok := r.byKey[key]
	return ok && w.allows(role)
}

func (r *Registry) Get(key string) (Widget, bool) {
	w, ok := r.byKey[key]
	return w, ok
}
