package exportsql

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-sqlexport/export"
)

// Definition is a named query. Validate, when set, checks positional args
// before the query runs.
type Definition struct {
	Name     string
	Query    string
	Validate func(args []any) error
}

// Registry holds named queries so callers can select them without sending SQL.
type Registry struct {
	mu      sync.RWMutex
	queries map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{queries: map[string]Definition{}}
}

// Register adds def. Names are unique and trimmed.
func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	switch {
	case def.Name == "":
		return export.NewError(export.KindConfiguration, "query name is required", nil)
	case strings.TrimSpace(def.Query) == "":
		return export.NewError(export.KindConfiguration, fmt.Sprintf("query %q has no SQL", def.Name), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queries == nil {
		r.queries = map[string]Definition{}
	}
	if _, dup := r.queries[def.Name]; dup {
		return export.NewError(export.KindConfiguration, fmt.Sprintf("query %q already registered", def.Name), nil)
	}
	r.queries[def.Name] = def
	return nil
}

// LoadQueries registers name→SQL pairs, as read from a config file.
func (r *Registry) LoadQueries(queries map[string]string) error {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Register(Definition{Name: name, Query: queries[name]}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the named query or a not_found error.
func (r *Registry) Lookup(name string) (Definition, error) {
	if r == nil {
		return Definition{}, export.NewError(export.KindConfiguration, "query registry is required", nil)
	}
	r.mu.RLock()
	def, ok := r.queries[name]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, export.NewError(export.KindNotFound, fmt.Sprintf("query %q not registered", name), nil)
	}
	return def, nil
}

// Names lists registered queries in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queries))
	for name := range r.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
