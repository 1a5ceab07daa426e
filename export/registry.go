package export

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DialectRegistry stores dialects by name.
type DialectRegistry struct {
	mu       sync.RWMutex
	dialects map[DialectName]Dialect
}

// NewDialectRegistry creates an empty registry.
func NewDialectRegistry() *DialectRegistry {
	return &DialectRegistry{dialects: make(map[DialectName]Dialect)}
}

// DefaultDialects returns a registry holding the built-in dialects.
func DefaultDialects() *DialectRegistry {
	reg := NewDialectRegistry()
	_ = reg.Register(MySQL())
	_ = reg.Register(PostgreSQL())
	return reg
}

// Register adds a dialect.
func (r *DialectRegistry) Register(d Dialect) error {
	if d.Name == "" {
		return NewError(KindConfiguration, "dialect name is required", nil)
	}
	if d.Escape == nil {
		return NewError(KindConfiguration, fmt.Sprintf("dialect %q has no escape function", d.Name), nil)
	}
	if d.TextType == "" {
		return NewError(KindConfiguration, fmt.Sprintf("dialect %q has no text column type", d.Name), nil)
	}

	name := normalizeDialectName(string(d.Name))
	d.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dialects[name]; exists {
		return NewError(KindConfiguration, fmt.Sprintf("dialect %q already registered", name), nil)
	}
	r.dialects[name] = d
	return nil
}

// Lookup resolves a dialect by name, case-insensitively. Unknown names fail
// with a configuration error listing the supported set.
func (r *DialectRegistry) Lookup(name string) (Dialect, error) {
	key := normalizeDialectName(name)

	r.mu.RLock()
	d, ok := r.dialects[key]
	r.mu.RUnlock()
	if !ok {
		return Dialect{}, NewError(KindConfiguration,
			fmt.Sprintf("unsupported dialect %q, supported: [%s]", name, strings.Join(r.Names(), ", ")), nil)
	}
	return d, nil
}

// Names returns the registered dialect names, sorted.
func (r *DialectRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dialects))
	for name := range r.dialects {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func normalizeDialectName(name string) DialectName {
	return DialectName(strings.ToLower(strings.TrimSpace(name)))
}
