package env

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// VariableTable is the per-run name to value store. Writes are
// last-write-wins. It is owned by one run; the lock only lets reporters
// read it while the run is in progress.
type VariableTable struct {
	mu   sync.RWMutex
	vars map[string]any
}

func NewVariableTable() *VariableTable {
	return &VariableTable{vars: make(map[string]any)}
}

func (t *VariableTable) Set(name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vars[name] = value
}

func (t *VariableTable) SetAll(values map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range values {
		t.vars[k] = v
	}
}

// SetCapture binds a captured value both under its bare name and under
// `step.name`.
func (t *VariableTable) SetCapture(step, name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step != "" {
		t.vars[step+"."+name] = value
	}
	t.vars[name] = value
}

func (t *VariableTable) Get(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vars[name]
	return v, ok
}

// Lookup resolves a possibly dotted name. An exact key wins; otherwise the
// longest bound prefix is walked into maps and slices (`user.roles.0`).
func (t *VariableTable) Lookup(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if v, ok := t.vars[name]; ok {
		return v, true
	}

	parts := strings.Split(name, ".")
	for i := len(parts) - 1; i > 0; i-- {
		root, ok := t.vars[strings.Join(parts[:i], ".")]
		if !ok {
			continue
		}
		if v, ok := walk(root, parts[i:]); ok {
			return v, true
		}
	}
	return nil, false
}

func walk(v any, path []string) (any, bool) {
	for _, key := range path {
		switch cur := v.(type) {
		case map[string]any:
			next, ok := cur[key]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(cur) {
				return nil, false
			}
			v = cur[idx]
		default:
			return nil, false
		}
	}
	return v, true
}

// All returns a copy of the bindings.
func (t *VariableTable) All() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.vars))
	for k, v := range t.vars {
		out[k] = v
	}
	return out
}

func (t *VariableTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.vars))
	for k := range t.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (t *VariableTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vars)
}

func (t *VariableTable) Clone() *VariableTable {
	return &VariableTable{vars: t.All()}
}
