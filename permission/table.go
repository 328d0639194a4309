package permission

import (
	"context"
	"sync"
)

// Source loads the rules of one role.
type Source interface {
	RulesForRole(ctx context.Context, role string) ([]Rule, error)
}

// Table memoizes rules per role. Readers share a RWMutex; a miss loads from
// the Source and publishes the result. Invalidate drops every cached role.
//
// Concurrent misses for the same role may each hit the Source; the last
// writer wins, which is harmless because both loads read the same rows.
type Table struct {
	source Source

	mu         sync.RWMutex
	roles      map[string][]Rule
	generation uint64
}

// NewTable returns an empty Table backed by source.
func NewTable(source Source) *Table {
	return &Table{source: source, roles: make(map[string][]Rule)}
}

// Rules returns the cached rules for role, loading them on first use. The
// returned slice is shared and must not be modified.
func (t *Table) Rules(ctx context.Context, role string) ([]Rule, error) {
	t.mu.RLock()
	rules, ok := t.roles[role]
	gen := t.generation
	t.mu.RUnlock()
	if ok {
		return rules, nil
	}

	loaded, err := t.source.RulesForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		loaded[i].Normalize()
	}

	t.mu.Lock()
	// Do not publish a load that raced with Invalidate.
	if t.generation == gen {
		t.roles[role] = loaded
	}
	t.mu.Unlock()

	return loaded, nil
}

// Resolve loads the role's rules and evaluates them.
func (t *Table) Resolve(ctx context.Context, role, verb, path string) (Decision, error) {
	rules, err := t.Rules(ctx, role)
	if err != nil {
		return Decision{}, err
	}
	return Resolve(rules, verb, path)
}

// Invalidate clears the cache. Call it after any rule write.
func (t *Table) Invalidate() {
	t.mu.Lock()
	t.roles = make(map[string][]Rule)
	t.generation++
	t.mu.Unlock()
}

// Len returns the number of cached roles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.roles)
}
