package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// local is the L1 tier: a bounded-TTL map guarded by a mutex, plus the
// reverse-dependency graph invalidation walks. It is not replicated to
// Redis — single-process authority over the invalidation graph is
// intentional (spec.md §5: "no global order across rooms").
type local struct {
	mu      sync.Mutex
	entries map[string]entry
	// dependents[dep] is the set of keys that must be invalidated when
	// dep is invalidated.
	dependents map[string]map[string]struct{}
}

func newLocal() *local {
	return &local{
		entries:    make(map[string]entry),
		dependents: make(map[string]map[string]struct{}),
	}
}

func (l *local) get(key string) (interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(l.entries, key)
		return nil, false
	}
	return e.value, true
}

func (l *local) set(key string, value interface{}, ttl time.Duration, deps []string) {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = DefaultTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	for _, dep := range deps {
		set, ok := l.dependents[dep]
		if !ok {
			set = make(map[string]struct{})
			l.dependents[dep] = set
		}
		set[key] = struct{}{}
	}
}

// invalidate removes key; with cascade, also removes every key that
// named key as a dependency, transitively.
func (l *local) invalidate(key string, cascade bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := []string{}
	queue := []string{key}
	seen := map[string]bool{}

	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true

		if _, ok := l.entries[k]; ok {
			delete(l.entries, k)
			removed = append(removed, k)
		}

		if cascade {
			if deps, ok := l.dependents[k]; ok {
				for dep := range deps {
					queue = append(queue, dep)
				}
			}
		}
		delete(l.dependents, k)
	}

	return removed
}

func (l *local) invalidatePattern(glob string) []string {
	prefix := strings.TrimSuffix(glob, "*")

	l.mu.Lock()
	var matched []string
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, k)
		}
	}
	l.mu.Unlock()

	var removed []string
	for _, k := range matched {
		removed = append(removed, l.invalidate(k, true)...)
	}
	return removed
}
