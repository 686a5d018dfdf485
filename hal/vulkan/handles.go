package vulkan

import (
	"sync"

	"github.com/emberkit/ember/hal"
)

// table maps opaque hal handles to vkngwrapper objects. Handles are never
// reused, so a stale handle finds nothing instead of a newer object.
type table[T any] struct {
	mu   sync.Mutex
	next hal.Handle
	objs map[hal.Handle]T
}

func (t *table[T]) put(v T) hal.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.objs == nil {
		t.objs = map[hal.Handle]T{}
	}
	t.next++
	t.objs[t.next] = v
	return t.next
}

func (t *table[T]) get(h hal.Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objs[h]
	return v, ok
}

// take removes h and returns what it referred to.
func (t *table[T]) take(h hal.Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objs[h]
	delete(t.objs, h)
	return v, ok
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.objs)
}

// lookup resolves a list of handles, dropping unknown ones.
func lookup[H ~uint64, T any](t *table[T], hs []H) []T {
	out := make([]T, 0, len(hs))
	for _, h := range hs {
		if v, ok := t.get(hal.Handle(h)); ok {
			out = append(out, v)
		}
	}
	return out
}
