// Package recent remembers the last few trials resolved locally so a stale
// wanted list cannot put them back.
package recent

import (
	"sync"

	"nihhunt.ai/internal/hunt/registry"
)

const DefaultCapacity = 60

type Interaction struct {
	Type registry.EntityType
	ID   int
}

// Cache is a fixed-capacity ring buffer; the oldest entry is evicted first.
type Cache struct {
	mu    sync.Mutex
	buf   []Interaction
	start int
	n     int
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{buf: make([]Interaction, capacity)}
}

func (c *Cache) Record(t registry.EntityType, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Interaction{Type: t, ID: id}
	if c.n < len(c.buf) {
		c.buf[(c.start+c.n)%len(c.buf)] = e
		c.n++
		return
	}
	c.buf[c.start] = e
	c.start = (c.start + 1) % len(c.buf)
}

// Entries returns the held interactions, oldest first.
func (c *Cache) Entries() []Interaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Interaction, 0, c.n)
	for i := 0; i < c.n; i++ {
		out = append(out, c.buf[(c.start+i)%len(c.buf)])
	}
	return out
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *Cache) Cap() int { return len(c.buf) }

// Reconcile demotes every held interaction on d.
func (c *Cache) Reconcile(d registry.Demoter) {
	for _, e := range c.Entries() {
		d.Demote(e.Type, e.ID)
	}
}
