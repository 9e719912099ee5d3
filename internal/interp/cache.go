package interp

import (
	"container/list"
	"sort"
	"strings"
	"sync"
)

// templateCache is an LRU cache of compiled templates keyed on
// (template, ctxName, sorted-key-signature-of-locals), the keying
// spec §4.8 prescribes. Grounded on the teacher's ConditionCache,
// adapted from caching a single expr.Program per condition string to
// caching a whole compiledTemplate (several ${...} programs) per
// template string.
type templateCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key      string
	compiled *compiledTemplate
}

func newTemplateCache(capacity int) *templateCache {
	if capacity <= 0 {
		capacity = 256
	}

	return &templateCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func cacheKey(template, ctxName string, locals map[string]any) string {
	keys := make([]string, 0, len(locals))
	for k := range locals {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(template)
	b.WriteByte(0)
	b.WriteString(ctxName)
	b.WriteByte(0)
	b.WriteString(strings.Join(keys, ","))

	return b.String()
}

func (c *templateCache) get(key string) (*compiledTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)

		return el.Value.(*cacheEntry).compiled, true
	}

	return nil, false
}

func (c *templateCache) put(key string, compiled *compiledTemplate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).compiled = compiled

		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, compiled: compiled})
	c.entries[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}
