package variables

import (
	"fmt"
	"sort"
	"strings"

	"github.com/buildbeaver/jobvars/common/gerror"
)

// Collection is an ordered list of variables. Keys are not unique: when the collection is
// flattened, later items override earlier items with the same key.
// A Collection is not safe for concurrent modification.
type Collection struct {
	items []Item
}

func NewCollection(items ...Item) *Collection {
	c := &Collection{items: make([]Item, 0, len(items))}
	c.items = append(c.items, items...)
	return c
}

// Append adds item to the end of the collection and returns the collection.
func (c *Collection) Append(item Item) *Collection {
	c.items = append(c.items, item)
	return c
}

// AppendPublic adds a public item to the end of the collection and returns the collection.
func (c *Collection) AppendPublic(key string, value string) *Collection {
	return c.Append(NewPublicItem(key, value))
}

// Concat returns a new collection holding the items of c followed by the items of other.
// Neither c nor other is modified. A nil other is treated as empty.
func (c *Collection) Concat(other *Collection) *Collection {
	n := c.Len()
	if other != nil {
		n += other.Len()
	}
	result := &Collection{items: make([]Item, 0, n)}
	if c != nil {
		result.items = append(result.items, c.items...)
	}
	if other != nil {
		result.items = append(result.items, other.items...)
	}
	return result
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns a copy of the items in insertion order.
func (c *Collection) Items() []Item {
	if c == nil {
		return nil
	}
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return items
}

// Get returns the last item with the given key.
func (c *Collection) Get(key string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	for i := len(c.items) - 1; i >= 0; i-- {
		if c.items[i].Key == key {
			return c.items[i], true
		}
	}
	return Item{}, false
}

// Value returns the value of the last item with the given key, or "" if there is none.
func (c *Collection) Value(key string) string {
	item, _ := c.Get(key)
	return item.Value
}

// Keys returns the distinct keys in the collection, ordered by first appearance.
func (c *Collection) Keys() []string {
	seen := make(map[string]bool, c.Len())
	var keys []string
	for _, item := range c.Items() {
		if !seen[item.Key] {
			seen[item.Key] = true
			keys = append(keys, item.Key)
		}
	}
	return keys
}

// RunnerPayload returns every item in insertion order in the runner wire format. Duplicate keys
// are preserved; the runner resolves them last-write-wins.
func (c *Collection) RunnerPayload() []RunnerVariable {
	payload := make([]RunnerVariable, 0, c.Len())
	for _, item := range c.Items() {
		payload = append(payload, item.toRunnerVariable())
	}
	return payload
}

// ToMap flattens the collection to a map, resolving duplicate keys last-write-wins.
// Values are not expanded.
func (c *Collection) ToMap() map[string]string {
	return c.flatten(true)
}

func (c *Collection) flatten(includeFiles bool) map[string]string {
	result := make(map[string]string, c.Len())
	for _, item := range c.Items() {
		if item.File && !includeFiles {
			// A later file item still shadows an earlier plain item with the same key
			delete(result, item.Key)
			continue
		}
		result[item.Key] = item.Value
	}
	return result
}

// SortAndExpandAll flattens the collection last-write-wins and expands every value once against
// the flattened result. Expansion is a single pass: a value that still holds references after
// expansion is returned as is. File items are not available as expansion sources and their own
// values are returned unexpanded; raw items are returned unexpanded.
func (c *Collection) SortAndExpandAll() map[string]string {
	source := c.flatten(false)
	latest := make(map[string]Item, c.Len())
	for _, item := range c.Items() {
		latest[item.Key] = item
	}
	result := make(map[string]string, len(latest))
	for key, item := range latest {
		if item.File || item.Raw {
			result[key] = item.Value
			continue
		}
		result[key] = expandWithLookup(item.Value, func() map[string]string { return source })
	}
	return result
}

// Sort returns a copy of the collection ordered so that each item comes after the items its value
// references, preserving insertion order otherwise. If the references form a cycle the collection
// is returned unsorted along with a validation error naming the keys involved.
func (c *Collection) Sort() (*Collection, error) {
	items := c.Items()
	byKey := make(map[string][]int, len(items))
	for i, item := range items {
		byKey[item.Key] = append(byKey[item.Key], i)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(items))
	sorted := make([]Item, 0, len(items))
	var stack []int
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		switch state[i] {
		case done:
			return true
		case visiting:
			for k := len(stack) - 1; k >= 0; k-- {
				cycle = append(cycle, items[stack[k]].Key)
				if stack[k] == i {
					break
				}
			}
			return false
		}
		state[i] = visiting
		stack = append(stack, i)
		if !items[i].Raw {
			for _, ref := range References(items[i].Value) {
				for _, j := range byKey[ref] {
					if j != i && !visit(j) {
						return false
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		sorted = append(sorted, items[i])
		return true
	}

	for i := range items {
		if !visit(i) {
			return NewCollection(items...), gerror.NewErrValidationFailed(cycleMessage(cycle))
		}
	}
	return NewCollection(sorted...), nil
}

func cycleMessage(keys []string) string {
	seen := make(map[string]bool, len(keys))
	var unique []string
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}
	sort.Strings(unique)
	return fmt.Sprintf("circular variable reference detected: %s", strings.Join(unique, ", "))
}
