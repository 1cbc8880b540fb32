package aggregator

// orderedGroups is a map that remembers the order in which keys were first
// inserted. Iteration follows that order.
type orderedGroups[K comparable, V any] struct {
	index map[K]int
	keys  []K
	vals  []*V
}

func newOrderedGroups[K comparable, V any]() *orderedGroups[K, V] {
	return &orderedGroups[K, V]{index: make(map[K]int)}
}

// getOrCreate returns the group for key, creating it with init on first sight.
func (g *orderedGroups[K, V]) getOrCreate(key K, init func() V) *V {
	if i, ok := g.index[key]; ok {
		return g.vals[i]
	}
	v := init()
	g.index[key] = len(g.keys)
	g.keys = append(g.keys, key)
	g.vals = append(g.vals, &v)
	return &v
}

func (g *orderedGroups[K, V]) len() int {
	return len(g.keys)
}

// each visits groups in first-seen order.
func (g *orderedGroups[K, V]) each(fn func(key K, v *V)) {
	for i, k := range g.keys {
		fn(k, g.vals[i])
	}
}
