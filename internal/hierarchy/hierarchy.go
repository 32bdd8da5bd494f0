// Package hierarchy rebuilds trees from flat lists, either by explicit parent keys or by
// segmented key prefixes ("16.2.1" under "16.2" under "16").
package hierarchy

import (
	"slices"
	"strings"
)

// Node is one tree entry. Items holds every input item that maps to Key; a node with no
// items was created only to connect a deeper key to its ancestors.
type Node[T any] struct {
	Key      string
	Items    []T
	Children []*Node[T]
}

// Synthetic reports whether the node exists only as an intermediate prefix.
func (n *Node[T]) Synthetic() bool {
	return len(n.Items) == 0
}

// builder keeps nodes in an arena with a key index so lookups stay O(1) while the tree grows.
type builder[T any] struct {
	arena []*Node[T]
	index map[string]int
	roots []*Node[T]
}

func newBuilder[T any](capacity int) *builder[T] {
	return &builder[T]{
		arena: make([]*Node[T], 0, capacity),
		index: make(map[string]int, capacity),
	}
}

func (b *builder[T]) get(key string) (*Node[T], bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return b.arena[i], true
}

func (b *builder[T]) add(key string) *Node[T] {
	n := &Node[T]{Key: key}
	b.index[key] = len(b.arena)
	b.arena = append(b.arena, n)
	return n
}

// ByParent builds a forest where parent(item) names the key of the item's parent. Items whose
// parent is empty or unknown become roots. Children keep input order.
func ByParent[T any](items []T, key func(T) string, parent func(T) string) []*Node[T] {
	b := newBuilder[T](len(items))
	for _, item := range items {
		k := key(item)
		n, ok := b.get(k)
		if !ok {
			n = b.add(k)
		}
		n.Items = append(n.Items, item)
	}
	attached := make(map[string]bool, len(b.arena))
	for _, item := range items {
		k := key(item)
		if attached[k] {
			continue
		}
		attached[k] = true
		n, _ := b.get(k)
		p := parent(item)
		if pn, ok := b.get(p); ok && p != "" && p != k {
			pn.Children = append(pn.Children, n)
			continue
		}
		b.roots = append(b.roots, n)
	}
	return b.roots
}

// ByPrefix builds a forest from keys made of sep-separated segments. Every proper prefix of a
// key gets a node, synthetic when no item carries that exact key. Empty keys are skipped.
func ByPrefix[T any](items []T, key func(T) string, sep string) []*Node[T] {
	b := newBuilder[T](len(items))
	for _, item := range items {
		k := key(item)
		if k == "" {
			continue
		}
		n := b.ensure(k, sep)
		n.Items = append(n.Items, item)
	}
	return b.roots
}

func (b *builder[T]) ensure(key, sep string) *Node[T] {
	if n, ok := b.get(key); ok {
		return n
	}
	n := b.add(key)
	i := strings.LastIndex(key, sep)
	if i <= 0 {
		b.roots = append(b.roots, n)
		return n
	}
	parent := b.ensure(key[:i], sep)
	parent.Children = append(parent.Children, n)
	return n
}

// Sort orders siblings at every level with cmp.
func Sort[T any](nodes []*Node[T], cmp func(a, b *Node[T]) int) {
	slices.SortStableFunc(nodes, cmp)
	for _, n := range nodes {
		Sort(n.Children, cmp)
	}
}

// Walk visits nodes depth-first in order. Depth is 1 for roots.
func Walk[T any](nodes []*Node[T], fn func(n *Node[T], depth int)) {
	var visit func([]*Node[T], int)
	visit = func(level []*Node[T], depth int) {
		for _, n := range level {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(nodes, 1)
}
