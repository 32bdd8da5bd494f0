package hierarchy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id, parent string
}

func TestByParent(t *testing.T) {
	items := []item{
		{id: "c", parent: "a"},
		{id: "a"},
		{id: "b", parent: "a"},
		{id: "orphan", parent: "missing"},
	}
	roots := ByParent(items, func(i item) string { return i.id }, func(i item) string { return i.parent })
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].Key)
	assert.Equal(t, "orphan", roots[1].Key)
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "c", roots[0].Children[0].Key)
	assert.Equal(t, "b", roots[0].Children[1].Key)
}

func TestByPrefix_CreatesSyntheticAncestors(t *testing.T) {
	codes := []string{"16.2.1", "16.1", "2"}
	roots := ByPrefix(codes, func(s string) string { return s }, ".")
	Sort(roots, func(a, b *Node[string]) int { return strings.Compare(a.Key, b.Key) })

	require.Len(t, roots, 2)
	assert.Equal(t, "16", roots[0].Key)
	assert.True(t, roots[0].Synthetic())
	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "16.1", roots[0].Children[0].Key)
	assert.False(t, roots[0].Children[0].Synthetic())
	assert.Equal(t, "16.2", roots[0].Children[1].Key)
	assert.True(t, roots[0].Children[1].Synthetic())
	assert.Equal(t, "16.2.1", roots[0].Children[1].Children[0].Key)
	assert.Equal(t, "2", roots[1].Key)
}

func TestByPrefix_GroupsItemsWithSameKey(t *testing.T) {
	paths := []string{"m5/a/x.pdf", "m5/a/y.pdf", "m5/b/z.pdf"}
	dir := func(p string) string { return p[:strings.LastIndex(p, "/")] }
	roots := ByPrefix(paths, dir, "/")
	require.Len(t, roots, 1)
	assert.Equal(t, "m5", roots[0].Key)
	require.Len(t, roots[0].Children, 2)
	assert.Len(t, roots[0].Children[0].Items, 2)
}

func TestWalk_Depth(t *testing.T) {
	roots := ByPrefix([]string{"1.1.1"}, func(s string) string { return s }, ".")
	var seen []string
	var depths []int
	Walk(roots, func(n *Node[string], depth int) {
		seen = append(seen, n.Key)
		depths = append(depths, depth)
	})
	assert.Equal(t, []string{"1", "1.1", "1.1.1"}, seen)
	assert.Equal(t, []int{1, 2, 3}, depths)
}
