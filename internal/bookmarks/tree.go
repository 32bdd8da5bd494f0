package bookmarks

import "github.com/hyperjump/ectd/internal/models"

// CountBookmarks returns the number of nodes in the forest.
func CountBookmarks(nodes []*models.BookmarkNode) int {
	n := 0
	walk(nodes, func(*models.BookmarkNode) { n++ })
	return n
}

// CalculateMaxDepth returns the deepest level in the forest, 1 for a flat list, 0 when empty.
func CalculateMaxDepth(nodes []*models.BookmarkNode) int {
	deepest := 0
	for _, n := range nodes {
		if n == nil {
			continue
		}
		deepest = max(deepest, 1+CalculateMaxDepth(n.Children))
	}
	return deepest
}

// EnforceMaxDepth returns a copy of nodes no deeper than maxDepth. A node at the limit keeps
// its place and its descendants follow it as siblings in document order, so nothing is
// dropped.
func EnforceMaxDepth(nodes []*models.BookmarkNode, maxDepth int) []*models.BookmarkNode {
	if maxDepth < 1 {
		maxDepth = 1
	}
	var place func(level []*models.BookmarkNode, depth int) []*models.BookmarkNode
	place = func(level []*models.BookmarkNode, depth int) []*models.BookmarkNode {
		out := make([]*models.BookmarkNode, 0, len(level))
		for _, n := range level {
			if n == nil {
				continue
			}
			c := shallow(n)
			c.Level = depth
			out = append(out, c)
			if depth < maxDepth {
				c.Children = place(n.Children, depth+1)
				continue
			}
			walk(n.Children, func(d *models.BookmarkNode) {
				f := shallow(d)
				f.Level = depth
				out = append(out, f)
			})
		}
		return out
	}
	return place(nodes, 1)
}

func shallow(n *models.BookmarkNode) *models.BookmarkNode {
	c := *n
	c.Children = nil
	if n.PageNumber != nil {
		p := *n.PageNumber
		c.PageNumber = &p
	}
	return &c
}

func cloneAll(nodes []*models.BookmarkNode) []*models.BookmarkNode {
	out := make([]*models.BookmarkNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		c := shallow(n)
		c.Children = cloneAll(n.Children)
		out = append(out, c)
	}
	return out
}

// walk visits nodes depth-first in document order.
func walk(nodes []*models.BookmarkNode, fn func(*models.BookmarkNode)) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		fn(n)
		walk(n.Children, fn)
	}
}

func setLevels(nodes []*models.BookmarkNode, level int) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		n.Level = level
		setLevels(n.Children, level+1)
	}
}
