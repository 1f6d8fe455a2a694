package anon

import (
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/swind/go-dexmap/unit"
)

// node is one '$'-separated segment of a binary class name. Nodes exist for
// every enclosing name, declared in the unit or not.
type node struct {
	segment  string
	name     string
	parent   *node
	children *linkedhashmap.Map
}

func newNode(parent *node, segment string, name string) *node {
	return &node{
		segment:  segment,
		name:     name,
		parent:   parent,
		children: linkedhashmap.New(),
	}
}

func (n *node) child(segment string) *node {
	if value, ok := n.children.Get(segment); ok {
		return value.(*node)
	}
	c := newNode(n, segment, n.name+"$"+segment)
	n.children.Put(segment, c)
	return c
}

func (n *node) childNodes() []*node {
	values := n.children.Values()
	nodes := make([]*node, len(values))
	for i, value := range values {
		nodes[i] = value.(*node)
	}
	return nodes
}

// tree indexes the class names of a unit by nesting, in declaration order.
type tree struct {
	roots *linkedhashmap.Map
	size  int
}

func buildTree(u *unit.Unit) *tree {
	t := tree{roots: linkedhashmap.New()}
	for _, name := range u.ClassNames() {
		t.insert(name)
	}
	t.walk(func(*node) { t.size++ })
	return &t
}

func (t *tree) insert(name string) {
	packageEnd := strings.LastIndex(name, ".") + 1
	segments := strings.Split(name[packageEnd:], "$")

	rootName := name[:packageEnd] + segments[0]
	var n *node
	if value, ok := t.roots.Get(rootName); ok {
		n = value.(*node)
	} else {
		n = newNode(nil, segments[0], rootName)
		t.roots.Put(rootName, n)
	}
	for _, segment := range segments[1:] {
		n = n.child(segment)
	}
}

// walk visits every node in pre-order.
func (t *tree) walk(fn func(n *node)) {
	var visit func(n *node)
	visit = func(n *node) {
		fn(n)
		for _, c := range n.childNodes() {
			visit(c)
		}
	}
	for _, value := range t.roots.Values() {
		visit(value.(*node))
	}
}

// isAnonymous reports whether segment is a compiler-numbered anonymous class.
func isAnonymous(segment string) bool {
	if segment == "" || segment[0] == '0' {
		return false
	}
	for _, c := range segment {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
