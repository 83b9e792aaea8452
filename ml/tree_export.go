package ml

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Root returns the id of the root node.
func (dt *DecisionTree) Root() int {
	return 0
}

// Node returns a copy of the node with the given id.
func (dt *DecisionTree) Node(id int) (TreeNode, bool) {
	if id < 0 || id >= len(dt.nodes) {
		return TreeNode{}, false
	}
	return dt.nodes[id], true
}

// Nodes returns a copy of the node arena.
func (dt *DecisionTree) Nodes() []TreeNode {
	out := make([]TreeNode, len(dt.nodes))
	for i, n := range dt.nodes {
		n.Edges = append([]Edge(nil), n.Edges...)
		out[i] = n
	}
	return out
}

// Depth is the largest number of split nodes on any root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	maxDepth := 0
	dt.Walk(func(v Visit) bool {
		if v.Node.IsLeaf() && v.Depth > maxDepth {
			maxDepth = v.Depth
		}
		return true
	})
	return maxDepth
}

// Visit is what Walk hands to its callback. Parent is -1 for the root.
type Visit struct {
	ID     int
	Parent int
	Edge   string
	Depth  int
	Node   TreeNode
}

// Walk visits nodes depth-first, parents before children and edges in order.
// Returning false from fn skips the node's subtree.
func (dt *DecisionTree) Walk(fn func(Visit) bool) {
	if len(dt.nodes) == 0 {
		return
	}
	dt.walk(Visit{ID: 0, Parent: -1, Node: dt.nodes[0]}, fn)
}

func (dt *DecisionTree) walk(v Visit, fn func(Visit) bool) {
	if !fn(v) {
		return
	}
	for _, e := range v.Node.Edges {
		dt.walk(Visit{
			ID:     e.Child,
			Parent: v.ID,
			Edge:   e.Value,
			Depth:  v.Depth + 1,
			Node:   dt.nodes[e.Child],
		}, fn)
	}
}

// NodeText is the display label of a node.
func NodeText(n TreeNode) string {
	switch {
	case n.IsLeaf():
		return "Class: " + n.Label
	case n.Numeric:
		return n.Attribute + " <= " + strconv.FormatFloat(n.Threshold, 'f', 3, 64)
	default:
		return n.Attribute
	}
}

// EdgeText is the display label of the edge leading into a child of parent.
func EdgeText(parent TreeNode, edge string) string {
	if !parent.Numeric {
		return edge
	}
	return edge + " " + strconv.FormatFloat(parent.Threshold, 'f', 3, 64)
}

var graphNameCleaner = regexp.MustCompile(`[^a-zA-Z]`)

// WriteDOT writes the tree as a Graphviz digraph.
func (dt *DecisionTree) WriteDOT(w io.Writer, name string) error {
	name = graphNameCleaner.ReplaceAllString(name, "")
	if name == "" {
		name = "tree"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", name)
	fmt.Fprintln(bw, "node [shape=box];")
	dt.Walk(func(v Visit) bool {
		fmt.Fprintf(bw, "node%d [label=%s];\n", v.ID, quoteDOT(NodeText(v.Node)))
		if v.Parent >= 0 {
			parent := dt.nodes[v.Parent]
			fmt.Fprintf(bw, "node%d -> node%d [label=%s];\n", v.Parent, v.ID, quoteDOT(EdgeText(parent, v.Edge)))
		}
		return true
	})
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func quoteDOT(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
