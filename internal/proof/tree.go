package proof

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/hyperlore/internal/ir"
)

// Node is one step of a proof. Children index into the owning Tree.
type Node struct {
	Goal       ir.Term
	Method     Method
	Children   []int
	Confidence float64
	Status     Status
	Support    []int64 // sequence numbers of the facts relied on
	Reason     Reason
}

// Valid reports whether the node's goal was established.
func (n *Node) Valid() bool { return n.Status == StatusValid }

type nodeJSON struct {
	Goal       string  `json:"goal"`
	Method     Method  `json:"method"`
	Children   []int   `json:"children,omitempty"`
	Confidence float64 `json:"confidence"`
	Status     Status  `json:"status"`
	Support    []int64 `json:"support,omitempty"`
	Reason     Reason  `json:"reason,omitempty"`
}

// MarshalJSON renders the goal in its textual form.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		Goal:       n.Goal.String(),
		Method:     n.Method,
		Children:   n.Children,
		Confidence: n.Confidence,
		Status:     n.Status,
		Support:    n.Support,
		Reason:     n.Reason,
	})
}

// Tree is a proof arena. Root indexes Nodes.
type Tree struct {
	Nodes []Node `json:"nodes"`
	Root  int    `json:"root"`
}

func (t *Tree) add(n Node) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

// RootNode returns the root, or nil for an empty tree.
func (t *Tree) RootNode() *Node {
	if t == nil || t.Root < 0 || t.Root >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[t.Root]
}

// Compact returns a tree holding only the nodes reachable from Root,
// numbered in preorder with the root at 0. Search leaves abandoned
// alternatives in the arena; Compact drops them.
func (t *Tree) Compact() *Tree {
	out := &Tree{}
	if t.RootNode() == nil {
		return out
	}
	var visit func(i int) int
	visit = func(i int) int {
		n := t.Nodes[i]
		idx := out.add(n)
		children := make([]int, len(n.Children))
		for j, c := range n.Children {
			children[j] = visit(c)
		}
		if len(children) == 0 {
			children = nil
		}
		out.Nodes[idx].Children = children
		return idx
	}
	out.Root = visit(t.Root)
	return out
}

// Render draws the tree as indented text, one node per line:
//
//	canFly Tweety [valid rule conf=1.000 support=#3]
//	  isA Tweety Bird [valid direct conf=1.000 support=#1]
func (t *Tree) Render() string {
	var b strings.Builder
	if t.RootNode() == nil {
		return ""
	}
	var walk func(i, depth int)
	walk = func(i, depth int) {
		n := t.Nodes[i]
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Goal.String())
		fmt.Fprintf(&b, " [%s %s conf=%.3f", n.Status, n.Method, n.Confidence)
		if n.Reason != ReasonNone {
			fmt.Fprintf(&b, " reason=%s", n.Reason)
		}
		if len(n.Support) > 0 {
			refs := make([]string, len(n.Support))
			for j, s := range n.Support {
				refs[j] = fmt.Sprintf("#%d", s)
			}
			fmt.Fprintf(&b, " support=%s", strings.Join(refs, ","))
		}
		b.WriteString("]\n")
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t.Root, 0)
	return b.String()
}

// Result is the outcome of Prove.
type Result struct {
	Valid      bool              `json:"valid"`
	Status     Status            `json:"status"`
	Confidence float64           `json:"confidence"`
	Tree       *Tree             `json:"tree"`
	Reason     Reason            `json:"reason,omitempty"`
	Bindings   map[string]string `json:"bindings,omitempty"`

	// Answers lists every distinct solution's bindings, best first.
	Answers []map[string]string `json:"answers,omitempty"`

	Steps int `json:"steps"`
}
