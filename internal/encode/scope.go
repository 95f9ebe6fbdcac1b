package encode

import (
	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

// Binding is what a destination name resolves to: the term it stands for
// and that term's vector.
type Binding struct {
	Term   ir.Term
	Vector hdc.Vector
}

// Scope is a chain of destination bindings. Lookups fall back to the
// parent for names the scope does not bind itself.
type Scope struct {
	parent   *Scope
	bindings map[string]Binding

	// expansion marks a graph body scope, where bare atom names that the
	// scope binds locally (parameters, earlier body destinations) resolve
	// to those bindings.
	expansion bool
}

// NewScope returns an empty root scope.
func NewScope() *Scope {
	return &Scope{bindings: make(map[string]Binding)}
}

// Child returns a scope whose unresolved names fall back to s.
func (s *Scope) Child() *Scope {
	return &Scope{parent: s, bindings: make(map[string]Binding)}
}

// Bind sets name in this scope, shadowing any parent binding.
func (s *Scope) Bind(name string, b Binding) {
	s.bindings[name] = b
}

// Local resolves name in this scope only.
func (s *Scope) Local(name string) (Binding, bool) {
	b, ok := s.bindings[name]
	return b, ok
}

// Lookup resolves name through the chain, nearest scope first.
func (s *Scope) Lookup(name string) (Binding, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.bindings[name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}

// Len is the number of bindings local to this scope.
func (s *Scope) Len() int { return len(s.bindings) }
