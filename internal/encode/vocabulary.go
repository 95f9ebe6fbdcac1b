package encode

import (
	"github.com/roach88/hyperlore/internal/hdc"
)

// Vocabulary caches atom vectors by (scope, name) for the lifetime of a
// session. Creation is deterministic; the cache makes repeated lookups
// cheap and records which user atoms exist for query decoding.
type Vocabulary struct {
	alg   hdc.Strategy
	atoms map[string]hdc.Vector
	names []string // ScopeAtom names in creation order
}

// NewVocabulary returns an empty vocabulary over alg.
func NewVocabulary(alg hdc.Strategy) *Vocabulary {
	return &Vocabulary{alg: alg, atoms: make(map[string]hdc.Vector)}
}

func vocabKey(scope, name string) string { return scope + "\x00" + name }

// In returns the atom for name in scope, creating it on first reference.
func (v *Vocabulary) In(scope, name string) (hdc.Vector, error) {
	key := vocabKey(scope, name)
	if vec, ok := v.atoms[key]; ok {
		return vec, nil
	}
	vec, err := v.alg.CreateFromName(name, scope)
	if err != nil {
		return nil, err
	}
	v.atoms[key] = vec
	if scope == ScopeAtom {
		v.names = append(v.names, name)
	}
	return vec, nil
}

// Atom returns a user atom.
func (v *Vocabulary) Atom(name string) (hdc.Vector, error) {
	return v.In(ScopeAtom, name)
}

// Variable returns the vector a hole or rule variable encodes as.
func (v *Vocabulary) Variable(name string) (hdc.Vector, error) {
	return v.In(ScopeVariable, name)
}

// Lookup returns a user atom without creating it.
func (v *Vocabulary) Lookup(name string) (hdc.Vector, bool) {
	vec, ok := v.atoms[vocabKey(ScopeAtom, name)]
	return vec, ok
}

// Candidates lists every user atom in creation order. Position markers and
// variables are excluded.
func (v *Vocabulary) Candidates() []hdc.Candidate {
	out := make([]hdc.Candidate, len(v.names))
	for i, n := range v.names {
		out[i] = hdc.Candidate{Name: n, Vector: v.atoms[vocabKey(ScopeAtom, n)]}
	}
	return out
}

// Len is the number of user atoms.
func (v *Vocabulary) Len() int { return len(v.names) }
