package encode

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/hdc"
)

// MaxArity is the number of reserved position markers.
const MaxArity = 20

// Reserved scopes. Atoms in these scopes are never offered as query answers.
const (
	ScopeAtom     = "atom"
	ScopePosition = "position"
	ScopeVariable = "variable"
)

// PositionName returns the marker name for a 1-based position.
func PositionName(i int) string { return fmt.Sprintf("Pos%d", i) }

// Positions holds the marker vectors Pos1..PosN.
type Positions struct {
	markers []hdc.Vector
}

// NewPositions creates every marker up front so that, under the exact
// strategy, markers take the first appearance indexes in every session.
func NewPositions(v *Vocabulary) (*Positions, error) {
	p := &Positions{markers: make([]hdc.Vector, MaxArity)}
	for i := range p.markers {
		m, err := v.In(ScopePosition, PositionName(i+1))
		if err != nil {
			return nil, errors.Wrapf(err, "position marker %d", i+1)
		}
		p.markers[i] = m
	}
	return p, nil
}

// Marker returns the vector for 1-based position i.
func (p *Positions) Marker(i int) (hdc.Vector, error) {
	if i < 1 || i > len(p.markers) {
		return nil, &ArityError{Arity: i}
	}
	return p.markers[i-1], nil
}

// ArityError reports an argument position beyond MaxArity.
type ArityError struct {
	Arity int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("arity %d outside 1..%d", e.Arity, MaxArity)
}
