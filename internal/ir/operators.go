package ir

// Reserved operators. These are ordinary atoms to the vector algebra; the
// proof engine and the knowledge store give them structural meaning.
const (
	OpImplies = "Implies"
	OpNot     = "Not"
	OpAnd     = "And"
	OpOr      = "Or"

	// Relation property declarations: "TransitiveRelation isA" declares
	// isA transitive. They are facts like any other.
	OpTransitive = "TransitiveRelation"
	OpSymmetric  = "SymmetricRelation"
	OpReflexive  = "ReflexiveRelation"
)

// RelationProperty names a declared property of a binary relation.
type RelationProperty string

const (
	PropertyTransitive RelationProperty = "transitive"
	PropertySymmetric  RelationProperty = "symmetric"
	PropertyReflexive  RelationProperty = "reflexive"
)

// PropertyOperators maps declaration operators to the property they declare.
var PropertyOperators = map[string]RelationProperty{
	OpTransitive: PropertyTransitive,
	OpSymmetric:  PropertySymmetric,
	OpReflexive:  PropertyReflexive,
}

// IsConnective reports whether op decomposes structurally during proof.
func IsConnective(op string) bool {
	switch op {
	case OpAnd, OpOr, OpNot:
		return true
	}
	return false
}

// AsRule splits an Implies compound into antecedent and consequent.
func AsRule(t Term) (antecedent, consequent Term, ok bool) {
	c, isCompound := t.(Compound)
	if !isCompound || c.Operator != OpImplies || len(c.Args) != 2 {
		return nil, nil, false
	}
	return c.Args[0], c.Args[1], true
}

// AsNegation unwraps a Not compound.
func AsNegation(t Term) (Term, bool) {
	c, isCompound := t.(Compound)
	if !isCompound || c.Operator != OpNot || len(c.Args) != 1 {
		return nil, false
	}
	return c.Args[0], true
}

// AsPropertyDeclaration recognises "TransitiveRelation r" style facts.
func AsPropertyDeclaration(t Term) (relation string, prop RelationProperty, ok bool) {
	c, isCompound := t.(Compound)
	if !isCompound || len(c.Args) != 1 {
		return "", "", false
	}
	prop, known := PropertyOperators[c.Operator]
	if !known {
		return "", "", false
	}
	a, isAtom := c.Args[0].(Atom)
	if !isAtom {
		return "", "", false
	}
	return a.Name, prop, true
}
