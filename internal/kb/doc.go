// Package kb is the knowledge store: the ordered list of facts, which is
// the truth, plus a derived superposition of every fact vector, which is
// only a retrieval accelerator.
//
// Facts are immutable and content addressed. Learning the same term twice
// returns the existing fact. Revision is additive: a later Not(f) revises f
// without editing it, and rules, negations and relation-property
// declarations are facts like any other, classified by the shape of their
// term rather than by similarity.
//
// The aggregate is maintained incrementally through the strategy's
// accumulator. Rebuild recomputes it from the facts; VerifyAggregate checks
// the incremental value against a rebuild.
package kb
