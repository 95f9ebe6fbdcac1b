// Package proof implements backward-chaining proof search over a session's
// knowledge store.
//
// A goal is proved by one of:
//
//   - direct lookup: a stored fact unifies with the goal and its vector
//     resonates with the encoded goal at or above the strong band
//   - relation properties: reflexive, symmetric and transitive relations
//     declared as facts
//   - rules: an Implies fact whose consequent unifies with the goal, with
//     the antecedent proved one level deeper
//   - connectives: And, Or, and Not (explicit negation, or
//     negation-as-failure in closed-world mode)
//
// Search always terminates. Goals are fingerprinted up to variable renaming
// and a goal already on the current path fails with reason cycle; rule
// application is bounded by MaxDepth; a step budget and the caller's
// context bound total work. None of these are errors: they are reasons on
// an unresolved result.
//
// Proof trees are arenas: nodes refer to children by index, so the tree
// renders, serialises and compacts without pointer cycles. Check replays a
// tree against the store without searching.
package proof
