// Package engine implements the Session: one vector strategy, its
// vocabulary, a knowledge store and the query and proof engines over it.
//
// A session is the unit of isolation. It owns its strategy instance (and
// with it the exact strategy's index table), so two sessions never share
// vectors and can run in parallel goroutines. Within a session every
// operation takes the session lock; operations are synchronous.
//
// Learning:
//
//	Learn(statement)
//	  -> resolve $refs through the destination scope
//	  -> encode: bind(Op, bundle(bind(Pos_i, Arg_i)))
//	  -> bind the destination (if any)
//	  -> store (unless scratch), append to the journal (if any)
//
// Statements with a destination and no export name are scratch bindings:
// they can be referenced as sub-terms but are never stored as facts.
//
// Failures are *LearnError values carrying a code; a failed Learn stores
// nothing, and LearnAll carries on with the next statement.
package engine
