// Package ir provides the structural types shared by every other package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// term model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Term is a closed union (Atom, Var, Compound); structure is never
//     inferred from vector similarity
//   - Statements are the parser's output; ir ships only a whitespace
//     splitter for tests and the CLI, not a grammar
//   - Identity (fact IDs, goal fingerprints) is SHA-256 over canonical
//     JSON with domain separation, stable across processes
//   - All JSON tags use snake_case
package ir
