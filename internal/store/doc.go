// Package store is the SQLite fact log.
//
// Every fact a session stores can be appended here together with the graph
// definitions it depends on. Replaying the log into a fresh session, under
// any strategy, reproduces the same facts with the same sequence numbers.
//
// # Log Rules
//
//   - Ordering uses the fact seq, never timestamps
//   - Every read is ORDER BY seq ASC
//   - Fact ids are content addressed (ir.FactID); re-appending a stored
//     term is a no-op
//   - Terms are stored as canonical JSON (ir.MarshalCanonical)
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
