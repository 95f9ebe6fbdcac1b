// Package harness runs YAML scenarios against real sessions.
//
// A scenario learns a theory, then runs query, find_all, prove and learn
// steps with expectations. Each scenario runs once per listed strategy
// (all four by default), each run in a fresh session journaled to an
// in-memory fact log. After the steps, the log is replayed into another
// fresh session and the two must agree.
//
// Proof trees and find_all answers of steps marked golden form the
// scenario's transcript, compared against testdata/golden/{name}.golden.
// The transcript must be identical under every strategy.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
