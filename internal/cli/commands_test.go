package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const birdsTheory = `
learn:
  - "isA Tweety Bird"
  - "isA Bird Animal"
  - "TransitiveRelation isA"
  - "@c isA ?x Bird"
  - "@t canFly ?x"
  - "@r:birdsFly Implies $c $t"
  - "isA Opus Bird"
  - "Not (canFly Opus)"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// learnBirds returns a database holding birdsTheory.
func learnBirds(t *testing.T) (db string) {
	t.Helper()
	dir := t.TempDir()
	db = filepath.Join(dir, "kb.db")
	_, err := execute(t, "learn", "--db", db, writeFile(t, dir, "birds.yaml", birdsTheory))
	require.NoError(t, err)
	return db
}

func TestLearn(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kb.db")
	theory := writeFile(t, dir, "birds.yaml", birdsTheory)

	out, err := execute(t, "learn", "--db", db, theory)
	require.NoError(t, err)
	assert.Contains(t, out, "+ #1 isA Tweety Bird")
	assert.Contains(t, out, "+ #4 @r:birdsFly Implies $c $t")
	assert.Contains(t, out, "+ #6 Not (canFly Opus)")
	assert.Contains(t, out, "Learned 6 fact(s), 0 duplicate(s), 0 rejected, 0 graph(s)")

	// The log is replayed first, so relearning finds every fact in place.
	out, err = execute(t, "learn", "--db", db, theory)
	require.NoError(t, err)
	assert.Contains(t, out, "= #4 @r:birdsFly Implies $c $t")
	assert.Contains(t, out, "Learned 0 fact(s), 6 duplicate(s), 0 rejected")

	more := writeFile(t, dir, "more.txt", "# penguins\nisA Pingu Bird\n\nlikes $nobody Pizza\n")
	out, err = execute(t, "learn", "--db", db, more)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "+ #7 isA Pingu Bird")
	assert.Contains(t, out, "✗ likes $nobody Pizza")
	assert.Contains(t, out, "UNBOUND_REFERENCE")
}

func TestLearn_JSON(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kb.db")
	theory := writeFile(t, dir, "sales.yaml", `
graphs:
  - name: trade
    params: [seller, buyer, item]
    body:
      - "@give give seller item"
      - "@get receive buyer item"
      - "@both exchange $give $get"
    return: both
learn:
  - "trade Erin Frank Boat"
  - "sell a1 a2 a3 a4 a5 a6 a7 a8 a9 a10 a11 a12 a13 a14 a15 a16 a17 a18 a19 a20 a21"
`)

	out, err := execute(t, "--format", "json", "learn", "--db", db, theory)
	require.Error(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   LearnResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeLearn, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Graphs)
	assert.Equal(t, 1, resp.Data.Learned)
	assert.Equal(t, 1, resp.Data.Rejected)
	require.Len(t, resp.Data.Lines, 2)
	assert.Equal(t, "ARITY_EXCEEDED", resp.Data.Lines[1].Code)

	// The graph comes back with the log.
	out, err = execute(t, "query", "--db", db, "--exact", "trade", "?s", "Frank", "?i")
	require.NoError(t, err)
	assert.Equal(t, "i=Boat s=Erin\n", out)
}

func TestLearn_CUE(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kb.db")
	theory := writeFile(t, dir, "family.cue", `
graph: trade: {
	params: ["seller", "buyer", "item"]
	body: ["@give give seller item", "@get receive buyer item", "@both exchange $give $get"]
	return: "both"
}
learn: [
	"trade Erin Frank Boat",
	"parent Ann Bob",
	"Implies (And (parent ?x ?y) (ancestor ?y ?z)) (ancestor ?x ?z)",
]
`)

	out, err := execute(t, "--format", "json", "learn", "--db", db, theory)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   LearnResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Graphs)
	assert.Equal(t, 3, resp.Data.Learned)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"ancestor", "ancestor"}, resp.Data.Warnings[0].Path)

	// Replay has already defined trade; the same definition is accepted.
	out, err = execute(t, "learn", "--db", db, theory)
	require.NoError(t, err)
	assert.Contains(t, out, "Learned 0 fact(s), 3 duplicate(s), 0 rejected, 1 graph(s)")

	changed := writeFile(t, dir, "changed.cue", `
graph: trade: {
	params: ["seller", "buyer", "item"]
	body: ["@give give seller item"]
	return: "give"
}
learn: ["parent Ann Bob"]
`)
	_, err = execute(t, "learn", "--db", db, changed)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "define graph trade")
}

func TestLearn_InvalidTheory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kb.db")
	theory := writeFile(t, dir, "bad.yaml", `
graphs:
  - name: pair
    params: [a, b]
    body: ["@p pair $a $b"]
    return: nothing
learn: ["isA Tweety Bird"]
`)

	_, err := execute(t, "learn", "--db", db, theory)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E204")
	assert.Contains(t, err.Error(), "E205")
	assert.NoFileExists(t, db)
}

func TestLearn_MissingTheory(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "learn", "--db", filepath.Join(dir, "kb.db"), filepath.Join(dir, "none.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQuery(t *testing.T) {
	db := learnBirds(t)

	// Six facts share the aggregate, so the decode is reported with
	// whatever confidence it earned.
	out, err := execute(t, "query", "--db", db, "isA", "?x", "Animal")
	require.NoError(t, err)
	assert.Contains(t, out, "x = Bird (")
	assert.Contains(t, out, "support #2")

	out, err = execute(t, "query", "--db", db, "--exact", "isA ?x Bird")
	require.NoError(t, err)
	assert.Equal(t, "x=Tweety\nx=Opus\n", out)

	out, err = execute(t, "query", "--db", db, "--log", "isA", "?x", "Bird")
	require.NoError(t, err)
	assert.Equal(t, "x=Tweety\nx=Opus\n", out)

	out, err = execute(t, "query", "--db", db, "--exact", "isA", "Tweety", "Fish")
	require.NoError(t, err)
	assert.Equal(t, "(none)\n", out)
}

func TestQuery_SingleFactMatches(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "kb.db")
	_, err := execute(t, "learn", "--db", db, writeFile(t, dir, "t.txt", "isA Tweety Bird\n"))
	require.NoError(t, err)

	out, err := execute(t, "query", "--db", db, "isA", "?x", "Bird")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "match conf="), out)
	assert.Contains(t, out, "band=good")
	assert.Contains(t, out, "x = Tweety (")
}

func TestQuery_JSON(t *testing.T) {
	db := learnBirds(t)

	out, err := execute(t, "--format", "json", "query", "--db", db, "isA", "?x", "Animal")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Outcome  string `json:"outcome"`
			Bindings map[string]struct {
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEqual(t, "no_match", resp.Data.Outcome)
	assert.Equal(t, "Bird", resp.Data.Bindings["x"].Value)
}

func TestQuery_Errors(t *testing.T) {
	db := learnBirds(t)

	_, err := execute(t, "query", "--db", filepath.Join(t.TempDir(), "missing.db"), "isA", "?x", "Bird")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, err = execute(t, "query", "--db", db, "   ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestProve(t *testing.T) {
	db := learnBirds(t)

	out, err := execute(t, "prove", "--db", db, "isA", "Tweety", "Animal")
	require.NoError(t, err)
	assert.Contains(t, out, "isA Tweety Animal [valid transitive conf=1.000 support=#3]\n"+
		"  isA Tweety Bird [valid direct conf=1.000 support=#1]\n"+
		"  isA Bird Animal [valid direct conf=1.000 support=#2]\n")
	assert.Contains(t, out, "valid conf=1.000")

	out, err = execute(t, "prove", "--db", db, "canFly ?who")
	require.NoError(t, err)
	assert.Contains(t, out, "who=Tweety\n")
	assert.NotContains(t, out, "who=Opus")

	out, err = execute(t, "prove", "--db", db, "isA", "Tweety", "Fish")
	require.NoError(t, err, "an invalid verdict is still a verdict")
	assert.Contains(t, out, "invalid (no_evidence)")
}

func TestProve_JSON(t *testing.T) {
	db := learnBirds(t)

	out, err := execute(t, "--format", "json", "prove", "--db", db, "canFly", "Opus")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Valid  bool   `json:"valid"`
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, "invalid", resp.Data.Status)
	assert.Equal(t, "explicit_negation", resp.Data.Reason)
}

func TestReplay(t *testing.T) {
	db := learnBirds(t)

	out, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 6 fact(s), 0 graph(s), last #6 under dense")
	assert.Contains(t, out, "✓ Log replays and aggregate verifies")

	// Any strategy can rebuild the log.
	cfg := writeFile(t, t.TempDir(), "exact.yaml", "strategy: exact\n")
	out, err = execute(t, "--config", cfg, "--format", "json", "replay", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Verified)
	assert.Equal(t, "exact", string(resp.Data.Strategy))
	assert.Equal(t, 6, resp.Data.Report.Facts)
	require.Len(t, resp.Data.Sessions, 1)
	assert.Equal(t, int64(1), resp.Data.Sessions[0].FirstSeq)
}

func TestReplay_MissingDatabase(t *testing.T) {
	_, err := execute(t, "replay", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommand(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ birds [dense]")
	assert.Contains(t, out, "✓ family [exact]")
	assert.Contains(t, out, "0 failed, 12 total")

	out, err = execute(t, "test", harnessScenarios, "--filter", "fam*")
	require.NoError(t, err)
	assert.Contains(t, out, "4 passed, 0 failed, 4 total")
}

func TestTestCommand_UpdateAndCompareGolden(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	data, err := os.ReadFile(filepath.Join(harnessScenarios, "family.yaml"))
	require.NoError(t, err)
	writeFile(t, scenarios, "family.yaml", string(data))

	_, err = execute(t, "test", scenarios, "--update")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "golden", "family.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/family.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	writeFile(t, filepath.Join(dir, "golden"), "family.golden", "stale\n")
	out, err := execute(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `
name: wrong
description: A proof that does not hold.
strategies: [sparse]
learn: ["isA Tweety Bird"]
steps:
  - prove: "isA Tweety Fish"
    expect: {valid: true}
`)
	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)

	_, err = execute(t, "test", filepath.Join(dir, "missing"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
