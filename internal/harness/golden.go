package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs the scenario under each of its strategies and
// compares every transcript against testdata/golden/{scenario.Name}.golden.
// Failed expectations fail the test.
func RunWithGolden(t *testing.T, sc *Scenario) {
	t.Helper()

	results, err := Run(context.Background(), sc, Options{})
	if err != nil {
		t.Fatalf("run %s: %v", sc.Name, err)
	}
	for _, res := range results {
		for _, e := range res.Errors {
			t.Errorf("%s/%s: %s", res.Scenario, res.Strategy, e)
		}
		AssertGolden(t, sc.Name, res)
	}
}

// AssertGolden compares a result's transcript against its golden file.
func AssertGolden(t *testing.T, name string, res *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(res.Transcript))
}
