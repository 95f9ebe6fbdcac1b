package harness

import (
	"maps"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/engine"
	"github.com/roach88/hyperlore/internal/proof"
	"github.com/roach88/hyperlore/internal/query"
)

type failFunc func(format string, args ...any)

func checkLearn(e *Expect, err error, out string, fail failFunc) {
	if e == nil {
		if err != nil {
			fail("unexpected error: %v", err)
		}
		return
	}
	if e.Error != "" {
		var le *engine.LearnError
		if !errors.As(err, &le) {
			fail("expected error %s, learned %s", e.Error, out)
			return
		}
		if string(le.Code) != e.Error {
			fail("expected error %s, got %s", e.Error, le.Code)
		}
		return
	}
	if err != nil {
		fail("unexpected error: %v", err)
		return
	}
	if e.Duplicate != strings.HasPrefix(out, "duplicate") {
		fail("expected duplicate=%v, got %s", e.Duplicate, out)
	}
}

func checkQuery(e *Expect, res *query.Result, fail failFunc) {
	if e == nil {
		return
	}
	if e.Outcome != "" && string(res.Outcome) != e.Outcome {
		fail("expected outcome %s, got %s", e.Outcome, res.Outcome)
	}
	if e.MinConfidence != nil && res.Confidence < *e.MinConfidence {
		fail("expected confidence >= %.3f, got %.3f", *e.MinConfidence, res.Confidence)
	}
	if e.Bindings != nil && !maps.Equal(res.Values(), e.Bindings) {
		fail("expected bindings %v, got %v", e.Bindings, res.Values())
	}
}

func checkAnswers(e *Expect, answers []map[string]string, fail failFunc) {
	if e == nil {
		return
	}
	if e.Count != nil && len(answers) != *e.Count {
		fail("expected %d answers, got %d", *e.Count, len(answers))
	}
	if e.Answers != nil && !equalAnswers(e.Answers, answers) {
		fail("expected answers %v, got %v", e.Answers, answers)
	}
}

func checkProve(e *Expect, res *proof.Result, fail failFunc) {
	if e == nil {
		return
	}
	if e.Valid != nil && res.Valid != *e.Valid {
		fail("expected valid=%v, got %v (reason %q)", *e.Valid, res.Valid, res.Reason)
	}
	if e.Status != "" && string(res.Status) != e.Status {
		fail("expected status %s, got %s", e.Status, res.Status)
	}
	if e.Reason != "" && string(res.Reason) != e.Reason {
		fail("expected reason %s, got %q", e.Reason, res.Reason)
	}
	if e.Bindings != nil && !maps.Equal(res.Bindings, e.Bindings) {
		fail("expected bindings %v, got %v", e.Bindings, res.Bindings)
	}
	checkAnswers(&Expect{Answers: e.Answers, Count: e.Count}, res.Answers, fail)
}

// equalAnswers treats nil and empty binding maps alike.
func equalAnswers(want, got []map[string]string) bool {
	return slices.EqualFunc(want, got, func(a, b map[string]string) bool {
		return maps.Equal(a, b)
	})
}

func answersOf(bs []query.Bindings) []map[string]string {
	out := make([]map[string]string, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}
