package proof

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

// budget bounds the total work of one proof.
//
// Cycle detection catches goals that recur beneath themselves; the budget
// catches everything else (wide rule fan-out, long transitive chains, a
// caller deadline). Once spent it stays spent, so the search unwinds
// quickly after exhaustion.
type budget struct {
	ctx      context.Context
	maxSteps int
	steps    int
	err      error
}

func newBudget(ctx context.Context, maxSteps int) *budget {
	return &budget{ctx: ctx, maxSteps: maxSteps}
}

// spend consumes one step. The error is a StepsExceededError or the
// context's error.
func (b *budget) spend() error {
	if b.err != nil {
		return b.err
	}
	b.steps++
	if b.steps > b.maxSteps {
		b.err = &StepsExceededError{Steps: b.steps, Limit: b.maxSteps}
		return b.err
	}
	if err := b.ctx.Err(); err != nil {
		b.err = errors.Wrap(err, "proof search")
		return b.err
	}
	return nil
}

// StepsExceededError reports an exhausted step budget.
type StepsExceededError struct {
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("proof exceeded step budget: %d steps > %d limit", e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
