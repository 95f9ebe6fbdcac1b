package proof

import "github.com/roach88/hyperlore/internal/ir"

// path is the set of goal fingerprints on the current branch of the search.
//
// It is an immutable linked list: with() returns a longer path and leaves
// the receiver untouched, so sibling branches never see each other's goals.
// A goal proved on one branch may be proved again on another; only a goal
// that reappears beneath itself is a cycle.
type path struct {
	fingerprint string
	parent      *path
}

func (p *path) contains(fp string) bool {
	for n := p; n != nil; n = n.parent {
		if n.fingerprint == fp {
			return true
		}
	}
	return false
}

func (p *path) with(fp string) *path {
	return &path{fingerprint: fp, parent: p}
}

func (p *path) depth() int {
	n := 0
	for ; p != nil; p = p.parent {
		n++
	}
	return n
}

// fingerprint identifies a goal up to variable renaming.
func fingerprint(goal ir.Term) string {
	fp, err := ir.GoalFingerprint(goal)
	if err != nil {
		// Non-canonical goals cannot repeat by fingerprint; fall back to
		// the rendered form.
		return "raw:" + goal.String()
	}
	return fp
}
