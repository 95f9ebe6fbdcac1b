package proof

import (
	"cmp"
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/hyperlore/internal/encode"
	"github.com/roach88/hyperlore/internal/ir"
	"github.com/roach88/hyperlore/internal/kb"
)

// Defaults.
const (
	DefaultMaxDepth = 10
	DefaultMaxSteps = 10000

	// maxSolutions caps the solutions kept per goal.
	maxSolutions = 64
)

// Options tune proof search.
type Options struct {
	// MaxDepth bounds rule applications along one branch.
	MaxDepth int

	// MaxSteps bounds the total number of goals visited.
	MaxSteps int

	// ClosedWorld enables negation-as-failure: Not g holds when g fails
	// for lack of evidence.
	ClosedWorld bool

	// Policy combines premise confidences.
	Policy Policy

	// Threshold is the similarity a direct match needs. Zero selects the
	// strategy's strong band.
	Threshold float64
}

// Prover searches for proofs in one session's store.
//
// Not safe for concurrent use; the session serialises access.
type Prover struct {
	enc    *encode.Encoder
	store  *kb.Store
	opts   Options
	logger *zap.Logger
}

// New returns a Prover. A nil logger discards output.
func New(enc *encode.Encoder, store *kb.Store, opts Options, logger *zap.Logger) *Prover {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Policy == "" {
		opts.Policy = PolicyMin
	}
	if opts.Threshold <= 0 {
		opts.Threshold = enc.Strategy().Profile().Strong
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prover{enc: enc, store: store, opts: opts, logger: logger}
}

// Options returns the effective options.
func (p *Prover) Options() Options { return p.opts }

type solution struct {
	subst Subst
	node  int
	conf  float64
}

type outcome struct {
	solutions []solution
	failure   int
	reason    Reason
}

// search is the state of one Prove call.
type search struct {
	*Prover
	tree   *Tree
	budget *budget
	names  renamer
}

// Prove searches for a proof of goal. Search limits are reported as
// reasons on the result; the error is reserved for malformed goals.
func (p *Prover) Prove(ctx context.Context, goal ir.Term) (*Result, error) {
	if _, ok := goal.(ir.Compound); !ok {
		return nil, errors.Newf("goal %q is not a compound", goal)
	}
	x := &search{Prover: p, tree: &Tree{}, budget: newBudget(ctx, p.opts.MaxSteps)}
	out := x.solve(goal, Subst{}, 0, nil)

	res := &Result{Steps: x.budget.steps}
	vars := ir.Vars(goal)
	if len(out.solutions) > 0 {
		slices.SortStableFunc(out.solutions, func(a, b solution) int {
			return cmp.Compare(b.conf, a.conf)
		})
		best := out.solutions[0]
		x.tree.Root = best.node
		res.Valid = true
		res.Status = StatusValid
		res.Confidence = best.conf
		res.Bindings = best.subst.Restrict(vars)
		for _, s := range out.solutions {
			res.Answers = append(res.Answers, s.subst.Restrict(vars))
		}
	} else {
		x.tree.Root = out.failure
		res.Status = out.reason.Status()
		res.Reason = out.reason
	}
	res.Tree = x.tree.Compact()

	p.logger.Debug("proof finished",
		zap.String("goal", goal.String()),
		zap.String("status", string(res.Status)),
		zap.String("reason", string(res.Reason)),
		zap.Float64("confidence", res.Confidence),
		zap.Int("steps", res.Steps),
		zap.Int("nodes", len(res.Tree.Nodes)),
	)
	return res, nil
}

func (x *search) fail(goal ir.Term, method Method, reason Reason, children []int, support []int64) outcome {
	node := x.tree.add(Node{
		Goal:     goal,
		Method:   method,
		Children: children,
		Status:   reason.Status(),
		Support:  support,
		Reason:   reason,
	})
	return outcome{failure: node, reason: reason}
}

func (x *search) valid(n Node, s Subst) solution {
	n.Status = StatusValid
	return solution{subst: s, node: x.tree.add(n), conf: n.Confidence}
}

func (x *search) solve(goal ir.Term, s Subst, depth int, p *path) outcome {
	g := s.Apply(goal)
	if err := x.budget.spend(); err != nil {
		return x.fail(g, MethodNone, ReasonTimeout, nil, nil)
	}
	c, ok := g.(ir.Compound)
	if !ok {
		return x.fail(g, MethodNone, ReasonNoEvidence, nil, nil)
	}
	switch {
	case c.Operator == ir.OpAnd:
		return x.solveAnd(c, s, depth, p)
	case c.Operator == ir.OpOr:
		return x.solveOr(c, s, depth, p)
	case c.Operator == ir.OpNot && len(c.Args) == 1:
		return x.solveNot(c, s, depth, p)
	}
	return x.solveGoal(c, s, depth, p)
}

// collector gathers the distinct solutions of one goal.
type collector struct {
	goal   ir.Compound
	vars   []string
	seen   map[string]bool
	sols   []solution
	reason Reason
	x      *search
}

func (x *search) collect(g ir.Compound) *collector {
	return &collector{goal: g, vars: ir.Vars(g), seen: make(map[string]bool), x: x}
}

func (c *collector) accept(sol solution) {
	if len(c.sols) >= maxSolutions {
		return
	}
	if inst := sol.subst.Apply(c.goal); ir.IsGround(inst) {
		if _, negated := c.x.negated(inst); negated {
			c.reason = worst(c.reason, ReasonExplicitNegation)
			return
		}
	}
	key, err := ir.BindingHash(sol.subst.Restrict(c.vars))
	if err != nil || c.seen[key] {
		return
	}
	c.seen[key] = true
	c.sols = append(c.sols, sol)
}

// done reports whether a ground goal already has its proof.
func (c *collector) done() bool {
	return len(c.sols) > 0 && len(c.vars) == 0
}

func (x *search) solveGoal(g ir.Compound, s Subst, depth int, p *path) outcome {
	fp := fingerprint(g)
	if p.contains(fp) {
		return x.fail(g, MethodNone, ReasonCycle, nil, nil)
	}
	p = p.with(fp)

	if ir.IsGround(g) {
		if neg, ok := x.negated(g); ok {
			return x.fail(g, MethodNegation, ReasonExplicitNegation, nil, []int64{neg.Seq})
		}
	}

	col := x.collect(g)
	x.direct(g, s, col)
	if !col.done() && len(g.Args) == 2 {
		x.properties(g, s, col)
	}
	var attempts []int
	if !col.done() {
		attempts = x.rules(g, s, depth, p, col)
	}

	if len(col.sols) > 0 {
		return outcome{solutions: col.sols, failure: -1}
	}
	reason := col.reason
	if reason == ReasonNone {
		reason = ReasonNoEvidence
	}
	return x.fail(g, MethodNone, reason, attempts, nil)
}

// direct matches stored facts.
func (x *search) direct(g ir.Compound, s Subst, col *collector) {
	for _, f := range x.store.ByOperator(g.Operator) {
		s1, ok := Unify(g, x.names.apart(f.Term), s)
		if !ok {
			continue
		}
		inst := s1.Apply(g)
		conf, ok := x.resonance(inst, f)
		if !ok {
			col.reason = worst(col.reason, ReasonNoEvidence)
			continue
		}
		col.accept(x.valid(Node{
			Goal:       inst,
			Method:     MethodDirect,
			Confidence: conf,
			Support:    []int64{f.Seq},
		}, s1))
		if col.done() {
			return
		}
	}
}

// resonance decodes an instantiated goal against the stored vectors of
// its operator: the goal's encoding must retrieve f, no other ground fact
// lying nearer, at Threshold or better. The confidence is that similarity.
// Facts with variables match symbolically at full confidence.
func (x *search) resonance(inst ir.Term, f *kb.Fact) (float64, bool) {
	if !ir.IsGround(f.Term) || !ir.IsGround(inst) {
		return 1, true
	}
	vec, err := x.enc.EncodeTerm(inst)
	if err != nil {
		return 0, false
	}
	alg := x.enc.Strategy()
	sim, err := alg.Similarity(vec, f.Vector)
	if err != nil || sim < x.opts.Threshold {
		return sim, false
	}
	for _, other := range x.store.ByOperator(f.Term.Operator) {
		if other.Seq == f.Seq || !ir.IsGround(other.Term) {
			continue
		}
		near, err := alg.Similarity(vec, other.Vector)
		if err != nil || near > sim {
			x.logger.Debug("goal retrieves another fact",
				zap.Stringer("goal", inst),
				zap.Int64("matched", f.Seq),
				zap.Int64("nearest", other.Seq))
			return sim, false
		}
	}
	return sim, true
}

func (x *search) negated(t ir.Term) (*kb.Fact, bool) {
	return negated(x.store, t)
}

// negated returns the newest Not(t) when no direct fact of t is newer.
func negated(store *kb.Store, t ir.Term) (*kb.Fact, bool) {
	negs := store.NegationsOf(t)
	if len(negs) == 0 {
		return nil, false
	}
	newest := negs[len(negs)-1]
	if f, ok := store.Lookup(t); ok && f.Seq > newest.Seq {
		return nil, false
	}
	return newest, true
}

// properties applies declared relation properties to a binary goal.
func (x *search) properties(g ir.Compound, s Subst, col *collector) {
	rel := g.Operator

	if pf, ok := x.store.Property(rel, ir.PropertyReflexive); ok {
		if s1, ok := Unify(g.Args[0], g.Args[1], s); ok {
			col.accept(x.valid(Node{
				Goal:       s1.Apply(g),
				Method:     MethodReflexive,
				Confidence: 1,
				Support:    []int64{pf.Seq},
			}, s1))
		}
	}
	if col.done() {
		return
	}

	if pf, ok := x.store.Property(rel, ir.PropertySymmetric); ok {
		swapped := ir.Compound{Operator: rel, Args: []ir.Term{g.Args[1], g.Args[0]}}
		for _, f := range x.store.ByOperator(rel) {
			if f.Kind != kb.KindAssertion {
				continue
			}
			s1, ok := Unify(swapped, x.names.apart(f.Term), s)
			if !ok {
				continue
			}
			conf, ok := x.resonance(s1.Apply(swapped), f)
			if !ok {
				continue
			}
			col.accept(x.valid(Node{
				Goal:       s1.Apply(g),
				Method:     MethodSymmetric,
				Confidence: conf,
				Support:    []int64{f.Seq, pf.Seq},
			}, s1))
			if col.done() {
				return
			}
		}
	}

	if pf, ok := x.store.Property(rel, ir.PropertyTransitive); ok {
		x.transitive(g, s, pf, col)
	}
}

type edge struct {
	from, to string
	fact     *kb.Fact
	reversed bool
}

// transitive follows chains of two or more hops breadth-first over ground
// facts of the relation. Shortest chains are found first. A bound subject
// is searched forwards; an unbound subject with a bound object backwards
// from the object; with both unbound every subject is searched in turn.
func (x *search) transitive(g ir.Compound, s Subst, prop *kb.Fact, col *collector) {
	rel := g.Operator
	symProp, symmetric := x.store.Property(rel, ir.PropertySymmetric)

	fwd := make(map[string][]edge)
	rev := make(map[string][]edge)
	var subjects []string
	link := func(e edge) {
		if _, seen := fwd[e.from]; !seen {
			subjects = append(subjects, e.from)
		}
		fwd[e.from] = append(fwd[e.from], e)
		rev[e.to] = append(rev[e.to], e)
	}
	for _, f := range x.store.ByOperator(rel) {
		if f.Kind != kb.KindAssertion || len(f.Term.Args) != 2 {
			continue
		}
		a, okA := f.Term.Args[0].(ir.Atom)
		b, okB := f.Term.Args[1].(ir.Atom)
		if !okA || !okB {
			continue
		}
		link(edge{from: a.Name, to: b.Name, fact: f})
		if symmetric {
			link(edge{from: b.Name, to: a.Name, fact: f, reversed: true})
		}
	}

	subject, subjectBound := s.Apply(g.Args[0]).(ir.Atom)
	object, objectBound := s.Apply(g.Args[1]).(ir.Atom)
	switch {
	case subjectBound:
		x.walk(subject.Name, fwd, true, func(end string, hops []edge) bool {
			return x.chain(g, s, prop, symProp, end, 1, hops, col)
		}, col)
	case objectBound:
		x.walk(object.Name, rev, false, func(start string, hops []edge) bool {
			return x.chain(g, s, prop, symProp, start, 0, hops, col)
		}, col)
	default:
		for _, start := range subjects {
			s1, ok := Unify(g.Args[0], ir.A(start), s)
			if !ok {
				continue
			}
			stop := x.walk(start, fwd, true, func(end string, hops []edge) bool {
				return x.chain(g, s1, prop, symProp, end, 1, hops, col)
			}, col)
			if stop {
				return
			}
		}
	}
}

// walk runs one breadth-first search from root. Forwards it follows edges
// from subject to object, backwards from object to subject. Every node
// first reached at two or more hops is handed to visit with its chain in
// fact order; visit returns true to stop. walk reports whether the search
// was stopped, by visit or by the budget.
func (x *search) walk(root string, adj map[string][]edge, forward bool, visit func(node string, hops []edge) bool, col *collector) bool {
	next := func(e edge) string {
		if forward {
			return e.to
		}
		return e.from
	}
	dist := map[string]int{root: 0}
	via := make(map[string]edge)
	queue := []string{root}
	for len(queue) > 0 {
		if err := x.budget.spend(); err != nil {
			col.reason = worst(col.reason, ReasonTimeout)
			return true
		}
		cur := queue[0]
		queue = queue[1:]
		for _, e := range adj[cur] {
			n := next(e)
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			via[n] = e
			queue = append(queue, n)
			if dist[n] < 2 {
				continue
			}
			var hops []edge
			if forward {
				for m := n; m != root; m = via[m].from {
					hops = append(hops, via[m])
				}
				slices.Reverse(hops)
			} else {
				for m := n; m != root; m = via[m].to {
					hops = append(hops, via[m])
				}
			}
			if visit(n, hops) {
				return true
			}
		}
	}
	return false
}

// chain accepts the transitive solution built from hops once the goal's
// free argument at pos unifies with node. It reports whether the goal is
// finished.
func (x *search) chain(g ir.Compound, s Subst, prop, symProp *kb.Fact, node string, pos int, hops []edge, col *collector) bool {
	s1, ok := Unify(g.Args[pos], ir.A(node), s)
	if !ok {
		return false
	}
	children := make([]int, 0, len(hops))
	confs := make([]float64, 0, len(hops))
	for _, e := range hops {
		goal := ir.Compound{Operator: g.Operator, Args: []ir.Term{ir.A(e.from), ir.A(e.to)}}
		conf, ok := x.resonance(e.fact.Term, e.fact)
		if !ok {
			return false
		}
		n := Node{Goal: goal, Method: MethodDirect, Confidence: conf, Status: StatusValid, Support: []int64{e.fact.Seq}}
		if e.reversed {
			n.Method = MethodSymmetric
			n.Support = append(n.Support, symProp.Seq)
		}
		children = append(children, x.tree.add(n))
		confs = append(confs, conf)
	}
	col.accept(x.valid(Node{
		Goal:       s1.Apply(g),
		Method:     MethodTransitive,
		Children:   children,
		Confidence: x.opts.Policy.Combine(confs...),
		Support:    []int64{prop.Seq},
	}, s1))
	return col.done() || len(col.sols) >= maxSolutions
}

// rules backward-chains through Implies facts. It returns the nodes of
// failed attempts so a failure can show why.
func (x *search) rules(g ir.Compound, s Subst, depth int, p *path, col *collector) []int {
	var attempts []int
	for _, rf := range x.store.Rules() {
		ante, cons, ok := ir.AsRule(x.names.apart(rf.Term))
		if !ok {
			continue
		}
		s1, ok := Unify(cons, g, s)
		if !ok {
			continue
		}
		if depth+1 > x.opts.MaxDepth {
			col.reason = worst(col.reason, ReasonDepthLimit)
			attempts = append(attempts, x.tree.add(Node{
				Goal:    s1.Apply(g),
				Method:  MethodRule,
				Status:  StatusUnresolved,
				Reason:  ReasonDepthLimit,
				Support: []int64{rf.Seq},
			}))
			continue
		}

		sub := x.solve(ante, s1, depth+1, p)
		if len(sub.solutions) == 0 {
			col.reason = worst(col.reason, sub.reason)
			attempts = append(attempts, x.tree.add(Node{
				Goal:     s1.Apply(g),
				Method:   MethodRule,
				Children: []int{sub.failure},
				Status:   sub.reason.Status(),
				Reason:   sub.reason,
				Support:  []int64{rf.Seq},
			}))
		}
		for _, ss := range sub.solutions {
			col.accept(x.valid(Node{
				Goal:       ss.subst.Apply(g),
				Method:     MethodRule,
				Children:   []int{ss.node},
				Confidence: x.opts.Policy.Combine(ss.conf),
				Support:    []int64{rf.Seq},
			}, ss.subst))
		}
		if col.done() || x.budget.err != nil {
			if x.budget.err != nil {
				col.reason = worst(col.reason, ReasonTimeout)
			}
			break
		}
	}
	return attempts
}

type conjunction struct {
	subst Subst
	nodes []int
	confs []float64
}

// solveAnd proves conjuncts left to right, threading each solution's
// substitution into the next conjunct.
func (x *search) solveAnd(c ir.Compound, s Subst, depth int, p *path) outcome {
	frontier := []conjunction{{subst: s}}
	for _, arg := range c.Args {
		var next []conjunction
		reason, failed := ReasonNone, -1
		for _, cj := range frontier {
			sub := x.solve(arg, cj.subst, depth, p)
			if len(sub.solutions) == 0 {
				reason = worst(reason, sub.reason)
				if failed < 0 {
					failed = sub.failure
				}
				continue
			}
			for _, ss := range sub.solutions {
				if len(next) >= maxSolutions {
					break
				}
				next = append(next, conjunction{
					subst: ss.subst,
					nodes: append(slices.Clone(cj.nodes), ss.node),
					confs: append(slices.Clone(cj.confs), ss.conf),
				})
			}
		}
		if len(next) == 0 {
			children := append(slices.Clone(frontier[0].nodes), failed)
			return x.fail(s.Apply(c), MethodCompound, reason, children, nil)
		}
		frontier = next
	}

	out := outcome{failure: -1}
	for _, cj := range frontier {
		out.solutions = append(out.solutions, x.valid(Node{
			Goal:       cj.subst.Apply(c),
			Method:     MethodCompound,
			Children:   cj.nodes,
			Confidence: x.opts.Policy.Combine(cj.confs...),
		}, cj.subst))
	}
	return out
}

// solveOr returns the solutions of every disjunct.
func (x *search) solveOr(c ir.Compound, s Subst, depth int, p *path) outcome {
	col := x.collect(c)
	var failed []int
	for _, arg := range c.Args {
		sub := x.solve(arg, s, depth, p)
		if len(sub.solutions) == 0 {
			col.reason = worst(col.reason, sub.reason)
			failed = append(failed, sub.failure)
			continue
		}
		for _, ss := range sub.solutions {
			col.accept(x.valid(Node{
				Goal:       ss.subst.Apply(c),
				Method:     MethodCompound,
				Children:   []int{ss.node},
				Confidence: ss.conf,
			}, ss.subst))
		}
		if col.done() {
			break
		}
	}
	if len(col.sols) > 0 {
		return outcome{solutions: col.sols, failure: -1}
	}
	reason := col.reason
	if reason == ReasonNone {
		reason = ReasonNoEvidence
	}
	return x.fail(s.Apply(c), MethodCompound, reason, failed, nil)
}

// solveNot holds on an explicit stored negation, or by negation-as-failure
// in closed-world mode when the inner goal is ground and fails for lack of
// evidence.
func (x *search) solveNot(c ir.Compound, s Subst, depth int, p *path) outcome {
	inner := s.Apply(c.Args[0])
	g := ir.Compound{Operator: ir.OpNot, Args: []ir.Term{inner}}

	if ir.IsGround(inner) {
		if neg, ok := x.negated(inner); ok {
			sol := x.valid(Node{
				Goal:       g,
				Method:     MethodNegation,
				Confidence: 1,
				Support:    []int64{neg.Seq},
			}, s)
			return outcome{solutions: []solution{sol}, failure: -1}
		}
	}

	sub := x.solve(inner, s, depth, p)
	if len(sub.solutions) > 0 {
		return x.fail(g, MethodNegation, ReasonRefuted, []int{sub.solutions[0].node}, nil)
	}
	if x.opts.ClosedWorld && ir.IsGround(inner) && sub.reason == ReasonNoEvidence {
		sol := x.valid(Node{
			Goal:       g,
			Method:     MethodNegation,
			Children:   []int{sub.failure},
			Confidence: 1,
		}, s)
		return outcome{solutions: []solution{sol}, failure: -1}
	}
	return x.fail(g, MethodNegation, sub.reason, []int{sub.failure}, nil)
}
