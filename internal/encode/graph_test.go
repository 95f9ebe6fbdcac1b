package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperlore/internal/hdc"
	"github.com/roach88/hyperlore/internal/ir"
)

func saleGraph() ir.GraphDef {
	return ir.GraphDef{
		Name:   "sell",
		Params: []string{"seller", "buyer", "item"},
		Body: []ir.Statement{
			ir.MustParseStatement("@give give seller item"),
			ir.MustParseStatement("@get receive buyer item"),
			ir.MustParseStatement("@both exchange $give $get"),
		},
		Return: "both",
	}
}

func TestGraphExpansion(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, e *Encoder) {
		require.NoError(t, e.DefineGraph(saleGraph()))

		term, vec, err := e.EncodeStatement(ir.MustParseStatement("sell Alice Bob Car"), e.Root())
		require.NoError(t, err)
		assert.Equal(t, "sell Alice Bob Car", term.String(), "metadata keeps the call arguments")

		again, err := e.EncodeTerm(term)
		require.NoError(t, err)
		assert.True(t, vec.Equal(again))

		// dest = bind(sell, exchange(give(Alice, Car), receive(Bob, Car)))
		inner, err := e.EncodeTerm(ir.Compound{Operator: "exchange", Args: []ir.Term{
			ir.C("give", "Alice", "Car"),
			ir.C("receive", "Bob", "Car"),
		}})
		require.NoError(t, err)
		op, err := e.Operator("sell")
		require.NoError(t, err)
		want, err := e.Strategy().Bind(op, inner)
		require.NoError(t, err)
		assert.True(t, vec.Equal(want))

		plain, err := e.Combine("sell", []hdc.Vector{mustAtom(t, e, "Alice"), mustAtom(t, e, "Bob"), mustAtom(t, e, "Car")})
		require.NoError(t, err)
		assert.False(t, vec.Equal(plain), "graph operators do not use the flat formula")
	})
}

func mustAtom(t *testing.T, e *Encoder, name string) hdc.Vector {
	t.Helper()
	v, err := e.Vocabulary().Atom(name)
	require.NoError(t, err)
	return v
}

func TestGraphErrors(t *testing.T) {
	alg, err := hdc.New(hdc.Dense, 512)
	require.NoError(t, err)
	e, err := New(alg)
	require.NoError(t, err)

	require.NoError(t, e.DefineGraph(saleGraph()))
	changed := saleGraph()
	changed.Return = "give"
	assert.Error(t, e.DefineGraph(changed), "redefinition with a different body")
	assert.Error(t, e.DefineGraph(ir.GraphDef{Name: "noReturn", Params: []string{"a"}}))
	assert.Error(t, e.DefineGraph(ir.GraphDef{Name: "dup", Params: []string{"a", "a"}, Return: "a"}))

	_, _, err = e.EncodeStatement(ir.MustParseStatement("sell Alice Bob"), e.Root())
	assert.Error(t, err, "arity mismatch")

	require.NoError(t, e.DefineGraph(ir.GraphDef{
		Name:   "lost",
		Params: []string{"x"},
		Body:   []ir.Statement{ir.MustParseStatement("@y wrap x")},
		Return: "z",
	}))
	_, _, err = e.EncodeStatement(ir.MustParseStatement("lost a"), e.Root())
	require.Error(t, err)
	assert.True(t, hdc.IsUnboundReferenceError(err))

	require.NoError(t, e.DefineGraph(ir.GraphDef{
		Name:   "loop",
		Params: []string{"x"},
		Body:   []ir.Statement{ir.MustParseStatement("@r loop x")},
		Return: "r",
	}))
	_, _, err = e.EncodeStatement(ir.MustParseStatement("loop a"), e.Root())
	assert.Error(t, err, "self-recursive graph terminates with an error")
}

func TestGraphIdenticalRedefinitionIsNoOp(t *testing.T) {
	alg, err := hdc.New(hdc.Exact, 0)
	require.NoError(t, err)
	e, err := New(alg)
	require.NoError(t, err)

	require.NoError(t, e.DefineGraph(saleGraph()))
	_, before, err := e.EncodeStatement(ir.MustParseStatement("sell Alice Bob Car"), e.Root())
	require.NoError(t, err)

	require.NoError(t, e.DefineGraph(saleGraph()))
	assert.Len(t, e.Graphs(), 1)

	_, after, err := e.EncodeStatement(ir.MustParseStatement("sell Alice Bob Car"), e.Root())
	require.NoError(t, err)
	assert.True(t, before.Equal(after))

	empty := ir.GraphDef{Name: "same", Params: []string{"a"}, Return: "a"}
	require.NoError(t, e.DefineGraph(empty))
	empty.Body = []ir.Statement{}
	assert.NoError(t, e.DefineGraph(empty), "nil and empty bodies are the same definition")
}

func TestGraphFallsBackToParentScope(t *testing.T) {
	alg, err := hdc.New(hdc.Metric, 0)
	require.NoError(t, err)
	e, err := New(alg)
	require.NoError(t, err)

	ctx, err := e.EncodeTerm(ir.C("context", "Market"))
	require.NoError(t, err)
	e.Root().Bind("ctx", Binding{Term: ir.C("context", "Market"), Vector: ctx})

	require.NoError(t, e.DefineGraph(ir.GraphDef{
		Name:   "trade",
		Params: []string{"who"},
		Body:   []ir.Statement{ir.MustParseStatement("@r in who $ctx")},
		Return: "r",
	}))
	_, _, err = e.EncodeStatement(ir.MustParseStatement("trade Alice"), e.Root())
	assert.NoError(t, err)
}
