package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateTheory_Valid(t *testing.T) {
	theory := &Theory{
		Graphs: []GraphSpec{
			{Name: "trade", Params: []string{"seller", "buyer", "item"}, Body: []string{
				"@give give seller item",
				"@get receive buyer item",
				"@both exchange $give $get",
			}, Return: "both"},
			{Name: "same", Params: []string{"a"}, Return: "a"},
		},
		Learn: []string{
			"isA Tweety Bird",
			"@c isA ?x Bird",
			"@r:birdsFly Implies $c $c",
			"Not (canFly Opus)",
			"trade Erin Frank Boat",
		},
	}
	assert.Empty(t, ValidateTheory(theory))
}

func TestValidateTheory_Graphs(t *testing.T) {
	tests := []struct {
		name  string
		graph GraphSpec
		want  []string
		field string
	}{
		{
			name:  "missing name",
			graph: GraphSpec{Params: []string{"a"}, Return: "a"},
			want:  []string{ErrGraphName},
			field: "graphs[1].name",
		},
		{
			name:  "duplicate parameter",
			graph: GraphSpec{Name: "g", Params: []string{"a", "a"}, Return: "a"},
			want:  []string{ErrGraphParams},
			field: "graphs[1].params[1]",
		},
		{
			name:  "empty parameter",
			graph: GraphSpec{Name: "g", Params: []string{""}, Body: []string{"@r p x"}, Return: "r"},
			want:  []string{ErrGraphParams},
			field: "graphs[1].params[0]",
		},
		{
			name:  "malformed body",
			graph: GraphSpec{Name: "g", Params: []string{"a"}, Body: []string{"@r"}, Return: "a"},
			want:  []string{ErrGraphBody},
			field: "graphs[1].body[0]",
		},
		{
			name:  "missing return",
			graph: GraphSpec{Name: "g", Params: []string{"a"}},
			want:  []string{ErrGraphReturn},
			field: "graphs[1].return",
		},
		{
			name:  "return binds nothing",
			graph: GraphSpec{Name: "g", Params: []string{"a"}, Body: []string{"@r p $a"}, Return: "x"},
			want:  []string{ErrGraphReturn},
			field: "graphs[1].return",
		},
		{
			name:  "duplicate name",
			graph: GraphSpec{Name: "ok", Params: []string{"a"}, Return: "a"},
			want:  []string{ErrGraphName},
			field: "graphs[1].name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theory := &Theory{Graphs: []GraphSpec{
				{Name: "ok", Params: []string{"a"}, Return: "a"},
				tt.graph,
			}}
			errs := ValidateTheory(theory)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.want, codes(errs))
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidateTheory_Cycle(t *testing.T) {
	errs := ValidateTheory(&Theory{Graphs: []GraphSpec{
		{Name: "ping", Params: []string{"a"}, Body: []string{"@r pong $a"}, Return: "r"},
		{Name: "pong", Params: []string{"a"}, Body: []string{"@r ping $a"}, Return: "r"},
	}})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrGraphCycle, errs[0].Code)
	assert.Contains(t, errs[0].Error(), "ping → pong → ping")
}

func TestValidateTheory_LearnLines(t *testing.T) {
	errs := ValidateTheory(&Theory{Learn: []string{
		"isA Tweety Bird",
		"   ",
		"Not (canFly Opus",
		"@ isA Opus Bird",
	}})
	require.Len(t, errs, 3)
	assert.Equal(t, []string{ErrLearnMalformed, ErrLearnMalformed, ErrLearnMalformed}, codes(errs))
	assert.Equal(t, []int{2, 3, 4}, []int{errs[0].Line, errs[1].Line, errs[2].Line})
	assert.Contains(t, errs[0].Error(), "[E210] line 2: learn[1]")
}

func TestValidateTheory_ReportsAll(t *testing.T) {
	errs := ValidateTheory(&Theory{
		Graphs: []GraphSpec{{Name: "", Params: []string{"a", "a"}}},
		Learn:  []string{""},
	})
	assert.Equal(t, []string{ErrGraphName, ErrGraphParams, ErrGraphReturn, ErrLearnMalformed}, codes(errs))
}
