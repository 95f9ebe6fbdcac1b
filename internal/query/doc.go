// Package query answers patterns with holes.
//
// Query is approximate retrieval over the vector algebra:
//
//  1. partial = binding formula over the known positions
//  2. accelerator: unbind the operator from the knowledge aggregate, then
//     each hole's position marker; the nearest vocabulary atoms enter the
//     hole's shortlist
//  3. fact resonance: every stored fact is ranked by similarity to partial;
//     of the top ones, those whose metadata contradicts the pattern are
//     rejected and the rest are decoded the same way into the shortlist
//  4. validation: coordinate ascent over the shortlist re-encodes the
//     filled pattern and scores it against each resonant fact's vector; a
//     fill counts only when the fact's metadata confirms it
//  5. confidence: mean aggregate decode similarity of the chosen values,
//     reduced per extra hole and when a different confirmed answer decodes
//     within AmbiguityMargin
//
// Hole values only ever come out of a decode. Metadata rejects or confirms
// them, so a saturated aggregate shows up as low confidence. Strategies
// whose unbind keeps only a trace of the operand (sparse, metric) and
// operators encoded through a graph decode near baseline; FindAll and the
// prover answer those completely.
//
// FindAll is exact enumeration over fact metadata. It never touches the
// algebra and returns every match in insertion order.
package query
