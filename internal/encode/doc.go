// Package encode turns terms into vectors with the binding formula:
//
//	dest = bind(Operator, bundle(bind(Pos1, Arg1), ..., bind(PosN, ArgN)))
//
// Argument order is carried by the position marker each argument is bound
// to. The outer combine is the strategy's bundle, which is commutative;
// swapping two arguments changes which marker tags each of them, so
// Loves(John, Mary) and Loves(Mary, John) encode differently. Under XOR
// algebras a plain XOR fold of the tagged arguments would be order
// insensitive: bind(P1,J)^bind(P2,M) and bind(P1,M)^bind(P2,J) both equal
// P1^P2^J^M.
//
// Encoding is a pure function of the term under one strategy: encoding the
// stored term of a fact reproduces the fact's vector. Statements resolve
// "$ref" arguments through a Scope chain; graphs expand in a child scope.
package encode
