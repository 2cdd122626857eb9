// Package condition evaluates the restricted boolean grammar used by step
// conditions. Expressions are parsed by a hand-rolled recursive-descent parser
// into a small tagged-variant AST and evaluated by structural recursion against
// the execution state. The grammar is fixed and closed: boolean/number/string/
// null literals, state references, not/and/or, the six comparison operators,
// membership (in), and identity (is). Nothing in this package ever executes
// caller-supplied code; any lex, parse, or evaluation error fails closed.
package condition

// Node is one variant of the condition AST.
type Node interface {
	node()
}

// Literal is a constant operand: bool, float64, string, or nil.
type Literal struct {
	Value any
}

// Reference is a dotted state path, resolved the same way as templates:
// the first segment is a top-level state key, subsequent segments walk
// nested mappings.
type Reference struct {
	Path string
}

// UnaryOp is a prefix operator application. The only unary operator is "not".
type UnaryOp struct {
	Op      string
	Operand Node
}

// BinaryOp is a logical connective: "and" or "or".
type BinaryOp struct {
	Op    string
	Left  Node
	Right Node
}

// Comparison applies one of ==, !=, <, >, <=, >=, in, is.
type Comparison struct {
	Op    string
	Left  Node
	Right Node
}

func (Literal) node()    {}
func (Reference) node()  {}
func (UnaryOp) node()    {}
func (BinaryOp) node()   {}
func (Comparison) node() {}
