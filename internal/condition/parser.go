package condition

import (
	"strconv"

	"github.com/quaylabs/patternd/pkg/schema"
)

// Parse turns a condition string into its AST. Any malformed input is an
// error; the evaluator's callers treat parse errors as a fail-closed false.
func Parse(input string) (Node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"unexpected trailing input %q at position %d", p.peek().text, p.peek().pos)
	}
	return node, nil
}

// parser is a recursive-descent parser over the token stream.
// Precedence, loosest first: or, and, not, comparison, operand.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenKeyword && p.peek().text == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenKeyword && p.peek().text == "and" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokenKeyword && p.peek().text == "not" {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	switch {
	case t.kind == tokenOperator:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return Comparison{Op: t.text, Left: left, Right: right}, nil

	case t.kind == tokenKeyword && (t.text == "in" || t.text == "is"):
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return Comparison{Op: t.text, Left: left, Right: right}, nil
	}

	return left, nil
}

func (p *parser) parseOperand() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"missing closing parenthesis at position %d", closing.pos)
		}
		return inner, nil

	case tokenNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"malformed number %q at position %d", t.text, t.pos)
		}
		return Literal{Value: f}, nil

	case tokenString:
		return Literal{Value: t.text}, nil

	case tokenKeyword:
		switch t.text {
		case "true":
			return Literal{Value: true}, nil
		case "false":
			return Literal{Value: false}, nil
		case "null":
			return Literal{Value: nil}, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"keyword %q is not an operand (position %d)", t.text, t.pos)

	case tokenIdent:
		return Reference{Path: t.text}, nil

	case tokenEOF:
		return nil, schema.NewError(schema.ErrCodeConditionEvaluation, "missing operand at end of condition")

	default:
		return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"unexpected token %q at position %d", t.text, t.pos)
	}
}
