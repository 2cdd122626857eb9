package condition

import (
	"strings"
	"unicode"

	"github.com/quaylabs/patternd/pkg/schema"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOperator // == != < > <= >=
	tokenKeyword  // true false null and or not in is
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywords = map[string]struct{}{
	"true": {}, "false": {}, "null": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {},
}

// lex splits a condition string into tokens. Unknown characters are errors;
// the parser's caller turns them into a fail-closed false.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++

		case c == '=' || c == '!' || c == '<' || c == '>':
			op, width, err := lexOperator(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenOperator, text: op, pos: i})
			i += width

		case c == '\'' || c == '"':
			text, width, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: text, pos: i})
			i += width

		case c >= '0' && c <= '9' || c == '-':
			text, width, err := lexNumber(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, pos: i})
			i += width

		case isIdentStart(rune(c)):
			start := i
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}
			text := input[start:i]
			kind := tokenIdent
			if _, ok := keywords[text]; ok {
				kind = tokenKeyword
			}
			tokens = append(tokens, token{kind: kind, text: text, pos: start})

		default:
			return nil, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"unexpected character %q at position %d", string(c), i)
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})
	return tokens, nil
}

// lexOperator reads one of == != < > <= >=. Longer sequences such as ">>>"
// are rejected rather than split into valid operators.
func lexOperator(input string, i int) (string, int, error) {
	rest := input[i:]
	for _, op := range []string{"==", "!=", "<=", ">="} {
		if strings.HasPrefix(rest, op) {
			if err := checkOperatorEnd(input, i+2); err != nil {
				return "", 0, err
			}
			return op, 2, nil
		}
	}
	if rest[0] == '<' || rest[0] == '>' {
		if err := checkOperatorEnd(input, i+1); err != nil {
			return "", 0, err
		}
		return string(rest[0]), 1, nil
	}
	return "", 0, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
		"malformed operator at position %d", i)
}

func checkOperatorEnd(input string, next int) error {
	if next < len(input) {
		switch input[next] {
		case '=', '<', '>', '!':
			return schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"malformed operator at position %d", next)
		}
	}
	return nil
}

// lexString reads a single- or double-quoted string with no escape support.
// The grammar is closed; conditions comparing against strings with embedded
// quotes are out of its scope.
func lexString(input string, i int) (string, int, error) {
	quote := input[i]
	end := strings.IndexByte(input[i+1:], quote)
	if end == -1 {
		return "", 0, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
			"unterminated string starting at position %d", i)
	}
	return input[i+1 : i+1+end], end + 2, nil
}

// lexNumber reads an integer or decimal literal with an optional leading minus.
func lexNumber(input string, i int) (string, int, error) {
	start := i
	if input[i] == '-' {
		i++
		if i >= len(input) || input[i] < '0' || input[i] > '9' {
			return "", 0, schema.NewErrorf(schema.ErrCodeConditionEvaluation,
				"dangling minus sign at position %d", start)
		}
	}
	sawDot := false
	for i < len(input) {
		c := input[i]
		if c >= '0' && c <= '9' {
			i++
			continue
		}
		if c == '.' && !sawDot && i+1 < len(input) && input[i+1] >= '0' && input[i+1] <= '9' {
			sawDot = true
			i++
			continue
		}
		break
	}
	return input[start:i], i - start, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
