package stdlib

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

var calculatorInput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"expression": map[string]interface{}{
			"type":        "string",
			"minLength":   1,
			"description": "Arithmetic expression, e.g. \"2 + 2 * 5\". Supports + - * / ^ and parentheses.",
		},
	},
	"required":             []string{"expression"},
	"additionalProperties": false,
})

var calculatorOutput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"result": map[string]interface{}{"type": "number"},
	},
	"required": []string{"result"},
})

type calculatorArgs struct {
	Expression string `json:"expression"`
}

// Calculator returns the calculator tool.
func Calculator() tool.Tool {
	return tool.Native(tool.Definition{
		Name:        "calculator",
		Description: "Evaluates an arithmetic expression and returns the numeric result.",
		Version:     "1.0.0",
		Tags:        []string{"math"},
	}, calculatorInput, calculatorOutput, Calculate)
}

// Calculate is the calculator's native function.
func Calculate(ctx context.Context, input interface{}) (interface{}, error) {
	args, err := schema.Decode[calculatorArgs](nil, input)
	if err != nil {
		return nil, err
	}

	result, err := Eval(args.Expression)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"result": result}, nil
}

// Eval evaluates expr with the usual precedence: ^ binds tightest and is
// right-associative, then unary minus, then * and /, then + and -.
func Eval(expr string) (float64, error) {
	p := &parser{input: expr}
	p.next()

	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokOp
	tokInvalid
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type parser struct {
	input string
	pos   int
	tok   token
}

func (p *parser) next() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.input) {
		p.tok = token{kind: tokEOF, pos: p.pos}
		return
	}

	start := p.pos
	c := p.input[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
			p.pos++
		}
		text := p.input[start:p.pos]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{kind: tokInvalid, text: text, pos: start}
			return
		}
		p.tok = token{kind: tokNumber, text: text, num: n, pos: start}
	case strings.IndexByte("+-*/^()", c) >= 0:
		p.pos++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokInvalid, text: string(c), pos: start}
	}
}

func (p *parser) isOp(op string) bool {
	return p.tok.kind == tokOp && p.tok.text == op
}

func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.tok.text
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.tok.text
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		left /= right
	}
	return left, nil
}

func (p *parser) parseUnary() (float64, error) {
	if p.isOp("-") {
		p.next()
		v, err := p.parseUnary()
		return -v, err
	}
	if p.isOp("+") {
		p.next()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (float64, error) {
	switch {
	case p.tok.kind == tokNumber:
		v := p.tok.num
		p.next()
		return v, nil
	case p.isOp("("):
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if !p.isOp(")") {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.tok.pos)
		}
		p.next()
		return v, nil
	case p.tok.kind == tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
}
