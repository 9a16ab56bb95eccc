// Package exprcalc evaluates plain arithmetic expressions.
//
// The accepted language is deliberately small: numbers, the operators
// + - * / // % ** (with ^ as an alias for **), parentheses, a handful of
// constants and math functions. Nothing else is reachable from an input
// string.
package exprcalc

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	// MaxLength is the longest expression accepted, in bytes.
	MaxLength = 1024
	// MaxDepth bounds parenthesis and unary operator nesting.
	MaxDepth = 64
)

var (
	ErrEmpty             = errors.New("empty expression")
	ErrTooLong           = errors.New("expression too long")
	ErrTooDeep           = errors.New("expression nested too deeply")
	ErrSyntax            = errors.New("syntax error")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrArity             = errors.New("wrong number of arguments")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrDomain            = errors.New("math domain error")
	ErrNonFinite         = errors.New("result is not a finite number")
)

// Evaluate parses and evaluates expr.
func Evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, ErrEmpty
	}
	if len(expr) > MaxLength {
		return 0, errors.Wrapf(ErrTooLong, "%d bytes, limit is %d", len(expr), MaxLength)
	}

	toks, err := tokenize(expr)
	if err != nil {
		return 0, err
	}

	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return 0, errors.Wrapf(ErrSyntax, "unexpected %s at position %d", tok, tok.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

// Format renders v the way a calculator display would: integral values
// without a fraction, everything else in the shortest exact decimal form.
func Format(v float64) string {
	if v == 0 {
		return "0"
	}
	abs := math.Abs(v)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return errors.Wrapf(ErrTooDeep, "limit is %d", MaxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

// expr := term (("+" | "-") term)*
func (p *parser) expr() (float64, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.isOp("+", "-") {
		op := p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

// term := unary (("*" | "/" | "//" | "%") unary)*
func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.isOp("*", "/", "//", "%") {
		op := p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op.text {
		case "*":
			left *= right
		case "/":
			if right == 0 {
				return 0, ErrDivisionByZero
			}
			left /= right
		case "//":
			if right == 0 {
				return 0, errors.Wrap(ErrDivisionByZero, "floor division")
			}
			left = math.Floor(left / right)
		case "%":
			if right == 0 {
				return 0, errors.Wrap(ErrDivisionByZero, "modulo")
			}
			left = floorMod(left, right)
		}
	}
	return left, nil
}

// unary := ("+" | "-") unary | power
func (p *parser) unary() (float64, error) {
	if !p.isOp("+", "-") {
		return p.power()
	}
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	op := p.next()
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	if op.text == "-" {
		return -v, nil
	}
	return v, nil
}

// power := primary (("**" | "^") unary)?
func (p *parser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if !p.isOp("**", "^") {
		return base, nil
	}
	p.next()
	if err := p.enter(); err != nil {
		return 0, err
	}
	exp, err := p.unary()
	p.leave()
	if err != nil {
		return 0, err
	}
	if base == 0 && exp < 0 {
		return 0, errors.Wrap(ErrDivisionByZero, "zero raised to a negative power")
	}
	return math.Pow(base, exp), nil
}

func (p *parser) primary() (float64, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return tok.num, nil

	case tokLParen:
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return 0, errors.Wrapf(ErrSyntax, "missing closing parenthesis for position %d", tok.pos)
		}
		return v, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.args()
			if err != nil {
				return 0, err
			}
			return call(tok.text, args)
		}
		if v, ok := constants[tok.text]; ok {
			return v, nil
		}
		if _, ok := functions[tok.text]; ok {
			return 0, errors.Wrapf(ErrSyntax, "function %q needs parenthesised arguments", tok.text)
		}
		return 0, errors.Wrapf(ErrUnknownIdentifier, "%q", tok.text)

	case tokEOF:
		return 0, errors.Wrap(ErrSyntax, "unexpected end of expression")

	default:
		return 0, errors.Wrapf(ErrSyntax, "unexpected %s at position %d", tok, tok.pos)
	}
}

// args parses a comma separated argument list after the opening parenthesis
// and consumes the closing one.
func (p *parser) args() ([]float64, error) {
	var args []float64
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, v)

		switch tok := p.next(); tok.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, errors.Wrapf(ErrSyntax, "expected ',' or ')' but got %s at position %d", tok, tok.pos)
		}
	}
}

// floorMod returns a modulo b with the sign of b.
func floorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}
