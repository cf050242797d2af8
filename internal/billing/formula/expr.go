// Package formula implements the billing formula engine of spec.md §4.10:
// a small arithmetic expression language (sum of named terms, each term a
// product of names/literals) evaluated over shopspring/decimal values at
// 28-digit precision, with per-component quantization to 8 decimal places.
//
// No library in the retrieval pack offers a named-variable arithmetic
// expression evaluator (the closest analogues are template engines, not
// expression languages), so this parser is hand-rolled; see DESIGN.md.
package formula

import (
	"strings"
	"unicode"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"
)

// init raises shopspring/decimal's division precision so repeated
// multiplications/divisions inside a formula don't lose the significant
// digits the 28-digit decimal context calls for.
func init() {
	decimal.DivisionPrecision = 28
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokOp, text: string(r)})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen})
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i])})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i])})
		default:
			return nil, errors.Errorf("unexpected character %q in expression %q", string(r), expr)
		}
	}
	tokens = append(tokens, token{kind: tokEOF})
	return tokens, nil
}

// exprParser evaluates +,-,*,/ with standard precedence and parentheses
// directly against a variable table, rather than building an AST — the
// grammar this engine needs (sums of products of named dimensions) never
// requires anything more elaborate.
type exprParser struct {
	tokens []token
	pos    int
	vars   map[string]decimal.Decimal
}

// Eval evaluates expr against vars, where vars holds every name the
// expression may reference (billing variables, resolved dimensions, and
// already-resolved dimension mappings).
func Eval(expr string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return decimal.Zero, err
	}
	p := &exprParser{tokens: tokens, vars: vars}
	value, err := p.parseSum()
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "evaluate expression %q", expr)
	}
	if p.peek().kind != tokEOF {
		return decimal.Zero, errors.Errorf("trailing input in expression %q", expr)
	}
	return value, nil
}

func (p *exprParser) peek() token { return p.tokens[p.pos] }

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *exprParser) parseSum() (decimal.Decimal, error) {
	value, err := p.parseProduct()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			break
		}
		p.next()
		rhs, err := p.parseProduct()
		if err != nil {
			return decimal.Zero, err
		}
		if t.text == "+" {
			value = value.Add(rhs)
		} else {
			value = value.Sub(rhs)
		}
	}
	return value, nil
}

func (p *exprParser) parseProduct() (decimal.Decimal, error) {
	value, err := p.parseUnary()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			break
		}
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return decimal.Zero, err
		}
		if t.text == "*" {
			value = value.Mul(rhs)
		} else {
			if rhs.IsZero() {
				return decimal.Zero, errors.Errorf("division by zero")
			}
			value = value.Div(rhs)
		}
	}
	return value, nil
}

func (p *exprParser) parseUnary() (decimal.Decimal, error) {
	t := p.peek()
	if t.kind == tokOp && t.text == "-" {
		p.next()
		value, err := p.parseUnary()
		if err != nil {
			return decimal.Zero, err
		}
		return value.Neg(), nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (decimal.Decimal, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse numeric literal %q", t.text)
		}
		return d, nil
	case tokIdent:
		v, ok := p.vars[t.text]
		if !ok {
			return decimal.Zero, nil
		}
		return v, nil
	case tokLParen:
		value, err := p.parseSum()
		if err != nil {
			return decimal.Zero, err
		}
		if p.peek().kind != tokRParen {
			return decimal.Zero, errors.New("unbalanced parentheses")
		}
		p.next()
		return value, nil
	default:
		return decimal.Zero, errors.Errorf("unexpected token %q", t.text)
	}
}

// splitAdditiveTerms flattens expr into its leaf additive terms for cost
// breakdown reporting: any term fully wrapped in one matching pair of
// parentheses is recursively split, so "(a + b) + c" yields [a, b, c]
// rather than a single "(a + b)" bucket.
func splitAdditiveTerms(expr string) []string {
	expr = strings.TrimSpace(expr)
	if isFullyParenthesized(expr) {
		return splitAdditiveTerms(expr[1 : len(expr)-1])
	}

	var terms []string
	depth := 0
	start := 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '+':
			if depth == 0 {
				terms = append(terms, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		case '-':
			if depth == 0 && i > start {
				terms = append(terms, strings.TrimSpace(expr[start:i]))
				start = i
			}
		}
	}
	terms = append(terms, strings.TrimSpace(expr[start:]))

	var flattened []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if isFullyParenthesized(t) {
			flattened = append(flattened, splitAdditiveTerms(t[1:len(t)-1])...)
			continue
		}
		flattened = append(flattened, t)
	}
	return flattened
}

// isFullyParenthesized reports whether expr is a single parenthesized
// group spanning its entire length (not just starting/ending with parens).
func isFullyParenthesized(expr string) bool {
	if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
		return false
	}
	depth := 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// termName derives a stable cost_breakdown key for a leaf term: a bare
// identifier uses its own name; a product term (e.g. "duration_seconds *
// video_price_per_second") uses its left-hand identifier as produced by
// the computed mapping that defines it, falling back to the full term
// text when no leading identifier is present.
func termName(term string) string {
	trimmed := strings.TrimSpace(term)
	trimmed = strings.TrimPrefix(trimmed, "-")
	trimmed = strings.TrimSpace(trimmed)
	for i, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			if i == 0 {
				break
			}
			return trimmed[:i]
		}
	}
	if trimmed == "" {
		return term
	}
	return trimmed
}

func parseDecimalOrZero(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// toDecimal converts an arbitrary collected/dimension value into a
// Decimal the expression evaluator can use, mirroring to_decimal's
// "stringify first" approach to avoid binary float artifacts.
func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}
