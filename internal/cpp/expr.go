// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"fmt"
	"go/token"
	"strings"

	"modernc.org/golex/lex"
	"modernc.org/xc"
)

var (
	_ Expr = (*BinaryExpr)(nil)
	_ Expr = (*BoolExpr)(nil)
	_ Expr = (*CharExpr)(nil)
	_ Expr = (*CondExpr)(nil)
	_ Expr = (*DefinedExpr)(nil)
	_ Expr = (*IdentExpr)(nil)
	_ Expr = (*MacroCallExpr)(nil)
	_ Expr = (*NumberExpr)(nil)
	_ Expr = (*ParenExpr)(nil)
	_ Expr = (*UnaryExpr)(nil)
)

// Expr is a node of a #if constant expression tree.
type Expr interface {
	Node
	expr()
}

// BinaryKind is the precedence level of a BinaryExpr.
type BinaryKind int

// Values of BinaryKind, from the loosest to the tightest binding.
const (
	LogicalOr BinaryKind = iota
	LogicalAnd
	InclusiveOr
	ExclusiveOr
	And
	Equality
	Relational
	Shift
	Additive
	Multiplicative
)

var binaryKinds = [...]struct {
	name string
	ops  []rune
}{
	LogicalOr:      {"LogicalOr", []rune{OROR}},
	LogicalAnd:     {"LogicalAnd", []rune{ANDAND}},
	InclusiveOr:    {"InclusiveOr", []rune{'|'}},
	ExclusiveOr:    {"ExclusiveOr", []rune{'^'}},
	And:            {"And", []rune{'&'}},
	Equality:       {"Equality", []rune{EQ, NEQ}},
	Relational:     {"Relational", []rune{'<', '>', LEQ, GEQ}},
	Shift:          {"Shift", []rune{LSH, RSH}},
	Additive:       {"Additive", []rune{'+', '-'}},
	Multiplicative: {"Multiplicative", []rune{'*', '/', '%'}},
}

func (k BinaryKind) String() string {
	if k >= 0 && int(k) < len(binaryKinds) {
		return binaryKinds[k].name
	}

	return fmt.Sprintf("BinaryKind(%d)", int(k))
}

func (k BinaryKind) has(r rune) bool {
	for _, v := range binaryKinds[k].ops {
		if v == r {
			return true
		}
	}
	return false
}

// Operand is an operator and its right operand in a BinaryExpr chain.
type Operand struct {
	Op xc.Token
	X  Expr
}

// BinaryExpr is a left associative chain of operators of the same
// precedence: X Rest[0].Op Rest[0].X Rest[1].Op Rest[1].X ...
type BinaryExpr struct {
	Kind BinaryKind
	X    Expr
	Rest []Operand
}

// BoolExpr is the literal true or false.
type BoolExpr struct {
	Token xc.Token
}

// CharExpr is a character literal.
type CharExpr struct {
	Token xc.Token
}

// CondExpr is Cond ? Then : Else. Then is nil for the GNU form Cond ?: Else.
type CondExpr struct {
	Cond     Expr
	Question xc.Token
	Then     Expr
	Else     Expr
}

// DefinedExpr is defined NAME or defined(NAME).
type DefinedExpr struct {
	Token xc.Token
	Name  xc.Token
}

// IdentExpr is an identifier, resolved through the macro table.
type IdentExpr struct {
	Token xc.Token
}

// MacroCallExpr is an identifier followed by a parenthesized argument list.
// Args holds the raw tokens including the parentheses.
type MacroCallExpr struct {
	Name xc.Token
	Args []xc.Token
}

// NumberExpr is a preprocessing number.
type NumberExpr struct {
	Token xc.Token
}

// ParenExpr is (X).
type ParenExpr struct {
	Token xc.Token
	X     Expr
}

// UnaryExpr is Op X where Op is one of + - ! ~.
type UnaryExpr struct {
	Op xc.Token
	X  Expr
}

func (n *BinaryExpr) Pos() token.Pos    { return n.X.Pos() }
func (n *BoolExpr) Pos() token.Pos      { return n.Token.Pos() }
func (n *CharExpr) Pos() token.Pos      { return n.Token.Pos() }
func (n *CondExpr) Pos() token.Pos      { return n.Cond.Pos() }
func (n *DefinedExpr) Pos() token.Pos   { return n.Token.Pos() }
func (n *IdentExpr) Pos() token.Pos     { return n.Token.Pos() }
func (n *MacroCallExpr) Pos() token.Pos { return n.Name.Pos() }
func (n *NumberExpr) Pos() token.Pos    { return n.Token.Pos() }
func (n *ParenExpr) Pos() token.Pos     { return n.Token.Pos() }
func (n *UnaryExpr) Pos() token.Pos     { return n.Op.Pos() }

func (*BinaryExpr) expr()    {}
func (*BoolExpr) expr()      {}
func (*CharExpr) expr()      {}
func (*CondExpr) expr()      {}
func (*DefinedExpr) expr()   {}
func (*IdentExpr) expr()     {}
func (*MacroCallExpr) expr() {}
func (*NumberExpr) expr()    {}
func (*ParenExpr) expr()     {}
func (*UnaryExpr) expr()     {}

// ExprString returns the source form of n with tokens separated by a single
// space.
func ExprString(n Expr) string {
	var a []string
	exprSrc(n, &a)
	return strings.Join(a, " ")
}

func exprSrc(n Expr, a *[]string) {
	switch x := n.(type) {
	case nil:
		// nop
	case *BinaryExpr:
		exprSrc(x.X, a)
		for _, v := range x.Rest {
			*a = append(*a, TokSrc(v.Op))
			exprSrc(v.X, a)
		}
	case *BoolExpr:
		*a = append(*a, TokSrc(x.Token))
	case *CharExpr:
		*a = append(*a, TokSrc(x.Token))
	case *CondExpr:
		exprSrc(x.Cond, a)
		*a = append(*a, "?")
		exprSrc(x.Then, a)
		*a = append(*a, ":")
		exprSrc(x.Else, a)
	case *DefinedExpr:
		*a = append(*a, "defined", "(", TokSrc(x.Name), ")")
	case *IdentExpr:
		*a = append(*a, TokSrc(x.Token))
	case *MacroCallExpr:
		*a = append(*a, TokSrc(x.Name))
		for _, v := range trimAllSpace(x.Args) {
			*a = append(*a, TokSrc(v))
		}
	case *NumberExpr:
		*a = append(*a, TokSrc(x.Token))
	case *ParenExpr:
		*a = append(*a, "(")
		exprSrc(x.X, a)
		*a = append(*a, ")")
	case *UnaryExpr:
		*a = append(*a, TokSrc(x.Op))
		exprSrc(x.X, a)
	default:
		*a = append(*a, fmt.Sprintf("%T", x))
	}
}

// SyntaxError is returned for text which is not a constant expression.
type SyntaxError struct {
	Token xc.Token // Offending token, Rune is lex.RuneEOF at the end of input.
	Msg   string
}

func (e *SyntaxError) Error() string { return e.Msg }

// ParseExpr parses the constant expression in text.
func ParseExpr(text string) (Expr, error) { return parseExpr(tokenizeString(text)) }

func parseExpr(toks []xc.Token) (n Expr, err error) {
	p := &exprParser{toks: toks}

	defer func() {
		switch x := recover().(type) {
		case nil:
			// nop
		case *SyntaxError:
			n = nil
			err = x
		default:
			panic(x)
		}
	}()

	n = p.cond()
	if t := p.peek(); t.Rune != lex.RuneEOF {
		p.fail(t, "unexpected %s after expression", describe(t))
	}
	return n, nil
}

// exprParser is a recursive descent parser of
//
//	cond:    lor [ '?' [ cond ] ':' cond ]
//	lor:     land { "||" land }
//	...
//	mul:     unary { ('*' | '/' | '%') unary }
//	unary:   ('+' | '-' | '!' | '~') unary | primary
//	primary: number | char | "true" | "false" | defined-expr
//	       | identifier [ '(' balanced-tokens ')' ] | '(' cond ')'
type exprParser struct {
	toks []xc.Token
	i    int
}

func (p *exprParser) fail(t xc.Token, msg string, args ...interface{}) {
	panic(&SyntaxError{Token: t, Msg: fmt.Sprintf(msg, args...)})
}

func (p *exprParser) skip() {
	for p.i < len(p.toks) {
		switch p.toks[p.i].Rune {
		case ' ', '\n':
			p.i++
		default:
			return
		}
	}
}

func (p *exprParser) peek() (t xc.Token) {
	p.skip()
	if p.i == len(p.toks) {
		t.Rune = lex.RuneEOF
		return t
	}

	return p.toks[p.i]
}

func (p *exprParser) next() xc.Token {
	t := p.peek()
	if t.Rune != lex.RuneEOF {
		p.i++
	}
	return t
}

func (p *exprParser) expect(r rune) xc.Token {
	t := p.next()
	if t.Rune != r {
		p.fail(t, "expected %q, found %s", r, describe(t))
	}
	return t
}

func (p *exprParser) cond() Expr {
	n := p.binary(LogicalOr)
	t := p.peek()
	if t.Rune != '?' {
		return n
	}

	p.next()
	var then Expr
	if p.peek().Rune != ':' {
		then = p.cond()
	}
	p.expect(':')
	return &CondExpr{Cond: n, Question: t, Then: then, Else: p.cond()}
}

func (p *exprParser) binary(k BinaryKind) Expr {
	operand := func() Expr {
		if k == Multiplicative {
			return p.unary()
		}

		return p.binary(k + 1)
	}

	n := operand()
	var rest []Operand
	for k.has(p.peek().Rune) {
		op := p.next()
		rest = append(rest, Operand{Op: op, X: operand()})
	}
	if len(rest) == 0 {
		return n
	}

	return &BinaryExpr{Kind: k, X: n, Rest: rest}
}

func (p *exprParser) unary() Expr {
	switch t := p.peek(); t.Rune {
	case '+', '-', '!', '~':
		p.next()
		return &UnaryExpr{Op: t, X: p.unary()}
	}

	return p.primary()
}

func (p *exprParser) primary() Expr {
	t := p.next()
	switch t.Rune {
	case PPNUMBER:
		return &NumberExpr{Token: t}
	case CHARCONST, LONGCHARCONST:
		return &CharExpr{Token: t}
	case '(':
		n := p.cond()
		p.expect(')')
		return &ParenExpr{Token: t, X: n}
	case IDENTIFIER:
		switch t.Val {
		case idTrue, idFalse:
			return &BoolExpr{Token: t}
		case idDefined:
			return p.defined(t)
		}

		if p.peek().Rune == '(' {
			return &MacroCallExpr{Name: t, Args: p.args()}
		}

		return &IdentExpr{Token: t}
	}

	p.fail(t, "expected expression, found %s", describe(t))
	panic("unreachable")
}

func (p *exprParser) defined(t xc.Token) Expr {
	paren := p.peek().Rune == '('
	if paren {
		p.next()
	}
	nm := p.next()
	if nm.Rune != IDENTIFIER {
		p.fail(nm, "operator \"defined\" requires an identifier, found %s", describe(nm))
	}

	if paren {
		p.expect(')')
	}
	return &DefinedExpr{Token: t, Name: nm}
}

// args returns the raw tokens of a parenthesized, balanced token sequence.
func (p *exprParser) args() []xc.Token {
	p.skip()
	start := p.i
	lvl := 0
	for p.i < len(p.toks) {
		t := p.toks[p.i]
		p.i++
		switch t.Rune {
		case '(':
			lvl++
		case ')':
			if lvl--; lvl == 0 {
				return p.toks[start:p.i:p.i]
			}
		}
	}
	var t xc.Token
	t.Rune = lex.RuneEOF
	p.fail(t, "missing ')' in macro argument list")
	panic("unreachable")
}

func describe(t xc.Token) string {
	if t.Rune == lex.RuneEOF {
		return "end of input"
	}

	return fmt.Sprintf("%q", TokSrc(t))
}
