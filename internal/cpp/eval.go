// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"
)

// maxShift bounds shift counts which would grow a value without masking it
// afterwards.
const maxShift = 1 << 12

var (
	mask32    = new(big.Int).SetUint64(math.MaxUint32)
	uint64Max = new(big.Int).SetUint64(math.MaxUint64)

	hexNumber = regexp.MustCompile(`0[xX]([0-9A-Fa-f]+)(ui64)?`)
)

// EvalError reports an inconsistency of an expression tree detected during
// evaluation, like an operator token not matching its node kind. Malformed
// input never produces an EvalError.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string { return fmt.Sprintf("evaluating %q: %v", e.Expr, e.Err) }

// Cause implements the github.com/pkg/errors causer interface.
func (e *EvalError) Cause() error { return e.Err }

// Unwrap returns the underlying error.
func (e *EvalError) Unwrap() error { return e.Err }

type internalError struct {
	msg string
}

func (e internalError) Error() string { return "internal error: " + e.msg }

func internalErrorf(msg string, args ...interface{}) internalError {
	return internalError{fmt.Sprintf(msg, args...)}
}

type parsed struct {
	expr Expr
	err  error
}

// Evaluator computes the value of #if constant expressions. Identifiers are
// resolved by fully expanding them, function-like macro invocations by
// expanding the invocation, and the results are evaluated recursively.
// Evaluation never modifies the macro table.
type Evaluator struct {
	*context
	cache    *lru.Cache[string, parsed]
	expander *Expander
}

// NewEvaluator returns a newly created *Evaluator resolving macros using x.
// Up to cacheSize parsed expressions are kept, zero selects
// DefaultExprCacheSize.
func NewEvaluator(x *Expander, cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultExprCacheSize
	}
	cache, err := lru.New[string, parsed](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating expression cache")
	}

	return &Evaluator{context: x.context, cache: cache, expander: x}, nil
}

// Evaluate reports whether the constant expression in text is nonzero. A
// malformed expression is logged and evaluates to false.
func (e *Evaluator) Evaluate(text string) (bool, error) {
	v, err := e.EvalToInt(text)
	if err != nil {
		return false, err
	}

	return v.Sign() != 0, nil
}

// EvalToInt returns the value of the constant expression in text.
func (e *Evaluator) EvalToInt(text string) (*big.Int, error) {
	return e.run(text, func(ev *evaluation) *big.Int { return ev.evalText(text, nil) })
}

// EvaluateExpr reports whether the value of n is nonzero.
func (e *Evaluator) EvaluateExpr(n Expr) (bool, error) {
	v, err := e.run(ExprString(n), func(ev *evaluation) *big.Int { return ev.eval(n) })
	if err != nil {
		return false, err
	}

	return v.Sign() != 0, nil
}

func (e *Evaluator) run(text string, f func(*evaluation) *big.Int) (r *big.Int, err error) {
	defer func() {
		switch x := recover().(type) {
		case nil:
			// nop
		case internalError:
			e.log.Error("evaluation failed", zap.String("expr", text), zap.Error(x))
			r = nil
			err = &EvalError{Expr: text, Err: x}
		default:
			panic(x)
		}
	}()

	return f(&evaluation{Evaluator: e, resolving: map[int]bool{}}), nil
}

func (e *Evaluator) parse(text string) (Expr, error) {
	if p, ok := e.cache.Get(text); ok {
		return p.expr, p.err
	}

	n, err := ParseExpr(text)
	e.cache.Add(text, parsed{n, err})
	return n, err
}

// evaluation is the state of one top level evaluation.
type evaluation struct {
	*Evaluator
	resolving map[int]bool // Names being resolved by an enclosing frame.
}

// evalText evaluates the expansion of a macro. from is the expression
// referring to the macro or nil.
func (ev *evaluation) evalText(text string, from Expr) *big.Int {
	n, err := ev.parse(text)
	if err != nil {
		fields := []zap.Field{zap.String("expr", text), zap.Error(err)}
		if from != nil {
			fields = append(fields, zap.Stringer("pos", ev.position(from)), zap.String("from", ExprString(from)))
		}
		ev.log.Warn("error evaluating expression, assuming 0", fields...)
		return new(big.Int)
	}

	return ev.eval(n)
}

func (ev *evaluation) truth(n Expr) bool { return ev.eval(n).Sign() != 0 }

func (ev *evaluation) eval(n Expr) *big.Int {
	switch x := n.(type) {
	case *NumberExpr:
		return ev.number(x)
	case *CharExpr:
		// Only the null character is false.
		if TokSrc(x.Token) == `'\0'` {
			return new(big.Int)
		}

		return big.NewInt(1)
	case *BoolExpr:
		switch x.Token.Val {
		case idTrue:
			return big.NewInt(1)
		case idFalse:
			return new(big.Int)
		}

		panic(internalErrorf("invalid boolean literal %q", TokSrc(x.Token)))
	case *IdentExpr:
		return ev.ident(x)
	case *MacroCallExpr:
		return ev.call(x)
	case *DefinedExpr:
		return boolInt(ev.expander.macros.Lookup(x.Name.Val) != nil)
	case *ParenExpr:
		return ev.eval(x.X)
	case *UnaryExpr:
		return ev.unary(x)
	case *BinaryExpr:
		return ev.binary(x)
	case *CondExpr:
		if x.Then == nil {
			if v := ev.eval(x.Cond); v.Sign() != 0 {
				return v
			}

			return ev.eval(x.Else)
		}

		if ev.truth(x.Cond) {
			return ev.eval(x.Then)
		}

		return ev.eval(x.Else)
	case nil:
		panic(internalErrorf("missing operand"))
	default:
		panic(internalErrorf("unexpected node %T", x))
	}
}

// number decodes a preprocessing number. A leading 0 selects octal, a 0x
// prefix hexadecimal. Integer suffixes are ignored. Anything else is logged
// and evaluates to 1.
func (ev *evaluation) number(n *NumberExpr) *big.Int {
	src := TokSrc(n.Token)
	s := src
	radix := 10
	if len(s) > 2 && s[0] == '0' {
		radix = 8
		if m := hexNumber.FindStringSubmatch(s); m != nil {
			radix = 16
			s = m[1]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case 'L', 'l', 'U', 'u':
			return -1
		}
		return r
	}, s)
	v, ok := new(big.Int).SetString(s, radix)
	if !ok {
		ev.log.Warn("cannot decode number, assuming 1", zap.String("number", src), zap.Stringer("pos", ev.position(n)))
		return big.NewInt(1)
	}

	return v
}

func (ev *evaluation) ident(n *IdentExpr) *big.Int {
	nm := n.Token.Val
	if ev.resolving[nm] {
		return new(big.Int)
	}

	text, ok := ev.expander.Lookup(TokSrc(n.Token))
	if !ok {
		return new(big.Int)
	}

	ev.resolving[nm] = true

	defer delete(ev.resolving, nm)

	return ev.evalText(text, n)
}

func (ev *evaluation) call(n *MacroCallExpr) *big.Int {
	nm := n.Name.Val
	if ev.resolving[nm] {
		return new(big.Int)
	}

	text, ok := ev.expander.ExpandFunctionLikeMacro(TokSrc(n.Name), n.Args)
	if !ok || text == "" {
		ev.log.Error("undefined function-like macro, assuming 0", zap.String("expr", ExprString(n)), zap.Stringer("pos", ev.position(n)))
		return new(big.Int)
	}

	ev.resolving[nm] = true

	defer delete(ev.resolving, nm)

	return ev.evalText(text, n)
}

func (ev *evaluation) unary(n *UnaryExpr) *big.Int {
	v := ev.eval(n.X)
	switch n.Op.Rune {
	case '+':
		return v
	case '-':
		return new(big.Int).Neg(v)
	case '!':
		return boolInt(v.Sign() == 0)
	case '~':
		r := new(big.Int).Not(v)
		return r.And(r, uint64Max)
	}
	panic(internalErrorf("unexpected unary operator %q", TokSrc(n.Op)))
}

func (ev *evaluation) binary(n *BinaryExpr) *big.Int {
	if len(n.Rest) == 0 {
		return ev.eval(n.X)
	}

	for _, v := range n.Rest {
		if !n.Kind.has(v.Op.Rune) {
			panic(internalErrorf("unexpected %v operator %q", n.Kind, TokSrc(v.Op)))
		}
	}

	switch n.Kind {
	case LogicalOr:
		r := ev.truth(n.X)
		for _, v := range n.Rest {
			if r {
				break
			}

			r = ev.truth(v.X)
		}
		return boolInt(r)
	case LogicalAnd:
		r := ev.truth(n.X)
		for _, v := range n.Rest {
			if !r {
				break
			}

			r = ev.truth(v.X)
		}
		return boolInt(r)
	case InclusiveOr, ExclusiveOr, And:
		r := new(big.Int).Set(ev.eval(n.X))
		for _, v := range n.Rest {
			switch y := ev.eval(v.X); n.Kind {
			case InclusiveOr:
				r.Or(r, y)
			case ExclusiveOr:
				r.Xor(r, y)
			default:
				r.And(r, y)
			}
		}
		return r
	case Equality:
		// The first comparison uses the operand values, each following
		// one compares the boolean result with the truth of the next
		// operand.
		first := n.Rest[0]
		eq := ev.eval(n.X).Cmp(ev.eval(first.X)) == 0
		r := eq == (first.Op.Rune == EQ)
		for _, v := range n.Rest[1:] {
			b := ev.truth(v.X)
			switch v.Op.Rune {
			case EQ:
				r = r == b
			default:
				r = r != b
			}
		}
		return boolInt(r)
	case Relational:
		// Following comparisons compare the 0/1 result with the value of
		// the next operand.
		r := ev.eval(n.X)
		for _, v := range n.Rest {
			c := r.Cmp(ev.eval(v.X))
			switch v.Op.Rune {
			case '<':
				r = boolInt(c < 0)
			case '>':
				r = boolInt(c > 0)
			case LEQ:
				r = boolInt(c <= 0)
			default:
				r = boolInt(c >= 0)
			}
		}
		return r
	case Shift:
		r := ev.eval(n.X)
		for _, v := range n.Rest {
			cnt := shiftCount(ev.eval(v.X))
			switch v.Op.Rune {
			case LSH:
				r = shl(r, cnt)
			default:
				r = shr(r, cnt)
			}
		}
		return r
	case Additive:
		r := new(big.Int).Set(ev.eval(n.X))
		for _, v := range n.Rest {
			switch y := ev.eval(v.X); v.Op.Rune {
			case '+':
				r.Add(r, y)
			default:
				r.Sub(r, y)
			}
		}
		return r
	case Multiplicative:
		r := new(big.Int).Set(ev.eval(n.X))
		for _, v := range n.Rest {
			y := ev.eval(v.X)
			if v.Op.Rune == '*' {
				r.Mul(r, y)
				continue
			}

			if y.Sign() == 0 {
				ev.log.Warn("division by zero, assuming 0", zap.String("expr", ExprString(n)), zap.Stringer("pos", ev.position(v.Op)))
				r.SetInt64(0)
				continue
			}

			// Truncating division. The remainder has the sign of the
			// dividend, -7 % 2 is -1, not the modulus 1.
			switch v.Op.Rune {
			case '/':
				r.Quo(r, y)
			default:
				r.Rem(r, y)
			}
		}
		return r
	}
	panic(internalErrorf("unexpected binary expression kind %v", n.Kind))
}

// shiftCount returns the low 32 bits of v as a signed value.
func shiftCount(v *big.Int) int {
	var m big.Int
	m.And(v, mask32)
	return int(int32(uint32(m.Uint64())))
}

// shl shifts v left by n, a negative n shifts right. The result is reduced
// to 64 bits.
func shl(v *big.Int, n int) *big.Int {
	r := new(big.Int)
	switch {
	case n < 0:
		r.Rsh(v, uint(-n))
	default:
		r.Lsh(v, uint(mathutil.Min(n, 64)))
	}
	return r.And(r, uint64Max)
}

// shr shifts v right arithmetically by n, a negative n shifts left.
func shr(v *big.Int, n int) *big.Int {
	r := new(big.Int)
	switch {
	case n < 0:
		r.Lsh(v, uint(mathutil.Min(-n, maxShift)))
	default:
		r.Rsh(v, uint(n))
	}
	return r
}

func boolInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}

	return new(big.Int)
}
