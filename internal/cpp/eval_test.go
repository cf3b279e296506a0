// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEvaluator(t *testing.T, defs ...string) (*Evaluator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	m := NewMacroTable()
	for _, v := range defs {
		if _, err := m.DefineString(v); err != nil {
			t.Fatal(err)
		}
	}
	e, err := NewEvaluator(NewExpander(m, zap.New(core)), 0)
	if err != nil {
		t.Fatal(err)
	}

	return e, logs
}

func TestEvalToInt(t *testing.T) {
	e, _ := newTestEvaluator(t,
		"A B + 1",
		"B 3",
		"EMPTY()",
		"FOO",
		"MAX(a, b) ((a) > (b) ? (a) : (b))",
		"MUTUAL_A MUTUAL_B",
		"MUTUAL_B MUTUAL_A",
		"ONE 1",
		"SELF SELF + 1",
		"SQR(x) x * x",
		"ZERO 0",
	)
	for i, v := range []struct{ src, exp string }{
		// Numbers.
		{"0", "0"},
		{"42", "42"},
		{"10L", "10"},
		{"10uLL", "10"},
		{"0777", "511"},
		{"08", "8"},
		{"0x10", "16"},
		{"0X1fUL", "31"},
		{"0x10ui64", "16"},
		{"18446744073709551616", "18446744073709551616"},

		// Literals.
		{"'a'", "1"},
		{"'0'", "1"},
		{`'\0'`, "0"},
		{"L'x'", "1"},
		{"true", "1"},
		{"false", "0"},

		// Unary operators.
		{"+3", "3"},
		{"-3", "-3"},
		{"!0", "1"},
		{"!7", "0"},
		{"~0", "18446744073709551615"},
		{"~0 == 0xffffffffffffffff", "1"},
		{"~-1", "0"},

		// Arithmetic.
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"10 - 2 - 3", "5"},
		{"7 / 2", "3"},
		{"-7 / 2", "-3"},
		{"7 % 3", "1"},
		// % is the C remainder, not a modulus. It takes the sign of the
		// dividend.
		{"-7 % 2", "-1"},
		{"7 % -2", "1"},
		{"-7 % -2", "-1"},

		// Bitwise.
		{"6 & 3", "2"},
		{"6 | 3", "7"},
		{"6 ^ 3", "5"},

		// Shifts.
		{"1 << 3", "8"},
		{"1 << 63", "9223372036854775808"},
		{"1 << 64", "0"},
		{"3 << 63", "9223372036854775808"},
		{"256 >> 4", "16"},
		{"-8 >> 1", "-4"},
		{"16 << -2", "4"},
		{"1 >> -3", "8"},
		{"1 << 4294967297", "2"},
		{"1 << 2 << 3", "32"},

		// Logical.
		{"1 && 2", "1"},
		{"1 && 0", "0"},
		{"0 || 0", "0"},
		{"0 || 3", "1"},
		{"true && false", "0"},

		// Equality and relational chains.
		{"1 == 1", "1"},
		{"1 != 1", "0"},
		{"1 == 1 == 1", "1"},
		// After the first pair, == compares the result with the truth of
		// the next operand, not with its value: (2 == 2) == (2 != 0).
		{"2 == 2 == 2", "1"},
		{"2 == 2 == 5", "1"},
		{"2 == 3 == 0", "1"},
		{"1 == 1 != 5", "0"},
		{"1 < 2", "1"},
		{"1 < 2 < 3", "1"},
		{"3 > 2 > 1", "0"},
		{"3 >= 3 <= 0", "0"},

		// Conditionals.
		{"1 ? 2 : 3", "2"},
		{"0 ? 2 : 3", "3"},
		{"5 ?: 7", "5"},
		{"0 ?: 7", "7"},
		{"0 ? 1 : 0 ? 2 : 3", "3"},

		// Macros.
		{"defined FOO", "1"},
		{"defined(FOO)", "1"},
		{"defined BAR", "0"},
		{"!defined(BAR) && ONE", "1"},
		{"FOO", "0"},
		{"BAR", "0"},
		{"A", "4"},
		{"A * 2", "8"},
		{"SELF", "1"},
		{"MUTUAL_A", "0"},
		{"MAX(2, 5)", "5"},
		{"MAX(ONE, ZERO)", "1"},
		{"SQR(1 + 2)", "5"},
		{"UNDEFINED(1)", "0"},
		{"EMPTY()", "0"},

		// Malformed input.
		{"1 +", "0"},
		{"089", "1"},
		{"1.5", "1"},
		{"7 / 0", "0"},
		{"7 % ZERO", "0"},
	} {
		g, err := e.EvalToInt(v.src)
		if err != nil {
			t.Errorf("%v: %q: %v", i, v.src, err)
			continue
		}

		if e := v.exp; g.String() != e {
			t.Errorf("%v: %q: got %v, exp %v", i, v.src, g, e)
		}
	}
}

func TestEvaluate(t *testing.T) {
	e, _ := newTestEvaluator(t, "ON 1", "OFF 0")
	for i, v := range []struct {
		src string
		exp bool
	}{
		{"ON", true},
		{"OFF", false},
		{"ON && !OFF", true},
		{"-1", true},
		{"", false},
	} {
		g, err := e.Evaluate(v.src)
		if err != nil {
			t.Errorf("%v: %q: %v", i, v.src, err)
			continue
		}

		if g != v.exp {
			t.Errorf("%v: %q: got %v, exp %v", i, v.src, g, v.exp)
		}
	}
}

func TestEvalLogs(t *testing.T) {
	for i, v := range []struct {
		src   string
		level zapcore.Level
		msg   string
	}{
		{"089", zapcore.WarnLevel, "cannot decode number, assuming 1"},
		{"1 +", zapcore.WarnLevel, "error evaluating expression, assuming 0"},
		{"BAD", zapcore.WarnLevel, "error evaluating expression, assuming 0"},
		{"1 / 0", zapcore.WarnLevel, "division by zero, assuming 0"},
		{"NOPE(1)", zapcore.ErrorLevel, "undefined function-like macro, assuming 0"},
	} {
		e, logs := newTestEvaluator(t, "BAD 1 +")
		if _, err := e.EvalToInt(v.src); err != nil {
			t.Errorf("%v: %q: %v", i, v.src, err)
			continue
		}

		l := logs.FilterMessage(v.msg).All()
		if len(l) != 1 {
			t.Errorf("%v: %q: got %v %q logs, exp 1", i, v.src, len(l), v.msg)
			continue
		}

		if g, e := l[0].Level, v.level; g != e {
			t.Errorf("%v: %q: got level %v, exp %v", i, v.src, g, e)
		}
	}
}

func TestEvalShortCircuit(t *testing.T) {
	e, logs := newTestEvaluator(t)
	for _, v := range []string{"1 || 1 / 0", "0 && 1 / 0", "1 ? 1 : 1 / 0"} {
		if _, err := e.EvalToInt(v); err != nil {
			t.Fatal(err)
		}
	}
	if g, e := logs.FilterMessage("division by zero, assuming 0").Len(), 0; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}
}

func TestEvalError(t *testing.T) {
	e, logs := newTestEvaluator(t)
	one := tokenizeString("1")[0]
	star := tokenizeString("*")[0]
	for i, n := range []Expr{
		&BinaryExpr{Kind: Additive, X: &NumberExpr{one}, Rest: []Operand{{Op: star, X: &NumberExpr{one}}}},
		&UnaryExpr{Op: star, X: &NumberExpr{one}},
		&BoolExpr{Token: one},
		&ParenExpr{},
		nil,
	} {
		_, err := e.EvaluateExpr(n)
		var x *EvalError
		if !errors.As(err, &x) {
			t.Errorf("%v: got %v, exp *EvalError", i, err)
			continue
		}

		if _, ok := errors.Cause(err).(internalError); !ok {
			t.Errorf("%v: got cause %T", i, errors.Cause(err))
		}
	}
	if g, e := logs.FilterMessage("evaluation failed").Len(), 5; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}
}

func TestEvalCache(t *testing.T) {
	e, _ := newTestEvaluator(t, "X 1 + 1")
	for i := 0; i < 3; i++ {
		v, err := e.EvalToInt("X + 1")
		if err != nil {
			t.Fatal(err)
		}

		if g, e := v, big.NewInt(3); g.Cmp(e) != 0 {
			t.Fatalf("got %v, exp %v", g, e)
		}
	}
	if g, e := e.cache.Len(), 2; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}

	if !e.cache.Contains("X + 1") || !e.cache.Contains("1 + 1") {
		t.Fatal("missing cache entry")
	}
}

func TestEvalCacheSize(t *testing.T) {
	m := NewMacroTable()
	e, err := NewEvaluator(NewExpander(m, nil), 2)
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []string{"1", "2", "3"} {
		if _, err := e.EvalToInt(v); err != nil {
			t.Fatal(err)
		}
	}
	if g, e := e.cache.Len(), 2; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}

	if e.cache.Contains("1") {
		t.Fatal("least recently used entry not evicted")
	}
}

func TestEvalDoesNotModifyTable(t *testing.T) {
	e, _ := newTestEvaluator(t, "A 1", "F(x) x")
	n := e.expander.Macros().Len()
	if _, err := e.EvalToInt("defined A && A && F(A) && !defined B"); err != nil {
		t.Fatal(err)
	}

	if g, e := e.expander.Macros().Len(), n; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}
}
