// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arnaudsylvestre/sonar-cxx/internal/emit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConditionals(t *testing.T) {
	for i, v := range []struct{ src, exp string }{
		{"#if 1\na\n#endif\nb", "a b"},
		{"#if 0\na\n#endif\nb", "b"},
		{"#if 0\na\n#else\nb\n#endif", "b"},
		{"#if 1\na\n#else\nb\n#endif", "a"},
		{"#if 0\na\n#elif 1\nb\n#elif 1\nc\n#else\nd\n#endif", "b"},
		{"#if 0\na\n#elif 0\nb\n#else\nc\n#endif", "c"},
		{"#if 1\na\n#elif 1\nb\n#else\nc\n#endif", "a"},
		{"#if 0\n#if 1\na\n#else\nb\n#endif\nc\n#else\nd\n#endif", "d"},
		{"#if 1\n#if 0\na\n#else\nb\n#endif\nc\n#endif", "b c"},
		{"#define A\n#ifdef A\na\n#endif\n#ifndef A\nb\n#endif", "a"},
		{"#ifdef A\na\n#else\nb\n#endif", "b"},
		{"#define V 2\n#if V == 1\none\n#elif V == 2\ntwo\n#endif", "two"},
		{"#if defined(A) || !defined B\nx\n#endif", "x"},
		{"#define FOO\n#if defined(FOO)\na\n#endif\n#undef FOO\n#if defined(FOO)\nb\n#endif", "a"},
		{"#undef FOO\n#define FOO 0\n#if defined FOO\na\n#endif", "a"},
		{"#if 0\n#error not reached\n#bogus\n#endif\nx", "x"},
		{"#if 0\nit's\n#endif\nx", "x"},
		{"# /* empty */\nx", "x"},
		{"#pragma once\n#line 10\n#ident \"x\"\n# 1 \"a.c\"\nx", "x"},
		{"a # b", "a # b"},
		{"#define H #\nH define X 1\nX", "# define X 1 X"},
	} {
		if g, e := preprocess(t, v.src), v.exp; g != e {
			t.Errorf("%v: %q\ngot %s\nexp %s", i, v.src, g, e)
		}
	}
}

func TestPreprocessDiagnostics(t *testing.T) {
	for i, v := range []struct{ src, exp string }{
		{"#if 1\nx", "test.c:1:2: unterminated #if"},
		{"#ifdef A\n#else\nx", "test.c:1:2: unterminated #ifdef"},
		{"#else", "test.c:1:2: #else without #if"},
		{"#endif", "test.c:1:2: #endif without #if"},
		{"#elif 1", "test.c:1:2: #elif without #if"},
		{"#error foo bar", "test.c:1:2: #error foo bar"},
		{"#bogus", "test.c:1:2: invalid preprocessing directive #bogus"},
		{"#define", "test.c:1:2: no macro name given"},
		{"#define 1", "test.c:1:2: macro names must be identifiers: \"1\""},
		{"#undef", "test.c:1:2: no macro name given in #undef directive"},
		{"#ifdef 1\n#endif", "test.c:1:8: macro names must be identifiers"},
		{"#if 1 +\n#endif", "test.c:1:2: invalid #if expression \"1 +\": expected expression, found end of input"},
		{"#define F(a) a\nF(1", "test.c:2:1: unterminated argument list invoking macro \"F\""},
		{"#include", "test.c:1:2: #include expects \"FILENAME\" or <FILENAME>"},
	} {
		p, err := NewPreprocessor(nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}

		_, err = p.Preprocess(NewStringSource("test.c", v.src))
		if err == nil {
			t.Errorf("%v: %q: unexpected success", i, v.src)
			continue
		}

		l, ok := err.(scanner.ErrorList)
		if !ok {
			t.Errorf("%v: %q: got %T", i, v.src, err)
			continue
		}

		if g, e := l[0].Error(), v.exp; g != e {
			t.Errorf("%v: %q\ngot %s\nexp %s", i, v.src, g, e)
		}

		if g, e := p.Errors().Error(), err.Error(); g != e {
			t.Errorf("%v: %q: got %q, exp %q", i, v.src, g, e)
		}
	}
}

func TestPreprocessKeepsGoing(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("test.c", "#error stop\n#define A 1\nA"))
	if err == nil {
		t.Fatal("unexpected success")
	}

	if g, e := emit.Serialize(toks), "1"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}
}

func TestPreprocessLines(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("test.c", "#define A 1\n#if 0\nx\n#endif\nA\n"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := emit.String(toks), "\n\n\n\n1\n"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}
}

// Text output must scan back into the tokens it was written from.
func TestPreprocessTextRescans(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	src := "#define P(x) x\"y\"\n#define Q(x) x.5\n#define R(x) x+1\n#define S(x) x'c'\nP(L) Q(1) R(1e) S(u8) 1 .2\n"
	toks, err := p.Preprocess(NewStringSource("test.c", src))
	if err != nil {
		t.Fatal(err)
	}

	exp := emit.Serialize(toks)
	if g, e := exp, `L "y" 1 .5 1e + 1 u8 'c' 1 .2`; g != e {
		t.Fatalf("got %s, exp %s", g, e)
	}

	text := emit.String(toks)
	if g := emit.Serialize(tokenizeString(text)); g != exp {
		t.Fatalf("%q\ngot %s\nexp %s", text, g, exp)
	}
}

func TestBuiltinMacros(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("a.c", "__FILE__\n#define L __LINE__\nL __LINE__\n__STDC__ defined(__cplusplus)"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := emit.Serialize(toks), `"a.c" 3 3 1 defined ( __cplusplus )`; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}

	for _, v := range []string{"__DATE__", "__TIME__", "__FILE__", "__LINE__", "__STDC__"} {
		if p.Macros().LookupString(v) == nil {
			t.Errorf("%s not defined", v)
		}
	}
	if p.Macros().LookupString("__cplusplus") != nil {
		t.Error("__cplusplus defined")
	}
}

func TestCPlusPlus(t *testing.T) {
	p, err := NewPreprocessor(nil, &Tweaks{CPlusPlus: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("a.cpp", "#ifdef __cplusplus\n__cplusplus\n#endif"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := emit.Serialize(toks), "201103L"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}
}

func TestPreprocessorDefine(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Define("MAX(a, b) ((a) > (b) ? (a) : (b))"); err != nil {
		t.Fatal(err)
	}

	if err := p.Define("GONE 1"); err != nil {
		t.Fatal(err)
	}

	if err := p.Define("(x)"); err == nil {
		t.Fatal("unexpected success")
	}

	p.Undef("GONE")
	toks, err := p.Preprocess(NewStringSource("test.c", "#if MAX(1, 2) == 2 && !defined(GONE)\nok\n#endif"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := emit.Serialize(toks), "ok"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}

	// Definitions persist across calls.
	if toks, err = p.Preprocess(NewStringSource("test2.c", "MAX(x, y)")); err != nil {
		t.Fatal(err)
	}

	if g, e := emit.Serialize(toks), "( ( x ) > ( y ) ? ( x ) : ( y ) )"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}

	if p.Expander().Macros() != p.Macros() {
		t.Fatal("expander does not share the macro table")
	}

	if v, err := p.Evaluator().Evaluate("MAX(3, 2) == 3"); err != nil || !v {
		t.Fatalf("got %v %v", v, err)
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range files {
		fn := filepath.Join(dir, filepath.FromSlash(k))
		if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(fn, []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestInclude(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.c":       "#include \"a.h\"\n#include <sys.h>\n#define HDR \"b.h\"\n#include HDR\nA B S main",
		"a.h":          "#ifndef A_H\n#define A_H\n#define A a\n#include \"a.h\"\n#endif\n",
		"b.h":          "#define B b\n",
		"sys/sys.h":    "#define S s\n#include_next <sys.h>\n",
		"sys2/sys.h":   "#define main sys2\n",
		"unused/sys.h": "#error not reached\n",
	})
	p, err := NewPreprocessor(nil, &Tweaks{SysIncludePaths: []string{filepath.Join(dir, "sys"), filepath.Join(dir, "sys2")}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewFileSource(filepath.Join(dir, "main.c")))
	if err != nil {
		t.Fatal(errString(err))
	}

	if g, e := emit.Serialize(toks), "a b s sys2"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}
}

func TestIncludeSearchPath(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"src/main.c":   "#include \"x.h\"\nX",
		"inc/x.h":      "#define X inc\n",
		"src/x.h":      "#define X src\n",
		"sys/y.h":      "#define Y sys\n",
		"src/quoted.c": "#include \"y.h\"\nY",
		"src/angle.c":  "#include <x.h>\nX",
	})
	tweaks := &Tweaks{
		IncludePaths:    []string{filepath.Join(dir, "inc"), "@"},
		SysIncludePaths: []string{filepath.Join(dir, "sys")},
	}
	for i, v := range []struct{ fn, exp string }{
		{"src/main.c", "inc"},
		{"src/quoted.c", "sys"},
		{"src/angle.c", "X"},
	} {
		p, err := NewPreprocessor(nil, tweaks, nil)
		if err != nil {
			t.Fatal(err)
		}

		toks, err := p.Preprocess(NewFileSource(filepath.Join(dir, filepath.FromSlash(v.fn))))
		if err != nil {
			t.Errorf("%v: %s", i, errString(err))
			continue
		}

		if g, e := emit.Serialize(toks), v.exp; g != e {
			t.Errorf("%v: %s: got %q, exp %q", i, v.fn, g, e)
		}
	}
}

func TestIncludeNotFound(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p, err := NewPreprocessor(nil, nil, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("test.c", "#include \"missing.h\"\nx"))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := emit.Serialize(toks), "x"; g != e {
		t.Fatalf("got %q, exp %q", g, e)
	}

	if g, e := logs.FilterMessage("include file not found").Len(), 1; g != e {
		t.Fatalf("got %v, exp %v", g, e)
	}
}

func TestIncludeLevel(t *testing.T) {
	dir := writeFiles(t, map[string]string{"self.h": "#include \"self.h\"\n"})
	p, err := NewPreprocessor(nil, &Tweaks{MaxIncludeLevel: 5}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Preprocess(NewFileSource(filepath.Join(dir, "self.h")))
	if err == nil {
		t.Fatal("unexpected success")
	}

	if g, e := err.Error(), "#include nested too deeply"; !strings.Contains(g, e) {
		t.Fatalf("got %q, exp %q", g, e)
	}
}

func TestPreprocessIOError(t *testing.T) {
	p, err := NewPreprocessor(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Preprocess(NewFileSource(filepath.Join(t.TempDir(), "missing.c")))
	if err == nil {
		t.Fatal("unexpected success")
	}

	if _, ok := err.(scanner.ErrorList); ok {
		t.Fatalf("got diagnostics, exp I/O error: %v", err)
	}
}

func TestPreprocessPositions(t *testing.T) {
	fset := token.NewFileSet()
	p, err := NewPreprocessor(fset, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	toks, err := p.Preprocess(NewStringSource("test.c", "#define A x\n\n  A"))
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range toks {
		if v.Rune != IDENTIFIER {
			continue
		}

		if g, e := fset.Position(v.Pos()).String(), "test.c:3:3"; g != e {
			t.Fatalf("got %q, exp %q", g, e)
		}
		return
	}
	t.Fatal("no identifier")
}
