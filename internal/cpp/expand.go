// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/arnaudsylvestre/sonar-cxx/internal/emit"
	"go.uber.org/zap"
	"modernc.org/golex/lex"
	"modernc.org/xc"
)

var (
	_ tokenReader = (*tokenBuffer)(nil)
	_ tokenWriter = (*tokenBuffer)(nil)
)

type tokenWriter interface {
	write(...xc.Token)
}

type tokenReader interface {
	read() xc.Token
	unget(xc.Token)
	ungets(...xc.Token)
}

type tokenBuffer struct {
	toks []xc.Token
	ungetBuffer

	directives bool // Turn '#' at the start of a line into DIRECTIVE.
	last       rune
}

func newTokenBuffer(toks []xc.Token, directives bool) *tokenBuffer {
	return &tokenBuffer{toks: toks, directives: directives}
}

func (b *tokenBuffer) write(t ...xc.Token) { b.toks = append(b.toks, t...) }

func (b *tokenBuffer) read() (t xc.Token) {
	if len(b.ungetBuffer) != 0 {
		return b.ungetBuffer.read()
	}

	if len(b.toks) == 0 {
		t.Rune = lex.RuneEOF
		return
	}

	t = b.toks[0]
	b.toks = b.toks[1:]
	if b.directives && t.Rune == '#' && (b.last == '\n' || b.last == 0) {
		t.Rune = DIRECTIVE
	}
	if t.Rune != ' ' {
		b.last = t.Rune
	}
	return t
}

// directiveHandler processes the lines of a source file starting with '#'
// and tells whether the current group is included.
type directiveHandler interface {
	directive(x *expansion, r tokenReader, w tokenWriter)
	on() bool
}

// Expander performs macro replacement using the definitions of a MacroTable.
// It never modifies the table.
type Expander struct {
	*context
	macros *MacroTable
}

// NewExpander returns a newly created *Expander using the definitions in
// macros. log may be nil.
func NewExpander(macros *MacroTable, log *zap.Logger) *Expander {
	return newExpander(newContext(nil, nil, log), macros)
}

func newExpander(ctx *context, macros *MacroTable) *Expander {
	return &Expander{context: ctx, macros: macros}
}

// Macros returns the macro table used by x.
func (x *Expander) Macros() *MacroTable { return x.macros }

// Expand returns toks with all macro invocations replaced. Identifiers
// excluded from replacement by the hide set rules are returned as plain
// identifiers.
func (x *Expander) Expand(toks []xc.Token) []xc.Token {
	return cook(x.newExpansion().expands(toks))
}

// ExpandString tokenizes s and returns the result of expanding it.
func (x *Expander) ExpandString(s string) []xc.Token {
	return x.Expand(tokenizeString(s))
}

// Lookup returns the serialized full expansion of the macro named name and
// true, or "" and false if there is no such macro. A function-like macro not
// followed by arguments expands to its own name.
func (x *Expander) Lookup(name string) (string, bool) {
	nm := dict.SID(name)
	if x.macros.Lookup(nm) == nil {
		return "", false
	}

	return emit.Serialize(x.Expand([]xc.Token{newToken(token.NoPos, IDENTIFIER, nm)})), true
}

// ExpandFunctionLikeMacro returns the serialized expansion of the invocation
// of the macro named name with args, which include the enclosing
// parentheses. It returns false if there is no such macro.
func (x *Expander) ExpandFunctionLikeMacro(name string, args []xc.Token) (string, bool) {
	nm := dict.SID(name)
	if x.macros.Lookup(nm) == nil {
		return "", false
	}

	toks := append([]xc.Token{newToken(token.NoPos, IDENTIFIER, nm)}, args...)
	return emit.Serialize(x.Expand(toks)), true
}

// expansion is the state of one top level expansion request.
type expansion struct {
	*Expander
	hideSet map[int]int // name: hidden if != 0.
}

func (x *Expander) newExpansion() *expansion {
	return &expansion{Expander: x, hideSet: map[int]int{}}
}

func (x *expansion) expands(toks []xc.Token) []xc.Token {
	var w tokenBuffer
	x.expand(newTokenBuffer(toks, false), &w, nil)
	return w.toks
}

// [1]pg 1.
//
// expand(TS ) /* recur, substitute, pushback, rescan */
// {
// 	if TS is {} then
//		// ---------------------------------------------------------- A
// 		return {};
//
// 	else if TS is T^HS • TS’ and T is in HS then
//		//----------------------------------------------------------- B
// 		return T^HS • expand(TS’);
//
// 	else if TS is T^HS • TS’ and T is a "()-less macro" then
//		// ---------------------------------------------------------- C
// 		return expand(subst(ts(T ),{},{},HS ∪{T},{}) • TS’ );
//
// 	else if TS is T^HS •(•TS’ and T is a "()’d macro" then
//		// ---------------------------------------------------------- D
// 		check TS’ is actuals • )^HS’ • TS’’ and actuals are "correct for T"
// 		return expand(subst(ts(T ),fp(T ),actuals,(HS ∩HS’) ∪{T },{}) • TS’’);
//
//	// ------------------------------------------------------------------ E
// 	note TS must be T^HS • TS’
// 	return T^HS • expand(TS’);
// }
//
// Hide sets are kept per expansion as counters. A replacement list is pushed
// back to r followed by a SENTINEL token, the macro stays hidden until the
// SENTINEL is read.
func (x *expansion) expand(r tokenReader, w tokenWriter, d directiveHandler) {
	for {
		t := r.read()
		switch t.Rune {
		case lex.RuneEOF:
			// -------------------------------------------------- A
			return
		case SENTINEL:
			if x.hideSet[t.Val]--; x.hideSet[t.Val] <= 0 {
				delete(x.hideSet, t.Val)
			}
			continue
		case DIRECTIVE:
			if d == nil {
				t.Rune = '#'
				w.write(t)
				continue
			}

			d.directive(x, r, w)
			t.Rune = '\n'
			t.Val = idNL
			w.write(t)
			continue
		}

		if d != nil && !d.on() {
			if t.Rune == '\n' {
				w.write(t)
			}
			continue
		}

		if t.Rune != IDENTIFIER {
			// -------------------------------------------------- E
			w.write(t)
			continue
		}

		nm := t.Val
		if x.hideSet[nm] != 0 {
			// -------------------------------------------------- B
			t.Rune = NON_REPL
			w.write(t)
			continue
		}

		m := x.macros.Lookup(nm)
		switch {
		case m == nil:
			w.write(t)
		case !m.IsFnLike:
			// -------------------------------------------------- C
			x.push(r, t, x.subst(m, nil, t))
		default:
			// -------------------------------------------------- D
			x.invoke(m, t, r, w)
		}
	}
}

// push stamps toks with the position of the invocation t, pushes them back to
// r and hides the macro until its sentinel is read.
func (x *expansion) push(r tokenReader, t xc.Token, toks []xc.Token) {
	for i, v := range toks {
		toks[i].Char = lex.NewChar(t.Pos(), v.Rune)
	}
	s := t
	s.Rune = SENTINEL
	x.hideSet[t.Val]++
	r.ungets(append(toks, s)...)
}

func (x *expansion) invoke(m *Macro, t xc.Token, r tokenReader, w tokenWriter) {
	skipped, lparen, ok := x.lparen(r)
	if !ok {
		r.ungets(skipped...)
		w.write(t)
		return
	}

	ap, raw, sentinels, ok := x.actuals(m, t, r)
	if !ok {
		r.ungets(append(append(skipped, lparen), raw...)...)
		w.write(t)
		return
	}

	// Frames ending inside the invocation no longer hide their macro.
	for _, v := range append(skipped, sentinels...) {
		if v.Rune == SENTINEL {
			if x.hideSet[v.Val]--; x.hideSet[v.Val] <= 0 {
				delete(x.hideSet, v.Val)
			}
		}
	}
	x.push(r, t, x.subst(m, ap, t))
}

// lparen reads white space and sentinels up to the '(' of a function-like
// macro invocation. If the next significant token is not '(', it returns
// everything read and false.
func (x *expansion) lparen(r tokenReader) (skipped []xc.Token, lparen xc.Token, ok bool) {
	for {
		t := r.read()
		switch t.Rune {
		case '(':
			return skipped, t, true
		case ' ', '\n', SENTINEL:
			skipped = append(skipped, t)
		case lex.RuneEOF:
			return skipped, t, false
		default:
			return append(skipped, t), t, false
		}
	}
}

// actuals collects the arguments of an invocation of m, the '(' was already
// consumed. The arguments of a variadic parameter are collected as a single
// argument including the separating commas. raw holds everything read,
// sentinels are not part of any argument and are also returned separately.
func (x *expansion) actuals(m *Macro, t xc.Token, r tokenReader) (ap [][]xc.Token, raw, sentinels []xc.Token, ok bool) {
	var lvl int
	ap = [][]xc.Token{nil}
	for {
		u := r.read()
		switch u.Rune {
		case lex.RuneEOF, DIRECTIVE:
			x.err(t, "unterminated argument list invoking macro %q", m.Name())
			if u.Rune == DIRECTIVE {
				raw = append(raw, u)
			}
			return nil, raw, nil, false
		}

		raw = append(raw, u)
		switch u.Rune {
		case SENTINEL:
			sentinels = append(sentinels, u)
			continue
		case ',':
			if lvl == 0 && !(m.IsVariadic && len(ap) == len(m.Params)) {
				ap = append(ap, nil)
				continue
			}
		case ')':
			if lvl == 0 {
				for i, v := range ap {
					ap[i] = trimSpace(v)
				}
				if !m.arity(len(ap), len(ap[0]) == 0) {
					x.err(t, "macro %q passed %d arguments, but takes %d", m.Name(), len(ap), len(m.Params))
					return nil, raw, nil, false
				}

				for len(ap) < len(m.Params) {
					ap = append(ap, nil)
				}
				return ap, raw, sentinels, true
			}

			lvl--
		case '(':
			lvl++
		case '\n':
			u.Rune = ' '
			u.Val = idSpace
		}
		n := len(ap) - 1
		ap[n] = append(ap[n], u)
	}
}

// [1]pg 2.
//
// subst(IS,FP,AP,HS,OS ) /* substitute args, handle stringize and paste */
// {
// 	if IS is {} then
//		// ---------------------------------------------------------- A
// 		return hsadd(HS,OS);
//
// 	else if IS is #•T•IS’ and T is FP[i] then
//		// ---------------------------------------------------------- B
// 		return subst(IS’,FP,AP,HS,OS • stringize(select(i,AP)));
//
// 	else if IS is ## • T • IS’ and T is FP[i] then
//	{
//		// ---------------------------------------------------------- C
// 		if select(i,AP ) is {} then /* only if actuals can be empty */
//			// -------------------------------------------------- D
// 			return subst(IS’,FP,AP,HS,OS);
// 		else
//			// -------------------------------------------------- E
// 			return subst(IS’,FP,AP,HS,glue(OS,select(i,AP)));
// 	}
//
// 	else if IS is ## • T^HS’ • IS’ then
//		// ---------------------------------------------------------- F
// 		return subst(IS’,FP,AP,HS,glue(OS,T^HS’ ));
//
// 	else if IS is T•##^HS’ • IS’ and T is FP[i] then
//	{
//		// ---------------------------------------------------------- G
// 		if select(i,AP ) is {} then /* only if actuals can be empty */
//			// -------------------------------------------------- H
// 			return subst(IS’,FP,AP,HS,OS • placemarker);
//		else
//			// -------------------------------------------------- K
// 			return subst(##^HS’ • IS’,FP,AP,HS,OS • select(i,AP));
//
//	}
//
// 	else if IS is T•IS’ and T is FP[i] then
//		// ---------------------------------------------------------- L
// 		return subst(IS’,FP,AP,HS,OS • expand(select(i,AP)));
//
//	// ------------------------------------------------------------------ M
// 	note IS must be T^HS’ • IS’
// 	return subst(IS’,FP,AP,HS,OS • THS’);
// }
//
// Empty operands of ## are represented by a placemarker, [0]6.10.3.3-2. A
// comma followed by ## and an empty variable argument is deleted (GNU). A
// comma followed by a variable argument expanding to nothing is deleted
// (Visual C++).
func (x *expansion) subst(m *Macro, ap [][]xc.Token, t xc.Token) (out []xc.Token) {
	if m.builtin {
		return []xc.Token{x.builtin(t)}
	}

	repl := m.ReplacementToks
	for len(repl) != 0 {
		tok := repl[0]
		if m.IsFnLike && tok.Rune == '#' {
			if i := skipSpace(repl, 1); i < len(repl) {
				if n := m.param(repl[i]); n >= 0 {
					// ------------------------------------------ B
					out = append(out, x.stringize(ap[n], tok))
					repl = repl[i+1:]
					continue
				}
			}
		}

		if tok.Rune == PPPASTE {
			i := skipSpace(repl, 1)
			if i == len(repl) {
				x.err(tok, "'##' cannot appear at either end of a macro expansion")
				repl = nil
				continue
			}

			u := repl[i]
			repl = repl[i+1:]
			n := m.param(u)
			if n < 0 {
				// ------------------------------------------ F
				out = x.glue(out, []xc.Token{u})
				continue
			}

			// -------------------------------------------------- C
			arg := ap[n]
			if m.isVariadicParam(n) {
				if j := lastNonSpace(out); j >= 0 && out[j].Rune == ',' {
					if len(arg) == 0 {
						out = out[:j]
						continue
					}

					out = append(out, arg...)
					continue
				}
			}

			if len(arg) == 0 {
				// ------------------------------------------ D
				arg = []xc.Token{x.placemarker(u)}
			}
			// -------------------------------------------------- E
			out = x.glue(out, arg)
			continue
		}

		if n := m.param(tok); n >= 0 {
			repl = repl[1:]
			if i := skipSpace(repl, 0); i < len(repl) && repl[i].Rune == PPPASTE {
				// ------------------------------------------ G
				if len(ap[n]) == 0 {
					// ---------------------------------- H
					out = append(out, x.placemarker(tok))
					continue
				}

				// ------------------------------------------ K
				out = append(out, ap[n]...)
				continue
			}

			// -------------------------------------------------- L
			arg := x.expands(ap[n])
			if m.isVariadicParam(n) && len(trimSpace(cook(arg))) == 0 {
				if j := lastNonSpace(out); j >= 0 && out[j].Rune == ',' {
					out = out[:j]
				}
			}
			out = append(out, arg...)
			continue
		}

		// ---------------------------------------------------------- M
		out = append(out, tok)
		repl = repl[1:]
	}
	// ------------------------------------------------------------------ A
	w := 0
	for _, v := range out {
		if v.Rune != PLACEMARKER {
			out[w] = v
			w++
		}
	}
	return trimSpace(out[:w])
}

func (x *expansion) placemarker(t xc.Token) xc.Token {
	t.Rune = PLACEMARKER
	t.Val = idPlacemarker
	return t
}

// paste last of left side with first of right side
//
// [1] pg. 3
func (x *expansion) glue(ls, rs []xc.Token) []xc.Token {
	for len(ls) != 0 && ls[len(ls)-1].Rune == ' ' {
		ls = ls[:len(ls)-1]
	}
	for len(rs) != 0 && rs[0].Rune == ' ' {
		rs = rs[1:]
	}
	switch {
	case len(rs) == 0:
		return ls
	case len(ls) == 0:
		return append(ls, rs...)
	}

	l := ls[len(ls)-1]
	ls = ls[:len(ls)-1]
	r := rs[0]
	rs = rs[1:]
	switch {
	case r.Rune == PLACEMARKER:
		return append(append(ls, l), rs...)
	case l.Rune == PLACEMARKER:
		return append(append(ls, r), rs...)
	}

	src := TokSrc(l) + TokSrc(r)
	toks := trimAllSpace(tokenizeString(src))
	if len(toks) != 1 {
		x.err(l, "pasting %q and %q does not give a valid preprocessing token", TokSrc(l), TokSrc(r))
	}
	for i, v := range toks {
		toks[i].Char = lex.NewChar(l.Pos(), v.Rune)
	}
	return append(append(ls, toks...), rs...)
}

// Given a token sequence, stringize returns a single string literal token
// containing the spellings of the tokens. White space between tokens becomes
// a single space, '"' and '\' are escaped.
//
// [1] pg. 3
func (x *expansion) stringize(s []xc.Token, hash xc.Token) xc.Token {
	var b strings.Builder
	b.WriteByte('"')
	space := false
	for _, v := range trimSpace(s) {
		switch v.Rune {
		case ' ', '\n':
			space = true
			continue
		case PLACEMARKER, SENTINEL:
			continue
		}

		if space {
			b.WriteByte(' ')
			space = false
		}
		for _, c := range TokSrc(v) {
			if c == '"' || c == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return newToken(hash.Pos(), STRINGLITERAL, dict.SID(b.String()))
}

// builtin returns the replacement of __FILE__ or __LINE__ invoked by t.
func (x *expansion) builtin(t xc.Token) xc.Token {
	p := x.position(t)
	switch t.Val {
	case idFile:
		fn := p.Filename
		if fn == "" {
			fn = "-"
		}
		return newToken(t.Pos(), STRINGLITERAL, dict.SID(fmt.Sprintf("%q", fn)))
	case idLineMacro:
		return newToken(t.Pos(), PPNUMBER, dict.SID(fmt.Sprint(p.Line)))
	}
	panic(fmt.Errorf("internal error: %q is not a builtin macro", TokSrc(t)))
}
