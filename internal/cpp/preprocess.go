// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"modernc.org/golex/lex"
	"modernc.org/mathutil"
	"modernc.org/xc"
)

var _ directiveHandler = (*Preprocessor)(nil)

// Preprocessor runs the directives of C/C++ sources and expands their text
// lines. Directives update the macro table shared with its Expander and
// Evaluator.
type Preprocessor struct {
	*context
	cs           conds
	evaluator    *Evaluator
	expander     *Expander
	ifs          []xc.Token // Open #if directives.
	includeLevel int
	macros       *MacroTable
}

// NewPreprocessor returns a newly created *Preprocessor using fset to record
// positions. tweaks and log may be nil.
func NewPreprocessor(fset *token.FileSet, tweaks *Tweaks, log *zap.Logger) (*Preprocessor, error) {
	ctx := newContext(fset, tweaks, log)
	macros := NewMacroTable()
	x := newExpander(ctx, macros)
	ev, err := NewEvaluator(x, ctx.tweaks.exprCacheSize())
	if err != nil {
		return nil, err
	}

	p := &Preprocessor{
		context:   ctx,
		evaluator: ev,
		expander:  x,
		macros:    macros,
	}
	p.predefine(time.Now())
	return p, nil
}

func (p *Preprocessor) predefine(now time.Time) {
	defs := []string{
		"__STDC__ 1",
		fmt.Sprintf("__DATE__ %q", now.Format("Jan _2 2006")),
		fmt.Sprintf("__TIME__ %q", now.Format("15:04:05")),
	}
	if p.tweaks.CPlusPlus {
		defs = append(defs, "__cplusplus 201103L")
	}
	for _, v := range defs {
		if _, err := p.macros.DefineString(v); err != nil {
			panic(err)
		}
	}
	for _, nm := range []int{idFile, idLineMacro} {
		p.macros.Define(&Macro{DefTok: newToken(token.NoPos, IDENTIFIER, nm), builtin: true})
	}
}

// Define adds a macro definition in the form of the body of a #define
// directive, like "FOO 42" or "MAX(a, b) ((a) > (b) ? (a) : (b))".
func (p *Preprocessor) Define(def string) error {
	m, err := p.macros.DefineString(def)
	if err != nil {
		return err
	}

	p.log.Debug("#define", zap.String("macro", m.Name()))
	return nil
}

// Undef removes the macro named name, if any.
func (p *Preprocessor) Undef(name string) { p.macros.UndefString(name) }

// Macros returns the macro table of p.
func (p *Preprocessor) Macros() *MacroTable { return p.macros }

// Expander returns the expander used by p.
func (p *Preprocessor) Expander() *Expander { return p.expander }

// Evaluator returns the evaluator of #if expressions used by p.
func (p *Preprocessor) Evaluator() *Evaluator { return p.evaluator }

// Errors returns the diagnostics collected so far or nil.
func (p *Preprocessor) Errors() error { return p.error() }

// Preprocess returns the expanded tokens of src. Directive lines and skipped
// lines are replaced by their line ends. Macro definitions persist across
// sources and calls. The returned error, if any, lists the diagnostics; the
// tokens are valid even then.
func (p *Preprocessor) Preprocess(src ...Source) (toks []xc.Token, err error) {
	returned := false

	defer func() {
		if e := recover(); !returned && err == nil {
			toks = nil
			err = fmt.Errorf("PANIC: %v\n%s", e, debugStack())
		}
	}()

	var w tokenBuffer
	for _, v := range src {
		in, err := p.tokenize(v)
		if err != nil {
			returned = true
			return nil, err
		}

		p.file(in, &w)
	}
	returned = true
	return cook(w.toks), p.error()
}

func (p *Preprocessor) tokenize(src Source) ([]xc.Token, error) {
	sz, err := src.Size()
	if err != nil {
		return nil, errors.Wrap(err, src.Name())
	}

	if sz > mathutil.MaxInt {
		return nil, errors.Errorf("%v: file too big: %v", src.Name(), sz)
	}

	r, err := src.ReadCloser()
	if err != nil {
		return nil, errors.Wrap(err, src.Name())
	}

	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, src.Name())
	}

	f := p.fset.AddFile(src.Name(), -1, len(b))
	f.SetLinesForContent(b)
	return tokenize(f, b), nil
}

// file preprocesses the tokens of one file with its own conditional
// inclusion stack.
func (p *Preprocessor) file(toks []xc.Token, w tokenWriter) {
	cs, ifs := p.cs, p.ifs
	p.cs, p.ifs = conds(nil).push(condZero), nil
	p.expander.newExpansion().expand(newTokenBuffer(toks, true), w, p)
	for _, v := range p.ifs {
		p.err(v, "unterminated #%s", TokSrc(v))
	}
	p.cs, p.ifs = cs, ifs
}

func (p *Preprocessor) on() bool { return p.cs.on() }

func (p *Preprocessor) push(t xc.Token, c cond) {
	p.cs = p.cs.push(c)
	p.ifs = append(p.ifs, t)
}

func (p *Preprocessor) directive(x *expansion, r tokenReader, w tokenWriter) {
	line := p.line(r)
	if len(line) == 0 { // [0]6.10.7
		return
	}

	t := line[0]
	switch t.Rune {
	case IDENTIFIER:
		// ok
	case PPNUMBER: // # 42 "foo.c", line marker
		return
	default:
		if p.cs.on() {
			p.err(t, "invalid preprocessing directive")
		}
		return
	}

	on := p.cs.on()
	switch t.Val {
	case idDefine:
		if on {
			p.define(t, line[1:])
		}
	case idUndef:
		if on {
			p.undef(t, line[1:])
		}
	case idIf:
		switch {
		case !on:
			p.push(t, condIfSkip)
		case p.expr(t, line[1:]):
			p.push(t, condIfOn)
		default:
			p.push(t, condIfOff)
		}
	case idIfdef, idIfndef:
		if !on {
			p.push(t, condIfSkip)
			break
		}

		nm, ok := p.macroName(t, line[1:])
		defined := ok && p.macros.Lookup(nm) != nil
		if defined == (t.Val == idIfdef) {
			p.push(t, condIfOn)
			break
		}

		p.push(t, condIfOff)
	case idElif:
		switch p.cs.tos() {
		case condIfOff:
			if p.expr(t, line[1:]) {
				p.cs[len(p.cs)-1] = condIfOn
			}
		case condIfOn:
			p.cs[len(p.cs)-1] = condIfSkip
		case condIfSkip:
			// nop
		default:
			p.err(t, "#elif without #if")
		}
	case idElse:
		switch p.cs.tos() {
		case condIfOff:
			p.cs[len(p.cs)-1] = condIfOn
		case condIfOn:
			p.cs[len(p.cs)-1] = condIfSkip
		case condIfSkip:
			// nop
		default:
			p.err(t, "#else without #if")
		}
	case idEndif:
		switch p.cs.tos() {
		case condIfOn, condIfOff, condIfSkip:
			p.cs = p.cs.pop()
			p.ifs = p.ifs[:len(p.ifs)-1]
		default:
			p.err(t, "#endif without #if")
		}
	case idInclude, idIncludeNext, idImport:
		if on {
			p.include(t, line[1:], w)
		}
	case idError:
		if on {
			msg := fmt.Sprintf("#error %s", toksSrc(trimSpace(line[1:])))
			p.errors.Add(p.position(t), msg)
			p.log.Error(msg, zap.Stringer("pos", p.position(t)))
		}
	case idWarning:
		if on {
			p.log.Warn(fmt.Sprintf("#warning %s", toksSrc(trimSpace(line[1:]))), zap.Stringer("pos", p.position(t)))
		}
	case idPragma, idLine, idIdent, idSccs, idAssert, idUnassert:
		// nop
	default:
		if on {
			p.err(t, "invalid preprocessing directive #%s", TokSrc(t))
		}
	}
}

func (p *Preprocessor) line(r tokenReader) []xc.Token {
	var toks []xc.Token
	for {
		switch t := r.read(); t.Rune {
		case '\n', lex.RuneEOF:
			return trimSpace(toks)
		default:
			toks = append(toks, t)
		}
	}
}

func (p *Preprocessor) define(t xc.Token, line []xc.Token) {
	m, err := defineMacro(line)
	if err != nil {
		p.err(t, "%v", err)
		return
	}

	nm := m.DefTok.Val
	if ex := p.macros.Lookup(nm); ex != nil && ex.String() != m.String() {
		p.log.Debug("macro redefined", zap.String("macro", m.Name()), zap.Stringer("pos", p.position(m.DefTok)))
	}
	p.macros.Define(m)
	if ce := p.log.Check(zap.DebugLevel, "#define"); ce != nil {
		ce.Write(zap.String("macro", m.String()), zap.Stringer("pos", p.position(m.DefTok)))
	}
}

func (p *Preprocessor) undef(t xc.Token, line []xc.Token) {
	nm, ok := p.macroName(t, line)
	if !ok {
		return
	}

	p.macros.Undef(nm)
	p.log.Debug("#undef", zap.String("macro", string(dict.S(nm))), zap.Stringer("pos", p.position(t)))
}

// macroName returns the single identifier of #ifdef, #ifndef and #undef.
func (p *Preprocessor) macroName(t xc.Token, line []xc.Token) (int, bool) {
	line = trimAllSpace(line)
	switch {
	case len(line) == 0:
		p.err(t, "no macro name given in #%s directive", TokSrc(t))
		return 0, false
	case line[0].Rune != IDENTIFIER:
		p.err(line[0], "macro names must be identifiers")
		return 0, false
	case len(line) > 1:
		p.err(line[1], "extra tokens at end of #%s directive", TokSrc(t))
	}
	return line[0].Val, true
}

// expr evaluates the controlling expression of #if or #elif.
func (p *Preprocessor) expr(t xc.Token, line []xc.Token) bool {
	line = trimSpace(line)
	n, err := parseExpr(line)
	if err != nil {
		p.err(t, "invalid #%s expression %q: %v", TokSrc(t), toksSrc(line), err)
		return false
	}

	v, err := p.evaluator.EvaluateExpr(n)
	if err != nil {
		p.err(t, "%v", err)
		return false
	}

	if ce := p.log.Check(zap.DebugLevel, "conditional"); ce != nil {
		ce.Write(zap.String("expr", ExprString(n)), zap.Bool("value", v), zap.Stringer("pos", p.position(t)))
	}
	return v
}

func (p *Preprocessor) include(t xc.Token, line []xc.Token, w tokenWriter) {
	line = trimSpace(line)
	if len(line) == 0 {
		p.err(t, "#%s expects \"FILENAME\" or <FILENAME>", TokSrc(t))
		return
	}

	nm, sys, ok := headerName(line)
	if !ok {
		if nm, sys, ok = headerName(trimSpace(p.expander.Expand(line))); !ok {
			p.err(t, "#%s expects \"FILENAME\" or <FILENAME>", TokSrc(t))
			return
		}
	}

	if p.includeLevel >= p.tweaks.maxIncludeLevel() {
		p.err(t, "#include nested too deeply")
		return
	}

	paths := p.tweaks.SysIncludePaths
	if !sys {
		quoted := p.tweaks.IncludePaths
		if len(quoted) == 0 {
			quoted = []string{"@"}
		}
		paths = append(append([]string(nil), quoted...), paths...)
	}
	path := p.findInclude(t, nm, paths)
	if path == "" {
		p.log.Warn("include file not found", zap.String("name", nm), zap.Stringer("pos", p.position(t)))
		return
	}

	toks, err := p.tokenize(NewFileSource(path))
	if err != nil {
		p.err(t, "%v", err)
		return
	}

	p.log.Debug("#include", zap.String("path", path), zap.Stringer("pos", p.position(t)))
	p.includeLevel++

	defer func() { p.includeLevel-- }()

	p.file(toks, w)
}

func (p *Preprocessor) findInclude(t xc.Token, nm string, paths []string) string {
	if filepath.IsAbs(nm) {
		if fi, err := os.Stat(nm); err == nil && !fi.IsDir() {
			return nm
		}

		return ""
	}

	dir := filepath.Dir(p.position(t).Filename)
	if t.Val == idIncludeNext {
		for i, v := range paths {
			if v == "@" {
				v = dir
			}
			if filepath.Clean(v) == dir {
				paths = paths[i+1:]
				break
			}
		}
	}
	for _, v := range paths {
		if v == "@" {
			v = dir
		}

		path := filepath.Join(v, nm)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path
		}
	}
	return ""
}

// headerName returns the file name of "foo.h" or <foo.h> in line.
func headerName(line []xc.Token) (nm string, sys, ok bool) {
	if len(line) == 0 {
		return "", false, false
	}

	switch t := line[0]; t.Rune {
	case STRINGLITERAL:
		s := TokSrc(t)
		if len(s) < 2 || s[len(s)-1] != '"' {
			return "", false, false
		}

		return s[1 : len(s)-1], false, true
	case '<':
		var b strings.Builder
		for _, v := range line[1:] {
			if v.Rune == '>' {
				return b.String(), true, b.Len() != 0
			}

			b.Write(dict.S(v.Val))
		}
	}
	return "", false, false
}

func toksSrc(toks []xc.Token) string {
	var b strings.Builder
	for _, v := range toks {
		b.Write(dict.S(v.Val))
	}
	return b.String()
}
