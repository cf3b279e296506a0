// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	"modernc.org/xc"
)

// Macro represents a preprocessor Macro.
type Macro struct {
	DefTok          xc.Token   // Macro name definition token.
	Params          []int      // Numeric IDs of parameter identifiers, __VA_ARGS__ for an unnamed ellipsis.
	ReplacementToks []xc.Token // The tokens that replace the macro. R/O

	IsFnLike   bool // Whether the macro is function like.
	IsVariadic bool // Whether the last parameter collects the variable arguments.

	builtin bool // __FILE__ and __LINE__, replaced dynamically.
}

func newMacro(def xc.Token, repl []xc.Token) *Macro {
	return &Macro{DefTok: def, ReplacementToks: append([]xc.Token(nil), trimSpace(repl)...)}
}

// Name returns the name of m.
func (m *Macro) Name() string { return TokSrc(m.DefTok) }

// param returns the index of the parameter t names or -1.
func (m *Macro) param(t xc.Token) int {
	if !m.IsFnLike || t.Rune != IDENTIFIER {
		return -1
	}

	for i, v := range m.Params {
		if v == t.Val {
			return i
		}
	}
	return -1
}

func (m *Macro) isVariadicParam(i int) bool { return m.IsVariadic && i == len(m.Params)-1 }

// arity reports whether n actual arguments fit m.
func (m *Macro) arity(n int, empty bool) bool {
	switch {
	case len(m.Params) == 0:
		return n == 1 && empty
	case m.IsVariadic:
		return n >= len(m.Params)-1
	default:
		return n == len(m.Params)
	}
}

// String returns m as a #define directive.
func (m *Macro) String() string {
	var b bytes.Buffer
	b.WriteString("#define ")
	b.WriteString(m.Name())
	if m.IsFnLike {
		b.WriteByte('(')
		for i, v := range m.Params {
			if i != 0 {
				b.WriteString(", ")
			}
			switch {
			case m.isVariadicParam(i) && v == idVaArgs:
				b.WriteString("...")
			case m.isVariadicParam(i):
				b.Write(dict.S(v))
				b.WriteString("...")
			default:
				b.Write(dict.S(v))
			}
		}
		b.WriteByte(')')
	}
	if len(m.ReplacementToks) != 0 {
		b.WriteByte(' ')
		for _, t := range m.ReplacementToks {
			b.Write(dict.S(t.Val))
		}
	}
	return b.String()
}

// MacroTable maps macro names to their definitions.
type MacroTable struct {
	m map[int]*Macro // name ID: macro
}

// NewMacroTable returns a newly created, empty *MacroTable.
func NewMacroTable() *MacroTable { return &MacroTable{m: map[int]*Macro{}} }

// Define binds m to its name. A previous definition of the same name is
// replaced.
func (t *MacroTable) Define(m *Macro) { t.m[m.DefTok.Val] = m }

// Undef removes the definition of the macro with name ID nm, if any.
func (t *MacroTable) Undef(nm int) { delete(t.m, nm) }

// Lookup returns the macro with name ID nm or nil.
func (t *MacroTable) Lookup(nm int) *Macro { return t.m[nm] }

// LookupString returns the macro named name or nil.
func (t *MacroTable) LookupString(name string) *Macro { return t.m[dict.SID(name)] }

// DefineString parses a definition in the form of the body of a #define
// directive, like "FOO(a, b) a + b", and binds it.
func (t *MacroTable) DefineString(def string) (*Macro, error) {
	m, err := ParseDefine(def)
	if err != nil {
		return nil, err
	}

	t.Define(m)
	return m, nil
}

// UndefString removes the definition of the macro named name, if any.
func (t *MacroTable) UndefString(name string) { t.Undef(dict.SID(name)) }

// Len returns the number of defined macros.
func (t *MacroTable) Len() int { return len(t.m) }

// Names returns the sorted names of all defined macros.
func (t *MacroTable) Names() []string {
	a := make([]string, 0, len(t.m))
	for k := range t.m {
		a = append(a, string(dict.S(k)))
	}
	sort.Strings(a)
	return a
}

// ParseDefine parses def, which has the form of the body of a #define
// directive.
func ParseDefine(def string) (*Macro, error) {
	m, err := defineMacro(tokenizeString(def))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid macro definition %q", def)
	}

	return m, nil
}

// defineMacro parses the tokens following #define.
func defineMacro(line []xc.Token) (*Macro, error) {
	line = trimSpace(line)
	if len(line) == 0 {
		return nil, errors.New("no macro name given")
	}

	t := line[0]
	if t.Rune != IDENTIFIER {
		return nil, errors.Errorf("macro names must be identifiers: %q", TokSrc(t))
	}

	if t.Val == idDefined {
		return nil, errors.New(`"defined" cannot be used as a macro name`)
	}

	line = line[1:]
	if len(line) != 0 && line[0].Rune == '(' {
		return defineFnMacro(t, line[1:])
	}

	return newMacro(t, line), nil
}

func defineFnMacro(nmTok xc.Token, line []xc.Token) (*Macro, error) {
	ident := true
	var params []int
	variadic := false
	for i, v := range line {
		switch v.Rune {
		case IDENTIFIER:
			if !ident || variadic {
				return nil, errors.Errorf("expected parameter name, found %q", TokSrc(v))
			}

			params = append(params, v.Val)
			ident = false
		case DDD:
			if variadic {
				return nil, errors.New("expected ')' after \"...\"")
			}

			if ident {
				params = append(params, idVaArgs)
			}
			variadic = true
			ident = false
		case ',':
			if ident || variadic {
				return nil, errors.New("expected parameter name before ','")
			}

			ident = true
		case ' ':
			// nop
		case ')':
			if ident && len(params) != 0 {
				return nil, errors.New("expected parameter name before ')'")
			}

			m := newMacro(nmTok, line[i+1:])
			m.IsFnLike = true
			m.IsVariadic = variadic
			m.Params = params
			return m, nil
		default:
			return nil, errors.Errorf("%q may not appear in macro parameter list", TokSrc(v))
		}
	}
	return nil, errors.New("missing ')' in macro parameter list")
}
