// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

import (
	"bytes"
	"fmt"
	"go/scanner"
	"io"
	"reflect"
	"runtime/debug"

	"modernc.org/strutil"
	"modernc.org/xc"
)

var (
	bNL    = []byte{'\n'}
	bPanic = []byte("panic")

	dict = xc.Dict

	idAssert      = dict.SID("assert")
	idDefine      = dict.SID("define")
	idDefined     = dict.SID("defined")
	idElif        = dict.SID("elif")
	idElse        = dict.SID("else")
	idEndif       = dict.SID("endif")
	idError       = dict.SID("error")
	idFalse       = dict.SID("false")
	idFile        = dict.SID("__FILE__")
	idIdent       = dict.SID("ident")
	idIf          = dict.SID("if")
	idIfdef       = dict.SID("ifdef")
	idIfndef      = dict.SID("ifndef")
	idImport      = dict.SID("import")
	idInclude     = dict.SID("include")
	idIncludeNext = dict.SID("include_next")
	idLine        = dict.SID("line")
	idLineMacro   = dict.SID("__LINE__")
	idNL          = dict.SID("\n")
	idPlacemarker = dict.SID("<placemarker>")
	idPragma      = dict.SID("pragma")
	idSccs        = dict.SID("sccs")
	idSpace       = dict.SID(" ")
	idTrue        = dict.SID("true")
	idUnassert    = dict.SID("unassert")
	idUndef       = dict.SID("undef")
	idVaArgs      = dict.SID("__VA_ARGS__")
	idWarning     = dict.SID("warning")

	printHooks = strutil.PrettyPrintHooks{
		reflect.TypeOf(xc.Token{}): func(f strutil.Formatter, v interface{}, prefix, suffix string) {
			t := v.(xc.Token)
			if t.Rune == 0 && t.Val == 0 {
				return
			}

			f.Format(prefix)
			f.Format("%q", TokSrc(t))
			f.Format(suffix)
		},
	}
)

// PrettyString returns pretty strings for things produced by this package.
func PrettyString(v interface{}) string {
	return strutil.PrettyString(v, "", "", printHooks)
}

func debugStack() []byte {
	b := debug.Stack()
	b = b[bytes.Index(b, bPanic)+1:]
	b = b[bytes.Index(b, bPanic):]
	b = b[bytes.Index(b, bNL)+1:]
	return b
}

func trimSpace(toks []xc.Token) []xc.Token {
	for len(toks) != 0 && toks[0].Rune == ' ' {
		toks = toks[1:]
	}
	for len(toks) != 0 && toks[len(toks)-1].Rune == ' ' {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// trimAllSpace returns a copy of toks without white space.
func trimAllSpace(toks []xc.Token) []xc.Token {
	var r []xc.Token
	for _, v := range toks {
		switch v.Rune {
		case ' ', '\n':
			// nop
		default:
			r = append(r, v)
		}
	}
	return r
}

// skipSpace returns the index of the first non white space token in toks at
// or after i.
func skipSpace(toks []xc.Token, i int) int {
	for i < len(toks) && toks[i].Rune == ' ' {
		i++
	}
	return i
}

// lastNonSpace returns the index of the last non white space token in toks or
// -1.
func lastNonSpace(toks []xc.Token) int {
	i := len(toks) - 1
	for i >= 0 && toks[i].Rune == ' ' {
		i--
	}
	return i
}

// cook turns an expansion result into plain tokens: painted identifiers are
// identifiers again and bookkeeping tokens are removed.
func cook(toks []xc.Token) []xc.Token {
	r := make([]xc.Token, 0, len(toks))
	for _, t := range toks {
		switch t.Rune {
		case SENTINEL, PLACEMARKER:
			continue
		case NON_REPL:
			t.Rune = IDENTIFIER
		}
		r = append(r, t)
	}
	return r
}

func errString(err error) string {
	var b bytes.Buffer
	printError(&b, "", err)
	return b.String()
}

func printError(w io.Writer, pref string, err error) {
	switch x := err.(type) {
	case scanner.ErrorList:
		x.RemoveMultiples()
		for i, v := range x {
			fmt.Fprintf(w, "%s%v\n", pref, v)
			if i == 50 {
				fmt.Fprintln(w, "too many errors")
				break
			}
		}
	default:
		fmt.Fprintf(w, "%s%v\n", pref, err)
	}
}
