// Copyright 2017 The CCGO Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emit renders preprocessed token streams as text.
//
// Serialize produces the canonical single line form used for comparing
// expansions and for handing macro values back to the expression parser.
// Text keeps the line structure of the input and separates tokens only where
// their spellings would otherwise run together.
package emit

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"modernc.org/xc"
)

var (
	dict = xc.Dict

	// Adjacent punctuator bytes that would lex as a different token.
	pastes = map[[2]byte]bool{}
)

func init() {
	for _, v := range []string{
		"!=", "##", "%=", "&&", "&=", "*=", "++", "+=", "--", "-=", "->",
		".*", "..", "/*", "//", "/=", "::", "<<", "<=", "==", ">=", ">>",
		"^=", "|=", "||",
	} {
		pastes[[2]byte{v[0], v[1]}] = true
	}
}

// Serialize returns the spellings of the tokens in toks separated by a
// single space. White space tokens are skipped.
func Serialize(toks []xc.Token) string {
	var b strings.Builder
	for _, t := range toks {
		switch t.Rune {
		case ' ', '\n':
			continue
		}

		s := dict.S(t.Val)
		if len(s) == 0 {
			continue
		}

		if b.Len() != 0 {
			b.WriteByte(' ')
		}
		b.Write(s)
	}
	return b.String()
}

// String returns the text form of toks.
func String(toks []xc.Token) string {
	var b bytes.Buffer
	Text(&b, toks) // bytes.Buffer writes do not fail.
	return b.String()
}

// Text writes the text form of toks to w.
func Text(w io.Writer, toks []xc.Token) error {
	g := newGen(w)
	for _, t := range toks {
		g.token(t)
	}
	return g.out.Flush()
}

type gen struct {
	last    byte // Last byte written, 0 at the start of output.
	lastNum bool // The last token written is a preprocessing number.
	out     *bufio.Writer
}

func newGen(w io.Writer) *gen { return &gen{out: bufio.NewWriter(w)} }

func (g *gen) token(t xc.Token) {
	switch t.Rune {
	case ' ':
		if g.last != 0 && g.last != ' ' && g.last != '\n' {
			g.w(" ")
		}
		return
	case '\n':
		g.w("\n")
		return
	}

	s := dict.S(t.Val)
	if len(s) == 0 {
		return
	}

	if g.last != 0 && (paste(g.last, s[0]) || g.lastNum && numPaste(s[0])) {
		g.w(" ")
	}
	g.out.Write(s)
	g.last = s[len(s)-1]
	g.lastNum = isNumber(s)
}

func (g *gen) w(s string) {
	g.out.WriteString(s)
	g.last = s[len(s)-1]
	g.lastNum = false
}

// paste reports whether a token ending in a followed by a token starting with
// b would be scanned differently without separating white space.
func paste(a, b byte) bool {
	switch {
	case isWord(a) && (isWord(b) || b == '"' || b == '\''):
		// L "x" is not L"x", u8 'c' is not u8'c'.
		return true
	case a == '.' && isDigit(b):
		return true
	}

	return pastes[[2]byte{a, b}]
}

// numPaste reports whether a token starting with b would extend a preceding
// preprocessing number, like 1 .5, 1e +5 or 0x1p -2.
func numPaste(b byte) bool { return b == '.' || b == '+' || b == '-' || isWord(b) }

func isNumber(s []byte) bool {
	return isDigit(s[0]) || len(s) > 1 && s[0] == '.' && isDigit(s[1])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWord(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '$' || c >= 0x80
}
