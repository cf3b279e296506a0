// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

// [0]: http://www.open-std.org/jtc1/sc22/wg14/www/docs/n1256.pdf

import (
	"bytes"
	"go/token"
	"unicode"
	"unicode/utf8"

	"modernc.org/golex/lex"
	"modernc.org/xc"
)

// Token kinds. ASCII punctuators and stray characters are represented by
// their own rune, everything else by one of the values below. The values are
// above the Unicode range so they never collide with a stray rune.
const (
	IDENTIFIER = iota + 0x110000
	PPNUMBER
	CHARCONST
	LONGCHARCONST // L'x', u'x', U'x', u8'x'
	STRINGLITERAL
	LONGSTRINGLITERAL // L"x", u"x", U"x", u8"x", R"d(x)d"

	ADDASSIGN // +=
	ANDAND    // &&
	ANDASSIGN // &=
	ARROW     // ->
	ARROWSTAR // ->*
	DDD       // ...
	DEC       // --
	DIVASSIGN // /=
	DOTSTAR   // .*
	EQ        // ==
	GEQ       // >=
	INC       // ++
	LEQ       // <=
	LSH       // <<
	LSHASSIGN // <<=
	MODASSIGN // %=
	MULASSIGN // *=
	NEQ       // !=
	ORASSIGN  // |=
	OROR      // ||
	PPPASTE   // ##
	RSH       // >>
	RSHASSIGN // >>=
	SCOPE     // ::
	SUBASSIGN // -=
	XORASSIGN // ^=

	// Never produced by the scanner.
	DIRECTIVE   // '#' starting a line of a source file.
	NON_REPL    // Identifier painted blue, not eligible for replacement.
	PLACEMARKER // Empty macro argument operand of ##.
	SENTINEL    // End of the expansion of macro Val.
)

var (
	punct3 = map[string]rune{
		"->*": ARROWSTAR,
		"...": DDD,
		"<<=": LSHASSIGN,
		">>=": RSHASSIGN,
	}

	punct2 = map[string]rune{
		"!=": NEQ,
		"##": PPPASTE,
		"%=": MODASSIGN,
		"&&": ANDAND,
		"&=": ANDASSIGN,
		"*=": MULASSIGN,
		"++": INC,
		"+=": ADDASSIGN,
		"--": DEC,
		"-=": SUBASSIGN,
		"->": ARROW,
		".*": DOTSTAR,
		"/=": DIVASSIGN,
		"::": SCOPE,
		"<<": LSH,
		"<=": LEQ,
		"==": EQ,
		">=": GEQ,
		">>": RSH,
		"^=": XORASSIGN,
		"|=": ORASSIGN,
		"||": OROR,
	}
)

// TokSrc returns the spelling of t.
func TokSrc(t xc.Token) string { return string(dict.S(t.Val)) }

func newToken(pos token.Pos, r rune, val int) xc.Token {
	return xc.Token{Char: lex.NewChar(pos, r), Val: val}
}

type ungetBuffer []xc.Token

func (u *ungetBuffer) unget(t xc.Token) { *u = append(*u, t) }

func (u *ungetBuffer) read() (t xc.Token) {
	s := *u
	n := len(s) - 1
	t = s[n]
	*u = s[:n]
	return t
}

func (u *ungetBuffer) ungets(toks ...xc.Token) {
	s := *u
	for i := len(toks) - 1; i >= 0; i-- {
		s = append(s, toks[i])
	}
	*u = s
}

// ppScanner splits source text into preprocessing tokens. Runs of white space
// and comments become a single ' ' token, line ends become '\n' tokens.
// Unterminated literals end at the line end, which keeps skipped #if 0
// regions with apostrophes in prose harmless.
type ppScanner struct {
	file *token.File
	offs []int // Spliced source offset -> file offset, nil if nothing was spliced.
	src  []byte
	toks []xc.Token
}

// tokenize scans src. file may be nil, in which case all tokens have
// token.NoPos.
func tokenize(file *token.File, src []byte) []xc.Token {
	s := &ppScanner{file: file}
	s.src, s.offs = splice(src)
	s.scan()
	return s.toks
}

func tokenizeString(s string) []xc.Token { return tokenize(nil, []byte(s)) }

// splice removes backslash-newline sequences, [0]5.1.1.2-1.2.
func splice(src []byte) ([]byte, []int) {
	if bytes.IndexByte(src, '\\') < 0 {
		return src, nil
	}

	out := make([]byte, 0, len(src))
	offs := make([]int, 0, len(src)+1)
	for i := 0; i < len(src); i++ {
		if src[i] == '\\' {
			switch {
			case i+1 < len(src) && src[i+1] == '\n':
				i++
				continue
			case i+2 < len(src) && src[i+1] == '\r' && src[i+2] == '\n':
				i += 2
				continue
			}
		}
		out = append(out, src[i])
		offs = append(offs, i)
	}
	return out, append(offs, len(src))
}

func (s *ppScanner) pos(off int) token.Pos {
	if s.file == nil {
		return token.NoPos
	}

	if s.offs != nil {
		off = s.offs[off]
	}
	return s.file.Pos(off)
}

func (s *ppScanner) emit(r rune, start, end int) {
	s.toks = append(s.toks, newToken(s.pos(start), r, dict.ID(s.src[start:end])))
}

func (s *ppScanner) scan() {
	src := s.src
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			s.toks = append(s.toks, newToken(s.pos(i), '\n', idNL))
			i++
		case isSpace(c) || c == '/' && i+1 < len(src) && (src[i+1] == '/' || src[i+1] == '*'):
			s.toks = append(s.toks, newToken(s.pos(i), ' ', idSpace))
			i = s.space(i)
		case isDigit(c) || c == '.' && i+1 < len(src) && isDigit(src[i+1]):
			j := s.ppNumber(i)
			s.emit(PPNUMBER, i, j)
			i = j
		case c == '\'':
			j := s.quoted(i, '\'')
			s.emit(CHARCONST, i, j)
			i = j
		case c == '"':
			j := s.quoted(i, '"')
			s.emit(STRINGLITERAL, i, j)
			i = j
		case s.isIdentStart(i):
			if r, j := s.prefixedLiteral(i); j > i {
				s.emit(r, i, j)
				i = j
				break
			}

			j := s.ident(i)
			s.emit(IDENTIFIER, i, j)
			i = j
		default:
			r, n := s.punct(i)
			s.emit(r, i, i+n)
			i += n
		}
	}
}

func (s *ppScanner) space(i int) int {
	src := s.src
	for i < len(src) {
		switch c := src[i]; {
		case isSpace(c):
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := bytes.Index(src[i+2:], []byte("*/"))
			if j < 0 {
				return len(src)
			}

			i += j + 4
		default:
			return i
		}
	}
	return i
}

// [0]6.4.8
func (s *ppScanner) ppNumber(i int) int {
	src := s.src
	j := i + 1
	for j < len(src) {
		c := src[j]
		switch {
		case isAlnum(c) || c == '_' || c == '.':
			j++
		case (c == '+' || c == '-') && strchr("eEpP", src[j-1]):
			j++
		case c == '\'' && j+1 < len(src) && isAlnum(src[j+1]): // C++14 digit separator
			j += 2
		default:
			return j
		}
	}
	return j
}

func (s *ppScanner) quoted(i int, q byte) int {
	src := s.src
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if j+1 < len(src) && src[j+1] != '\n' {
				j++
			}
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(src)
}

// prefixedLiteral recognizes encoding prefixed and raw literals. It returns
// j == i if there is none at i.
func (s *ppScanner) prefixedLiteral(i int) (rune, int) {
	src := s.src
	j := i
	switch {
	case bytes.HasPrefix(src[j:], []byte("u8")):
		j += 2
	case src[j] == 'u' || src[j] == 'U' || src[j] == 'L':
		j++
	}
	raw := false
	if j < len(src) && src[j] == 'R' {
		raw = true
		j++
	}
	if j >= len(src) || j == i {
		return 0, i
	}

	switch src[j] {
	case '"':
		if raw {
			if k := s.rawString(j); k > j {
				return LONGSTRINGLITERAL, k
			}
		}

		if raw && j == i+1 { // R"x" with a malformed delimiter, R is an identifier.
			return 0, i
		}

		return LONGSTRINGLITERAL, s.quoted(j, '"')
	case '\'':
		if raw {
			return 0, i
		}

		return LONGCHARCONST, s.quoted(j, '\'')
	}
	return 0, i
}

// rawString scans a C++11 raw string literal, src[j] == '"'. It returns j if
// the delimiter is malformed.
func (s *ppScanner) rawString(j int) int {
	src := s.src
	k := j + 1
	for ; k < len(src) && src[k] != '('; k++ {
		switch src[k] {
		case ' ', ')', '\\', '\t', '\v', '\f', '\n', '"':
			return j
		}
	}
	if k >= len(src) || k-j-1 > 16 {
		return j
	}

	term := append(append([]byte{')'}, src[j+1:k]...), '"')
	n := bytes.Index(src[k+1:], term)
	if n < 0 {
		return len(src)
	}

	return k + 1 + n + len(term)
}

func (s *ppScanner) isIdentStart(i int) bool {
	c := s.src[i]
	if c < utf8.RuneSelf {
		return isAlpha(c) || c == '_' || c == '$'
	}

	r, _ := utf8.DecodeRune(s.src[i:])
	return unicode.IsLetter(r)
}

func (s *ppScanner) ident(i int) int {
	src := s.src
	j := i
	for j < len(src) {
		c := src[j]
		if c < utf8.RuneSelf {
			if !isAlnum(c) && c != '_' && c != '$' {
				return j
			}

			j++
			continue
		}

		r, n := utf8.DecodeRune(src[j:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return j
		}

		j += n
	}
	return j
}

func (s *ppScanner) punct(i int) (rune, int) {
	src := s.src
	if i+3 <= len(src) {
		if r, ok := punct3[string(src[i:i+3])]; ok {
			return r, 3
		}
	}
	if i+2 <= len(src) {
		if r, ok := punct2[string(src[i:i+2])]; ok {
			return r, 2
		}
	}
	if c := src[i]; c < utf8.RuneSelf {
		return rune(c), 1
	}

	return utf8.DecodeRune(src[i:])
}

func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }
func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v' }

func strchr(s string, c byte) bool { return bytes.IndexByte([]byte(s), c) >= 0 }
