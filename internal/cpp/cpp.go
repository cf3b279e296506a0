// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpp is the preprocessor core of a C/C++ static analyzer: a macro
// table, a Prosser style macro expander and an evaluator of #if constant
// expressions over arbitrary precision integers.
//
// The expander rescans replacement lists using per expansion hide sets, so
// self referential and mutually recursive macros terminate. The evaluator
// resolves identifiers through the expander and never fails on malformed
// input, it degrades to a logged diagnostic and a neutral value instead.
//
//  [0]: http://www.open-std.org/jtc1/sc22/wg14/www/docs/n1256.pdf
//  [1]: https://www.spinellis.gr/blog/20060626/cpp.algo.pdf
package cpp

import (
	"bufio"
	"fmt"
	"go/scanner"
	"go/token"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*StringSource)(nil)
)

// DefaultExprCacheSize is the number of parsed #if expressions an Evaluator
// keeps when Tweaks.ExprCacheSize is zero.
const DefaultExprCacheSize = 1024

// DefaultMaxIncludeLevel bounds nested #include depth when
// Tweaks.MaxIncludeLevel is zero.
const DefaultMaxIncludeLevel = 200

// Tweaks amend the behavior of the preprocessor.
type Tweaks struct {
	CPlusPlus       bool     // Predefine __cplusplus.
	ExprCacheSize   int      // Parsed expression cache capacity, 0 means DefaultExprCacheSize.
	IncludePaths    []string // Search path for "foo.h". "@" is the directory of the including file.
	MaxIncludeLevel int      // 0 means DefaultMaxIncludeLevel.
	SysIncludePaths []string // Search path for <foo.h>.
}

func (t *Tweaks) exprCacheSize() int {
	if t == nil || t.ExprCacheSize <= 0 {
		return DefaultExprCacheSize
	}

	return t.ExprCacheSize
}

func (t *Tweaks) maxIncludeLevel() int {
	if t == nil || t.MaxIncludeLevel <= 0 {
		return DefaultMaxIncludeLevel
	}

	return t.MaxIncludeLevel
}

// Node is anything having a position, including xc.Token.
type Node interface {
	Pos() token.Pos
}

// Preprocessing context shared by the macro table users of a single
// translation unit.
type context struct {
	errors scanner.ErrorList
	fset   *token.FileSet
	log    *zap.Logger
	tweaks *Tweaks
}

func newContext(fset *token.FileSet, t *Tweaks, log *zap.Logger) *context {
	if fset == nil {
		fset = token.NewFileSet()
	}
	if t == nil {
		t = &Tweaks{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &context{
		fset:   fset,
		log:    log,
		tweaks: t,
	}
}

func (c *context) err(n Node, msg string, args ...interface{}) { c.errPos(n.Pos(), msg, args...) }
func (c *context) position(n Node) token.Position              { return c.fset.PositionFor(n.Pos(), true) }

// errPos records a diagnostic. Diagnostics never abort processing.
func (c *context) errPos(pos token.Pos, msg string, args ...interface{}) {
	p := c.fset.PositionFor(pos, true)
	s := fmt.Sprintf(msg, args...)
	c.errors.Add(p, s)
	c.log.Warn(s, zap.Stringer("pos", p))
}

func (c *context) error() error {
	if len(c.errors) == 0 {
		return nil
	}

	c.errors.Sort()
	err := append(scanner.ErrorList(nil), c.errors...)
	return err
}

// Source is a translation unit or header handed to Preprocess.
type Source interface {
	Name() string                       // File name used in diagnostics, __FILE__ and include resolution.
	ReadCloser() (io.ReadCloser, error) // Opens the text.
	Size() (int64, error)               // Text length in bytes.
}

// FileSource is a Source backed by a file on disk.
type FileSource struct {
	*bufio.Reader
	f    *os.File
	path string
}

// NewFileSource returns a Source for the file at name.
func NewFileSource(name string) *FileSource { return &FileSource{path: name} }

// Close implements io.ReadCloser.
func (s *FileSource) Close() error { return s.f.Close() }

// Name implements Source.
func (s *FileSource) Name() string { return s.path }

// ReadCloser implements Source.
func (s *FileSource) ReadCloser() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}

	s.f = f
	s.Reader = bufio.NewReader(f)
	return s, nil
}

// Size implements Source.
func (s *FileSource) Size() (int64, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

// StringSource is a Source backed by an in-memory string.
type StringSource struct {
	*strings.Reader
	name string
	src  string
}

// NewStringSource returns a Source with text src reported as file name.
func NewStringSource(name, src string) *StringSource { return &StringSource{name: name, src: src} }

// Close implements io.ReadCloser.
func (s *StringSource) Close() error { return nil }

// Name implements Source.
func (s *StringSource) Name() string { return s.name }

// Size implements Source.
func (s *StringSource) Size() (int64, error) { return int64(len(s.src)), nil }

// ReadCloser implements Source.
func (s *StringSource) ReadCloser() (io.ReadCloser, error) {
	s.Reader = strings.NewReader(s.src)
	return s, nil
}
