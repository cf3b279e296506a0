// Copyright 2017 The SQLite2Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"go/token"
	"io"
	"os"
	"strings"

	"github.com/arnaudsylvestre/sonar-cxx/internal/cpp"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// config is the preprocessor setup read from a YAML file and amended by
// command line flags.
type config struct {
	Defines         []string `yaml:"defines"` // "NAME body", like the text following #define.
	Undefines       []string `yaml:"undefines"`
	IncludePaths    []string `yaml:"include_paths"`
	SysIncludePaths []string `yaml:"sys_include_paths"`
	CPlusPlus       bool     `yaml:"cplusplus"`
	ExprCacheSize   int      `yaml:"expr_cache_size"`
}

// loadConfig reads the YAML configuration in path. An empty path yields an
// empty configuration.
func loadConfig(path string) (*config, error) {
	c := &config{}
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}

	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parsing configuration %s", path)
	}

	if c.ExprCacheSize < 0 {
		return nil, errors.Errorf("%s: expr_cache_size must not be negative: %d", path, c.ExprCacheSize)
	}

	return c, nil
}

// merge appends the settings given on the command line.
func (c *config) merge(ctx *cli.Context) {
	for _, v := range ctx.StringSlice("define") {
		c.Defines = append(c.Defines, defineFlag(v))
	}
	c.Undefines = append(c.Undefines, ctx.StringSlice("undefine")...)
	c.IncludePaths = append(c.IncludePaths, ctx.StringSlice("include")...)
	if ctx.Bool("cplusplus") {
		c.CPlusPlus = true
	}
}

// defineFlag converts the argument of -D, NAME or NAME=body, to the form of
// a #define body. A bare NAME is defined as 1.
func defineFlag(s string) string {
	nm, body, ok := strings.Cut(s, "=")
	if !ok {
		return nm + " 1"
	}

	return nm + " " + body
}

func (c *config) tweaks() *cpp.Tweaks {
	return &cpp.Tweaks{
		CPlusPlus:       c.CPlusPlus,
		ExprCacheSize:   c.ExprCacheSize,
		IncludePaths:    c.IncludePaths,
		SysIncludePaths: c.SysIncludePaths,
	}
}

// preprocessor returns a *cpp.Preprocessor with the macros of c defined.
func (c *config) preprocessor(log *zap.Logger) (*cpp.Preprocessor, error) {
	p, err := cpp.NewPreprocessor(token.NewFileSet(), c.tweaks(), log)
	if err != nil {
		return nil, err
	}

	for _, v := range c.Defines {
		if err := p.Define(v); err != nil {
			return nil, err
		}
	}
	for _, v := range c.Undefines {
		p.Undef(v)
	}
	return p, nil
}
