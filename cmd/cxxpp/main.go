// Copyright 2017 The SQLite2Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cxxpp preprocesses C/C++ sources and evaluates #if expressions.
//
// Usage
//
//	cxxpp expand [-c cfg.yaml] [-D NAME[=body]] [-U NAME] [-I dir] [--serialize] files...
//	cxxpp eval [-c cfg.yaml] [-D NAME[=body]] [-U NAME] expr...
//
// Diagnostics are reported on stderr and do not change the exit status, only
// I/O and configuration errors do.
//
// Configuration
//
// The YAML file named by -c may contain
//
//	defines: ["FOO 1", "MAX(a, b) ((a) > (b) ? (a) : (b))"]
//	undefines: [BAR]
//	include_paths: ["@", include]
//	sys_include_paths: [/usr/include]
//	cplusplus: true
//	expr_cache_size: 1024
//
// Flags are applied after the configuration file.
package main

import (
	"fmt"
	"go/scanner"
	"os"

	"github.com/arnaudsylvestre/sonar-cxx/internal/cpp"
	"github.com/arnaudsylvestre/sonar-cxx/internal/emit"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp(nil).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cxxpp struct {
	log *zap.Logger
}

// newApp returns the command line application. If log is nil, a logger is
// created according to the --verbose flag.
func newApp(log *zap.Logger) *cli.App {
	m := &cxxpp{log: log}
	return &cli.App{
		Name:  "cxxpp",
		Usage: "C/C++ preprocessor front end",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log preprocessing decisions",
			},
		},
		Before: m.before,
		After:  m.after,
		Commands: []*cli.Command{
			{
				Name:      "expand",
				Usage:     "Preprocess files and print the result",
				ArgsUsage: "files...",
				Flags: append(commonFlags(),
					&cli.StringSliceFlag{
						Name:    "include",
						Aliases: []string{"I"},
						Usage:   "Add `dir` to the search path of quoted includes",
					},
					&cli.BoolFlag{
						Name:  "serialize",
						Usage: "Print each file as a single line of space separated tokens",
					},
				),
				Action: m.expand,
			},
			{
				Name:      "eval",
				Usage:     "Evaluate #if constant expressions",
				ArgsUsage: "expr...",
				Flags:     commonFlags(),
				Action:    m.eval,
			},
		},
		DisableSliceFlagSeparator: true,
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Load configuration from `file`",
		},
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "Define macro `NAME[=body]`, body defaults to 1",
		},
		&cli.StringSliceFlag{
			Name:    "undefine",
			Aliases: []string{"U"},
			Usage:   "Undefine macro `NAME`",
		},
		&cli.BoolFlag{
			Name:  "cplusplus",
			Usage: "Predefine __cplusplus",
		},
	}
}

func (m *cxxpp) before(c *cli.Context) (err error) {
	if m.log != nil {
		return nil
	}

	switch {
	case c.Bool("verbose"):
		m.log, err = zap.NewDevelopment()
	default:
		m.log, err = zap.NewProduction()
	}
	return errors.Wrap(err, "creating logger")
}

func (m *cxxpp) after(c *cli.Context) error {
	if m.log != nil {
		m.log.Sync() // Syncing stderr fails on some systems.
	}
	return nil
}

func (m *cxxpp) preprocessor(c *cli.Context) (*cpp.Preprocessor, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	cfg.merge(c)
	return cfg.preprocessor(m.log)
}

// expand preprocesses every file as a separate translation unit.
func (m *cxxpp) expand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("expand: no input files")
	}

	for _, fn := range c.Args().Slice() {
		p, err := m.preprocessor(c)
		if err != nil {
			return err
		}

		toks, err := p.Preprocess(cpp.NewFileSource(fn))
		if err != nil {
			if _, ok := err.(scanner.ErrorList); !ok {
				return err
			}

			scanner.PrintError(c.App.ErrWriter, err)
		}

		if c.Bool("serialize") {
			fmt.Fprintln(c.App.Writer, emit.Serialize(toks))
			continue
		}

		if err := emit.Text(c.App.Writer, toks); err != nil {
			return errors.Wrap(err, fn)
		}
	}
	return nil
}

// eval prints the value of each expression argument.
func (m *cxxpp) eval(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("eval: no expressions")
	}

	p, err := m.preprocessor(c)
	if err != nil {
		return err
	}

	for _, expr := range c.Args().Slice() {
		v, err := p.Evaluator().EvalToInt(expr)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", expr, err)
			continue
		}

		fmt.Fprintf(c.App.Writer, "%s => %v (%v)\n", expr, v, v.Sign() != 0)
	}
	return nil
}
