// Copyright 2017 The SQLite2Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cxx is the preprocessing front end of a C/C++ static analyzer.
//
// Packages
//
// internal/cpp holds the macro table, the macro expander, the #if constant
// expression parser and evaluator and the directive driver. internal/emit
// renders token streams as text.
//
// Command cxxpp
//
// To install or update
//
//     $ go get [-u] github.com/arnaudsylvestre/sonar-cxx/cmd/cxxpp
//
// Run cxxpp help for usage.
package cxx
