// Copyright 2017 The C99 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpp

// cond is the state of one level of conditional inclusion.
type cond int

const (
	condZero cond = iota // Outside of any #if.

	condIfOff  // Group skipped so far, a later #elif/#else may turn it on.
	condIfOn   // Group included.
	condIfSkip // An earlier group was included or the enclosing group is off.

	maxCond
)

var (
	condOn = [maxCond]bool{
		condIfOn: true,
		condZero: true,
	}

	condNames = [maxCond]string{
		condZero:   "condZero",
		condIfOff:  "condIfOff",
		condIfOn:   "condIfOn",
		condIfSkip: "condIfSkip",
	}
)

func (c cond) String() string {
	if c >= 0 && c < maxCond {
		return condNames[c]
	}

	return "cond(?)"
}

type conds []cond

func (c conds) on() bool          { return condOn[c.tos()] }
func (c conds) pop() conds        { return c[:len(c)-1] }
func (c conds) push(n cond) conds { return append(c, n) }
func (c conds) tos() cond         { return c[len(c)-1] }
