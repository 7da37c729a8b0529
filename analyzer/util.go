// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/jcd2/privlower/caps"
	"github.com/jcd2/privlower/ir"
)

// functionEntry and blockEntry are table entries with display names, used to
// make output deterministic.
type functionEntry struct {
	name string
	fn   ir.Function
	set  caps.Set
}

type blockEntry struct {
	name  string
	block ir.Block
	set   caps.Set
}

func (r *Result) sortedFunctions() []functionEntry {
	es := make([]functionEntry, 0, len(r.functions))
	for fn, s := range r.functions {
		es = append(es, functionEntry{fn.String(), fn, s})
	}
	slices.SortFunc(es, func(a, b functionEntry) int {
		return strings.Compare(a.name, b.name)
	})
	return es
}

func (r *Result) sortedBlocks() []blockEntry {
	es := make([]blockEntry, 0, len(r.blocks))
	for b, s := range r.blocks {
		es = append(es, blockEntry{r.BlockName(b), b, s})
	}
	slices.SortFunc(es, compareBlockEntries)
	return es
}

// compareBlockEntries orders blocks by function name, then numerically by
// block name when both are numbers, then textually.
func compareBlockEntries(a, b blockEntry) int {
	af, ab, _ := strings.Cut(a.name, "#")
	bf, bb, _ := strings.Cut(b.name, "#")
	if c := strings.Compare(af, bf); c != 0 {
		return c
	}
	ai, aerr := strconv.Atoi(ab)
	bi, berr := strconv.Atoi(bb)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(ab, bb)
}

// BlockName returns a display name for b of the form "function#block".
func (r *Result) BlockName(b ir.Block) string {
	if r.partition != nil {
		if fn, ok := r.partition.EnclosingFunction(b); ok {
			return fn.String() + "#" + b.String()
		}
	}
	return "?#" + b.String()
}
