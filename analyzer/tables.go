// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"github.com/jcd2/privlower/caps"
	"github.com/jcd2/privlower/ir"
)

// BlockTable maps each basic block containing a marker call to the union of
// the capabilities requested by those calls.
type BlockTable map[ir.Block]caps.Set

// FunctionTable maps each function containing a marker call to the union of
// the capabilities requested in its blocks.
type FunctionTable map[ir.Function]caps.Set

// MergeInto adds set to the entry for key, creating the entry if needed.
// Entries only grow, and the result does not depend on the order or the
// number of times a set is merged.
func MergeInto[T ~map[K]caps.Set, K comparable](table T, key K, set caps.Set) {
	if cur, ok := table[key]; ok {
		table[key] = cur.Union(set)
		return
	}
	table[key] = set
}
