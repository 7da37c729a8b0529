// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package ssair

import (
	"fmt"
	"go/constant"

	"github.com/jcd2/privlower/ir"
	"golang.org/x/tools/go/ssa"
)

// callArgs returns the arguments of a call.  For a call to a variadic
// function, the slice the builder packs the trailing arguments into is
// expanded back into the individual arguments, so that
//
//	priv_lower(2, CAP_SETUID, CAP_SETGID)
//
// yields three values rather than a constant and a slice.
func callArgs(c *ssa.CallCommon) []ir.Value {
	args := c.Args
	out := make([]ir.Value, 0, len(args))
	if !c.Signature().Variadic() || len(args) == 0 {
		for _, a := range args {
			out = append(out, classify(a))
		}
		return out
	}
	last := len(args) - 1
	for _, a := range args[:last] {
		out = append(out, classify(a))
	}
	return append(out, expandVariadic(args[last])...)
}

// expandVariadic recovers the elements of a packed variadic argument.
func expandVariadic(v ssa.Value) []ir.Value {
	switch v := v.(type) {
	case *ssa.Const:
		if v.IsNil() {
			// No variadic arguments were passed.
			return nil
		}
	case *ssa.Slice:
		if alloc, ok := v.X.(*ssa.Alloc); ok && v.Low == nil && v.High == nil && v.Max == nil {
			if elems, ok := packedElements(alloc); ok {
				return elems
			}
		}
	}
	// An existing slice forwarded with "s...".  Its contents are unknown.
	return []ir.Value{nonConst(v)}
}

// packedElements returns the values stored into each element of the array
// allocated by alloc.  It reports false if alloc is not an array.
func packedElements(alloc *ssa.Alloc) ([]ir.Value, bool) {
	n, ok := isArrayPointer(alloc.Type())
	if !ok {
		return nil, false
	}
	elems := make([]ir.Value, n)
	for i := range elems {
		elems[i] = ir.NonConst{Desc: fmt.Sprintf("%s[%d] (not stored)", alloc.Name(), i)}
	}
	refs := alloc.Referrers()
	if refs == nil {
		return elems, true
	}
	for _, r := range *refs {
		ia, ok := r.(*ssa.IndexAddr)
		if !ok || ia.X != alloc {
			continue
		}
		idx, ok := ia.Index.(*ssa.Const)
		if !ok || idx.Value == nil {
			continue
		}
		i, exact := constant.Int64Val(constant.ToInt(idx.Value))
		if !exact || i < 0 || i >= n {
			continue
		}
		iaRefs := ia.Referrers()
		if iaRefs == nil {
			continue
		}
		for _, s := range *iaRefs {
			if st, ok := s.(*ssa.Store); ok && st.Addr == ia {
				elems[i] = classify(st.Val)
			}
		}
	}
	return elems, true
}

// classify returns the constant integer held by v, looking through interface
// conversions and type changes, or a NonConst.
func classify(v ssa.Value) ir.Value {
	for {
		switch x := v.(type) {
		case *ssa.Const:
			if x.Value != nil && x.Value.Kind() == constant.Int {
				return ir.ConstInt{Value: x.Value}
			}
			return nonConst(x)
		case *ssa.MakeInterface:
			v = x.X
		case *ssa.ChangeType:
			v = x.X
		default:
			return nonConst(v)
		}
	}
}

func nonConst(v ssa.Value) ir.NonConst {
	if _, ok := v.(*ssa.Const); ok {
		return ir.NonConst{Desc: v.String()}
	}
	return ir.NonConst{Desc: fmt.Sprintf("%s = %s", v.Name(), v.String())}
}
