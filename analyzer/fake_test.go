// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"go/token"

	"github.com/jcd2/privlower/ir"
)

// fakeFunction, fakeBlock and fakeModule are a minimal in-memory ir.Module.
type fakeFunction string

func (f fakeFunction) Name() string   { return string(f) }
func (f fakeFunction) String() string { return "pkg." + string(f) }

type fakeBlock string

func (b fakeBlock) String() string { return string(b) }

type fakeModule struct {
	functions []fakeFunction
	uses      map[ir.Function][]ir.Use
}

func (m *fakeModule) LookupFunction(name string) (ir.Function, bool) {
	for _, f := range m.functions {
		if f.Name() == name || f.String() == name {
			return f, true
		}
	}
	return nil, false
}

func (m *fakeModule) UsersOf(fn ir.Function) []ir.Use {
	return m.uses[fn]
}

const (
	lower = fakeFunction("priv_lower")
	other = fakeFunction("other")
)

// newModule returns a module defining priv_lower and other, with uses as the
// uses of priv_lower.
func newModule(uses ...ir.Use) *fakeModule {
	return &fakeModule{
		functions: []fakeFunction{lower, other},
		uses:      map[ir.Function][]ir.Use{lower: uses},
	}
}

var line int

// call returns a call to callee in block b with the given arguments.
func call(callee ir.Function, b fakeBlock, args ...ir.Value) *ir.CallUse {
	line++
	return &ir.CallUse{
		Callee:   callee,
		Block:    b,
		Args:     args,
		Position: token.Position{Filename: "fake.go", Line: line, Column: 1},
	}
}

// ints returns constant integer arguments.
func ints(xs ...int64) []ir.Value {
	vs := make([]ir.Value, len(xs))
	for i, x := range xs {
		vs[i] = ir.Int(x)
	}
	return vs
}

func ref(context string) *ir.RefUse {
	line++
	return &ir.RefUse{Context: context, Position: token.Position{Filename: "fake.go", Line: line, Column: 1}}
}
