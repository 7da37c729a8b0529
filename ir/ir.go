// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package ir describes the queries the privilege-lowering analysis makes
// against a program representation.
//
// Uses of a function and the values passed to it are tagged variants: a Use
// is either a *CallUse or a *RefUse, and a Value is either a ConstInt or a
// NonConst.  Consumers classify them with a type switch, so "not a call" and
// "not a constant" are ordinary outcomes rather than nil results.
package ir

import (
	"fmt"
	"go/constant"
	"go/token"
)

// Function is a reference to a function of the program.  Two Functions are
// the same function if they compare equal.
type Function interface {
	// Name returns the unqualified name of the function.
	Name() string
	// String returns a name that is unique within the program.
	String() string
}

// Block is a reference to a basic block.  Two Blocks are the same block if
// they compare equal.
type Block interface {
	fmt.Stringer
}

// Module is a loaded program that can be queried for functions and their
// uses.
type Module interface {
	// LookupFunction resolves a function by name.
	LookupFunction(name string) (Function, bool)
	// UsersOf returns every use of fn in the program.
	UsersOf(fn Function) []Use
}

// Partition maps blocks to the function containing them.
type Partition interface {
	EnclosingFunction(b Block) (Function, bool)
}

// BlockFunctions is a Partition backed by a map.
type BlockFunctions map[Block]Function

// EnclosingFunction implements Partition.
func (m BlockFunctions) EnclosingFunction(b Block) (Function, bool) {
	fn, ok := m[b]
	return fn, ok
}

// Use is a place in the program that refers to a function.  It is one of
// *CallUse or *RefUse.
type Use interface {
	// Pos returns the source position of the use, which may be invalid.
	Pos() token.Position
	isUse()
}

// CallUse is a direct call.
type CallUse struct {
	// Callee is the statically known function being called.
	Callee Function
	// Block is the basic block containing the call.
	Block Block
	// Args are the call arguments in order.  A packed variadic argument is
	// expanded into its elements when they can be recovered.
	Args     []Value
	Position token.Position
}

// RefUse is any use that is not a direct call, e.g. taking the function's
// address or storing it in a variable.
type RefUse struct {
	// Context describes the referring instruction.
	Context  string
	Position token.Position
}

func (u *CallUse) Pos() token.Position { return u.Position }
func (u *RefUse) Pos() token.Position  { return u.Position }

func (*CallUse) isUse() {}
func (*RefUse) isUse()  {}

// Value is a call argument.  It is one of ConstInt or NonConst.
type Value interface {
	String() string
	isValue()
}

// ConstInt is an integer constant known at compile time.
type ConstInt struct {
	Value constant.Value
}

// NonConst is a value that is not a compile-time integer constant.
type NonConst struct {
	// Desc describes the value for diagnostics.
	Desc string
}

// Int returns a ConstInt holding x.
func Int(x int64) ConstInt { return ConstInt{constant.MakeInt64(x)} }

func (c ConstInt) String() string {
	if c.Value == nil {
		return "<invalid constant>"
	}
	return c.Value.ExactString()
}

func (n NonConst) String() string { return n.Desc }

func (ConstInt) isValue() {}
func (NonConst) isValue() {}
