// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package ssair answers the queries of package ir for a program in
// golang.org/x/tools/go/ssa form.
package ssair

import (
	"errors"
	"fmt"
	"go/token"
	"go/types"
	"slices"
	"strings"

	"github.com/jcd2/privlower/ir"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// ErrPackageErrors is returned by Build when the loaded packages have errors.
var ErrPackageErrors = errors.New("packages contain errors")

// Module is an SSA program.  It implements ir.Module.
type Module struct {
	prog *ssa.Program
	// pkgs is sorted by import path.
	pkgs []*ssa.Package
	// funcs holds every function of the program in a deterministic order.
	funcs     []*ssa.Function
	partition ir.BlockFunctions
}

var _ ir.Module = (*Module)(nil)

// Build builds SSA for pkgs and their dependencies.
func Build(pkgs []*packages.Package) (*Module, error) {
	var errs []error
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, err := range p.Errors {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrPackageErrors, errors.Join(errs...))
	}
	prog, _ := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()
	return NewModule(prog), nil
}

// NewModule indexes a built SSA program.
func NewModule(prog *ssa.Program) *Module {
	m := &Module{
		prog:      prog,
		pkgs:      prog.AllPackages(),
		partition: make(ir.BlockFunctions),
	}
	slices.SortFunc(m.pkgs, func(a, b *ssa.Package) int {
		return strings.Compare(a.Pkg.Path(), b.Pkg.Path())
	})
	for fn := range ssautil.AllFunctions(prog) {
		m.funcs = append(m.funcs, fn)
	}
	slices.SortFunc(m.funcs, compareFunctions)
	for _, fn := range m.funcs {
		for _, b := range fn.Blocks {
			m.partition[b] = fn
		}
	}
	return m
}

// Partition returns the mapping from every basic block of the program to
// its function.
func (m *Module) Partition() ir.BlockFunctions { return m.partition }

// Position returns the source position of pos.
func (m *Module) Position(pos token.Pos) token.Position {
	if !pos.IsValid() || m.prog.Fset == nil {
		return token.Position{}
	}
	return m.prog.Fset.Position(pos)
}

// LookupFunction resolves a package-level function.  name is either
// qualified by import path ("example.com/priv.Lower") or bare ("priv_lower");
// a bare name resolves to the function in the first package, by import path,
// that declares it.
func (m *Module) LookupFunction(name string) (ir.Function, bool) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		path, fname := name[:i], name[i+1:]
		for _, p := range m.pkgs {
			if p.Pkg.Path() == path {
				if fn := p.Func(fname); fn != nil {
					return fn, true
				}
				return nil, false
			}
		}
		return nil, false
	}
	for _, p := range m.pkgs {
		if fn := p.Func(name); fn != nil {
			return fn, true
		}
	}
	return nil, false
}

// UsersOf returns every instruction operand referring to fn.  An operand in
// the callee position of a call, go or defer instruction is a *ir.CallUse;
// anything else is a *ir.RefUse.
//
// Instances of generic functions are not scanned.  Their bodies repeat the
// calls of the generic function, which is scanned once instead, so each
// source call is one use.
func (m *Module) UsersOf(fn ir.Function) []ir.Use {
	target, ok := fn.(*ssa.Function)
	if !ok {
		return nil
	}
	var (
		uses []ir.Use
		buf  [16]*ssa.Value
	)
	for _, f := range m.funcs {
		if isInstance(f) {
			continue
		}
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				for _, op := range instr.Operands(buf[:0]) {
					if op == nil || !refersTo(*op, target) {
						continue
					}
					if ci, ok := instr.(ssa.CallInstruction); ok && op == &ci.Common().Value {
						uses = append(uses, m.callUse(ci))
						continue
					}
					uses = append(uses, &ir.RefUse{
						Context:  fmt.Sprintf("%s: %s", f, describeInstr(instr)),
						Position: m.Position(instr.Pos()),
					})
				}
			}
		}
	}
	return uses
}

// refersTo reports whether v is fn or an instantiation of fn.
func refersTo(v ssa.Value, fn *ssa.Function) bool {
	f, ok := v.(*ssa.Function)
	if !ok {
		return false
	}
	return f == fn || f.Origin() == fn
}

// isInstance reports whether f is an instantiation of a generic function.
func isInstance(f *ssa.Function) bool {
	return f.Origin() != nil
}

func (m *Module) callUse(ci ssa.CallInstruction) *ir.CallUse {
	common := ci.Common()
	u := &ir.CallUse{
		Block:    ci.Block(),
		Args:     callArgs(common),
		Position: m.Position(ci.Pos()),
	}
	if callee := common.StaticCallee(); callee != nil {
		if o := callee.Origin(); o != nil {
			callee = o
		}
		u.Callee = callee
	}
	return u
}

func describeInstr(instr ssa.Instruction) string {
	if v, ok := instr.(ssa.Value); ok {
		return v.Name() + " = " + v.String()
	}
	return instr.String()
}

// compareFunctions orders functions by package path, then package-level
// functions before methods and wrappers, then by name and position.
func compareFunctions(a, b *ssa.Function) int {
	pkgPath := func(f *ssa.Function) string {
		if p := f.Package(); p != nil && p.Pkg != nil {
			return p.Pkg.Path()
		}
		if o := f.Origin(); o != nil && o.Package() != nil {
			return o.Package().Pkg.Path()
		}
		return ""
	}
	if c := strings.Compare(pkgPath(a), pkgPath(b)); c != 0 {
		return c
	}
	if c := compareBool(a.Signature.Recv() == nil, b.Signature.Recv() == nil); c != 0 {
		return c
	}
	if c := strings.Compare(a.String(), b.String()); c != 0 {
		return c
	}
	return int(a.Pos()) - int(b.Pos())
}

// compareBool performs a three-way comparison between two bool values.  It returns:
//
//	0  if a==b
//	-1 if a && !b
//	+1 if !a && b
func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return -1
	}
	return +1
}

// isArrayPointer reports whether t is a pointer to an array, returning the
// array length.
func isArrayPointer(t types.Type) (int64, bool) {
	ptr, ok := types.Unalias(t).Underlying().(*types.Pointer)
	if !ok {
		return 0, false
	}
	arr, ok := types.Unalias(ptr.Elem()).Underlying().(*types.Array)
	if !ok {
		return 0, false
	}
	return arr.Len(), true
}
