// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"errors"
	"fmt"
	"go/constant"

	"github.com/jcd2/privlower/caps"
	"github.com/jcd2/privlower/ir"
)

var (
	// ErrNonConstantArgument marks a capability argument that is not a
	// compile-time integer constant.
	ErrNonConstantArgument = errors.New("capability argument is not a constant integer")
	// ErrCapabilityOutOfRange marks a constant capability argument that is
	// negative or not below the universe size.
	ErrCapabilityOutOfRange = errors.New("capability argument out of range")
)

// ArgumentError describes a marker call argument that was not added to the
// capability set.
type ArgumentError struct {
	// Index is the position of the argument in the call.
	Index int
	Value ir.Value
	// Err is ErrNonConstantArgument or wraps ErrCapabilityOutOfRange.
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d (%v): %v", e.Index, e.Value, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Extractor decodes the capability arguments of marker calls.
type Extractor struct {
	empty caps.Set
}

// NewExtractor returns an Extractor for a universe of the given size.
func NewExtractor(universe int) (*Extractor, error) {
	empty, err := caps.NewSet(universe)
	if err != nil {
		return nil, err
	}
	return &Extractor{empty: empty}, nil
}

// Extract returns the set of capabilities given as constant arguments of
// call.  Argument 0 is the argument count and is never a capability.
// Arguments that are not constants, or that are constants outside the
// universe, are left out of the set and reported as errors.
func (x *Extractor) Extract(call *ir.CallUse) (caps.Set, []*ArgumentError) {
	set := x.empty
	var errs []*ArgumentError
	for i := 1; i < len(call.Args); i++ {
		v := call.Args[i]
		c, err := x.capability(v)
		if err == nil {
			err = set.Add(c)
		}
		if err != nil {
			errs = append(errs, &ArgumentError{Index: i, Value: v, Err: err})
		}
	}
	return set, errs
}

func (x *Extractor) capability(v ir.Value) (caps.Capability, error) {
	c, ok := v.(ir.ConstInt)
	if !ok || c.Value == nil || c.Value.Kind() != constant.Int {
		return 0, ErrNonConstantArgument
	}
	n, exact := constant.Uint64Val(c.Value)
	if !exact || n >= uint64(x.empty.Size()) {
		return 0, fmt.Errorf("%w: %s (universe size %d)", ErrCapabilityOutOfRange, c.Value.ExactString(), x.empty.Size())
	}
	return caps.Capability(n), nil
}
