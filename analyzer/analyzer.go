// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package analyzer finds the calls to a privilege-lowering marker routine
// and records, per basic block and per function, the capabilities those
// calls declare.
package analyzer

import (
	"errors"
	"fmt"
	"go/token"
	"maps"

	"github.com/jcd2/privlower/caps"
	"github.com/jcd2/privlower/config"
	"github.com/jcd2/privlower/ir"
)

// Config holds configuration for the analyzer.
type Config struct {
	// Marker is the name of the routine whose calls declare capabilities,
	// in the form accepted by ir.Module.LookupFunction.
	Marker string
	// UniverseSize is the number of capabilities.  Capability arguments must
	// be below it.
	UniverseSize int
	// Log receives progress messages and per-call-site diagnostics.  If Log
	// is nil, nothing is logged.
	Log *config.LogGroup
}

// DefaultConfig returns a Config for the Linux capability universe and the
// default marker name.
func DefaultConfig() *Config {
	return &Config{
		Marker:       config.DefaultMarker,
		UniverseSize: caps.LinuxUniverseSize,
	}
}

// ErrMissingInput is returned by Analyze when the module or partition is nil.
var ErrMissingInput = errors.New("missing analysis input")

// State is the stage of an analysis run.
type State int

const (
	StateUninitialized State = iota
	StateScanning
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateScanning:
		return "scanning"
	case StatePublished:
		return "published"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DiagnosticKind classifies a problem found while scanning.  None of them
// stop the analysis.
type DiagnosticKind int

const (
	// MissingMarker: the module has no marker routine.  Both tables are
	// empty.
	MissingMarker DiagnosticKind = iota + 1
	// NonCallUse: the marker is referenced other than by a direct call.
	NonCallUse
	// MismatchedCallee: a call found among the marker's uses calls some other
	// function.
	MismatchedCallee
	// NonConstantArgument: a capability argument is not a constant integer.
	NonConstantArgument
	// CapabilityOutOfRange: a capability argument is outside the universe.
	CapabilityOutOfRange
	// UnpartitionedBlock: the partition does not know the block of a call,
	// so only the block table was updated.
	UnpartitionedBlock
)

var diagnosticKindNames = map[DiagnosticKind]string{
	MissingMarker:        "missing-marker",
	NonCallUse:           "non-call-use",
	MismatchedCallee:     "mismatched-callee",
	NonConstantArgument:  "non-constant-argument",
	CapabilityOutOfRange: "capability-out-of-range",
	UnpartitionedBlock:   "unpartitioned-block",
}

func (k DiagnosticKind) String() string {
	if s, ok := diagnosticKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Diagnostic is a problem found at one use or argument.
type Diagnostic struct {
	Kind     DiagnosticKind
	Position token.Position
	Message  string
}

func (d Diagnostic) String() string {
	if d.Position.IsValid() {
		return fmt.Sprintf("%s: %s: %s", d.Position, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Result holds the published tables of one analysis run.  The tables are
// only reachable through copies, so a Result is safe to share between
// readers.
type Result struct {
	// Marker is the marker routine: the configured name, replaced by the
	// resolved function name when the routine is found.
	Marker string
	// MarkerFound is false if the module has no marker routine.
	MarkerFound bool
	// CallSites is the number of marker calls that were recorded.
	CallSites int
	// Diagnostics lists skipped uses and rejected arguments in scan order.
	Diagnostics []Diagnostic

	state     State
	universe  int
	blocks    BlockTable
	functions FunctionTable
	partition ir.Partition
}

// State returns the state of the run that produced r.
func (r *Result) State() State { return r.state }

// UniverseSize returns the size of the capability universe of the run.
func (r *Result) UniverseSize() int { return r.universe }

// BlockCapabilities returns the capabilities requested in block b.
func (r *Result) BlockCapabilities(b ir.Block) (caps.Set, bool) {
	s, ok := r.blocks[b]
	return s, ok
}

// FunctionCapabilities returns the capabilities requested in function f.
func (r *Result) FunctionCapabilities(f ir.Function) (caps.Set, bool) {
	s, ok := r.functions[f]
	return s, ok
}

// Blocks returns a copy of the block table.
func (r *Result) Blocks() BlockTable { return maps.Clone(r.blocks) }

// Functions returns a copy of the function table.
func (r *Result) Functions() FunctionTable { return maps.Clone(r.functions) }

// Analyze scans every use of the marker routine in m and builds the block
// and function capability tables.  p maps blocks to their functions.
//
// A module without the marker routine is not an error: the result has
// MarkerFound set to false and empty tables.  Analyze only returns an error
// if cfg is invalid or an input is nil.  m is only read, and each call
// builds its own tables, so independent runs may proceed concurrently.
func Analyze(m ir.Module, p ir.Partition, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if m == nil || p == nil {
		return nil, ErrMissingInput
	}
	if cfg.Marker == "" {
		return nil, fmt.Errorf("%w: empty marker name", config.ErrInvalidConfig)
	}
	x, err := NewExtractor(cfg.UniverseSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	ps := &pass{
		log:       cfg.Log,
		extractor: x,
		partition: p,
		result: &Result{
			Marker:    cfg.Marker,
			universe:  cfg.UniverseSize,
			blocks:    make(BlockTable),
			functions: make(FunctionTable),
			partition: p,
		},
	}
	ps.run(m)
	return ps.result, nil
}

// pass is one run of the analysis over one module.
type pass struct {
	log       *config.LogGroup
	extractor *Extractor
	partition ir.Partition
	result    *Result
}

func (ps *pass) run(m ir.Module) {
	r := ps.result
	r.state = StateScanning
	defer func() { r.state = StatePublished }()

	ps.log.Infof("Running local privilege analysis for %s", r.Marker)
	marker, ok := m.LookupFunction(r.Marker)
	if !ok {
		ps.report(MissingMarker, token.Position{}, fmt.Sprintf("didn't find function %s", r.Marker))
		return
	}
	r.Marker = marker.String()
	r.MarkerFound = true

	for _, u := range m.UsersOf(marker) {
		switch u := u.(type) {
		case *ir.CallUse:
			ps.visitCall(marker, u)
		case *ir.RefUse:
			ps.report(NonCallUse, u.Position, fmt.Sprintf("%s is referenced without being called (%s)", r.Marker, u.Context))
		default:
			ps.report(NonCallUse, u.Pos(), fmt.Sprintf("unrecognized use %T", u))
		}
	}
	ps.log.Infof("Found %d calls to %s in %d blocks of %d functions",
		r.CallSites, r.Marker, len(r.blocks), len(r.functions))
}

func (ps *pass) visitCall(marker ir.Function, call *ir.CallUse) {
	r := ps.result
	if call.Callee == nil || call.Callee != marker {
		ps.report(MismatchedCallee, call.Position, fmt.Sprintf("call to %v is not a call to %s", call.Callee, r.Marker))
		return
	}
	set, argErrs := ps.extractor.Extract(call)
	for _, e := range argErrs {
		kind := NonConstantArgument
		if errors.Is(e, ErrCapabilityOutOfRange) {
			kind = CapabilityOutOfRange
		}
		ps.report(kind, call.Position, e.Error())
	}
	r.CallSites++
	ps.log.Tracef("%s: %s requests %v", call.Position, r.Marker, set)

	MergeInto(r.blocks, call.Block, set)
	fn, ok := ps.partition.EnclosingFunction(call.Block)
	if !ok {
		ps.report(UnpartitionedBlock, call.Position, fmt.Sprintf("block %s has no enclosing function", call.Block))
		return
	}
	MergeInto(r.functions, fn, set)
}

func (ps *pass) report(kind DiagnosticKind, pos token.Position, msg string) {
	d := Diagnostic{Kind: kind, Position: pos, Message: msg}
	ps.result.Diagnostics = append(ps.result.Diagnostics, d)
	if kind == MissingMarker {
		ps.log.Warnf("%s", d)
		return
	}
	ps.log.Debugf("%s", d)
}
