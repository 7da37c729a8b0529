// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"bytes"
	"errors"
	"go/constant"
	"go/token"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jcd2/privlower/caps"
	"github.com/jcd2/privlower/config"
	"github.com/jcd2/privlower/ir"
)

func analyze(t *testing.T, m ir.Module, p ir.Partition) *Result {
	t.Helper()
	r, err := Analyze(m, p, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if r.State() != StatePublished {
		t.Errorf("State() = %v, want %v", r.State(), StatePublished)
	}
	return r
}

func diagnosticKinds(r *Result) []DiagnosticKind {
	var ks []DiagnosticKind
	for _, d := range r.Diagnostics {
		ks = append(ks, d.Kind)
	}
	return ks
}

func set(cs ...caps.Capability) caps.Set {
	return caps.Of(caps.LinuxUniverseSize, cs...)
}

func TestTwoBlocksOneFunction(t *testing.T) {
	// Block B1 in F1 calls priv_lower(2, 3, 5), block B2 in F1 calls
	// priv_lower(1, 3).
	m := newModule(
		call(lower, "B1", ints(2, 3, 5)...),
		call(lower, "B2", ints(1, 3)...),
	)
	p := ir.BlockFunctions{fakeBlock("B1"): fakeFunction("F1"), fakeBlock("B2"): fakeFunction("F1")}
	r := analyze(t, m, p)

	wantBlocks := BlockTable{fakeBlock("B1"): set(3, 5), fakeBlock("B2"): set(3)}
	wantFunctions := FunctionTable{fakeFunction("F1"): set(3, 5)}
	if diff := cmp.Diff(wantBlocks, r.Blocks()); diff != "" {
		t.Errorf("block table mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantFunctions, r.Functions()); diff != "" {
		t.Errorf("function table mismatch (-want +got):\n%s", diff)
	}
	if !r.MarkerFound || r.CallSites != 2 || len(r.Diagnostics) != 0 {
		t.Errorf("got MarkerFound=%v CallSites=%d Diagnostics=%v, want true, 2, none",
			r.MarkerFound, r.CallSites, r.Diagnostics)
	}
	if r.Marker != "pkg.priv_lower" {
		t.Errorf("Marker = %q, want the resolved name pkg.priv_lower", r.Marker)
	}
	if s, ok := r.BlockCapabilities(fakeBlock("B1")); !ok || s != set(3, 5) {
		t.Errorf("BlockCapabilities(B1) = %v, %v", s, ok)
	}
	if s, ok := r.FunctionCapabilities(fakeFunction("F1")); !ok || s != set(3, 5) {
		t.Errorf("FunctionCapabilities(F1) = %v, %v", s, ok)
	}
	if _, ok := r.FunctionCapabilities(fakeFunction("F2")); ok {
		t.Errorf("FunctionCapabilities(F2) found an entry for a function without calls")
	}
}

func TestArgumentZeroExcluded(t *testing.T) {
	x, err := NewExtractor(caps.LinuxUniverseSize)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		args []ir.Value
		want caps.Set
	}{
		{ints(), set()},
		{ints(5), set()},
		{ints(0), set()},
		{ints(3, 1), set(1)},
		{ints(7, 7), set(7)},
		{append([]ir.Value{ir.NonConst{Desc: "n"}}, ints(4)...), set(4)},
		{ints(1000, 2), set(2)},
	} {
		got, errs := x.Extract(call(lower, "B", test.args...))
		if got != test.want || len(errs) != 0 {
			t.Errorf("Extract(%v) = %v, %v; want %v, no errors", test.args, got, errs, test.want)
		}
	}
}

func TestBoundsSafety(t *testing.T) {
	huge := ir.ConstInt{Value: constant.MakeFromLiteral("123456789012345678901234567890", token.INT, 0)}
	args := append(ints(5, 40, caps.LinuxUniverseSize, 1000, -1), huge)
	m := newModule(call(lower, "B", args...))
	r := analyze(t, m, ir.BlockFunctions{fakeBlock("B"): fakeFunction("F")})

	if diff := cmp.Diff(BlockTable{fakeBlock("B"): set(40)}, r.Blocks()); diff != "" {
		t.Errorf("block table mismatch (-want +got):\n%s", diff)
	}
	want := []DiagnosticKind{CapabilityOutOfRange, CapabilityOutOfRange, CapabilityOutOfRange, CapabilityOutOfRange}
	if diff := cmp.Diff(want, diagnosticKinds(r)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	x, err := NewExtractor(8)
	if err != nil {
		t.Fatal(err)
	}
	_, errs := x.Extract(call(lower, "B", ints(1, 8)...))
	if len(errs) != 1 || !errors.Is(errs[0], ErrCapabilityOutOfRange) || errs[0].Index != 1 {
		t.Errorf("Extract(1, 8) with universe 8: got errors %v, want one ErrCapabilityOutOfRange at index 1", errs)
	}
}

func TestNonConstantArguments(t *testing.T) {
	args := []ir.Value{
		ir.Int(3),
		ir.NonConst{Desc: "t0 = parameter n"},
		ir.Int(3),
		ir.ConstInt{Value: constant.MakeFloat64(2.5)},
		ir.ConstInt{},
		nil,
	}
	x, err := NewExtractor(caps.LinuxUniverseSize)
	if err != nil {
		t.Fatal(err)
	}
	got, errs := x.Extract(call(lower, "B", args...))
	if got != set(3) {
		t.Errorf("Extract = %v, want {3}", got)
	}
	var idx []int
	for _, e := range errs {
		if !errors.Is(e, ErrNonConstantArgument) {
			t.Errorf("unexpected error %v", e)
		}
		idx = append(idx, e.Index)
	}
	if diff := cmp.Diff([]int{1, 3, 4, 5}, idx); diff != "" {
		t.Errorf("rejected argument indices mismatch (-want +got):\n%s", diff)
	}
	if len(errs) == 4 {
		if got, want := errs[2].Error(), "argument 4 (<invalid constant>): capability argument is not a constant integer"; got != want {
			t.Errorf("errs[2].Error() = %q, want %q", got, want)
		}
	}
}

func TestMissingMarker(t *testing.T) {
	var logs bytes.Buffer
	cfg := DefaultConfig()
	cfg.Marker = "drop_caps"
	cfg.Log = config.NewLogGroupTo(&logs, config.InfoLevel)
	r, err := Analyze(newModule(call(lower, "B", ints(1, 2)...)), ir.BlockFunctions{}, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if r.MarkerFound || len(r.Blocks()) != 0 || len(r.Functions()) != 0 || r.CallSites != 0 {
		t.Errorf("got MarkerFound=%v blocks=%v functions=%v, want empty result", r.MarkerFound, r.Blocks(), r.Functions())
	}
	if diff := cmp.Diff([]DiagnosticKind{MissingMarker}, diagnosticKinds(r)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "[WARN] missing-marker: didn't find function drop_caps") {
		t.Errorf("missing marker was not logged as a warning; logs:\n%s", logs.String())
	}
	if r.State() != StatePublished {
		t.Errorf("State() = %v, want published", r.State())
	}
}

func TestSkippedUses(t *testing.T) {
	m := newModule(
		ref("t0 = make interface{} <- func(int, ...int) (priv_lower)"),
		call(other, "B1", ints(1, 2)...),
		call(nil, "B2", ints(1, 4)...),
		call(lower, "B3", ints(1, 9)...),
	)
	r := analyze(t, m, ir.BlockFunctions{
		fakeBlock("B1"): fakeFunction("F"),
		fakeBlock("B2"): fakeFunction("F"),
		fakeBlock("B3"): fakeFunction("G"),
	})
	if diff := cmp.Diff(BlockTable{fakeBlock("B3"): set(9)}, r.Blocks()); diff != "" {
		t.Errorf("block table mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(FunctionTable{fakeFunction("G"): set(9)}, r.Functions()); diff != "" {
		t.Errorf("function table mismatch (-want +got):\n%s", diff)
	}
	want := []DiagnosticKind{NonCallUse, MismatchedCallee, MismatchedCallee}
	if diff := cmp.Diff(want, diagnosticKinds(r)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestOnlyNonCallUses(t *testing.T) {
	r := analyze(t, newModule(ref("store"), ref("closure")), ir.BlockFunctions{})
	if !r.MarkerFound || len(r.Blocks()) != 0 || len(r.Functions()) != 0 {
		t.Errorf("taking the marker's address produced entries: %v %v", r.Blocks(), r.Functions())
	}
}

func TestEmptySetStillRecorded(t *testing.T) {
	m := newModule(call(lower, "B", ir.Int(1), ir.NonConst{Desc: "x"}))
	r := analyze(t, m, ir.BlockFunctions{fakeBlock("B"): fakeFunction("F")})
	if s, ok := r.BlockCapabilities(fakeBlock("B")); !ok || !s.IsEmpty() {
		t.Errorf("BlockCapabilities(B) = %v, %v; want an empty entry", s, ok)
	}
	if s, ok := r.FunctionCapabilities(fakeFunction("F")); !ok || !s.IsEmpty() {
		t.Errorf("FunctionCapabilities(F) = %v, %v; want an empty entry", s, ok)
	}
}

func TestUnpartitionedBlock(t *testing.T) {
	m := newModule(call(lower, "B1", ints(1, 2)...), call(lower, "lost", ints(1, 4)...))
	r := analyze(t, m, ir.BlockFunctions{fakeBlock("B1"): fakeFunction("F")})
	wantBlocks := BlockTable{fakeBlock("B1"): set(2), fakeBlock("lost"): set(4)}
	if diff := cmp.Diff(wantBlocks, r.Blocks()); diff != "" {
		t.Errorf("block table mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(FunctionTable{fakeFunction("F"): set(2)}, r.Functions()); diff != "" {
		t.Errorf("function table mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]DiagnosticKind{UnpartitionedBlock}, diagnosticKinds(r)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

// randomProgram returns call sites spread over a few blocks and functions.
func randomProgram(rng *rand.Rand, n int) ([]ir.Use, ir.BlockFunctions) {
	blocks := []fakeBlock{"B0", "B1", "B2", "B3", "B4", "B5"}
	p := ir.BlockFunctions{}
	for i, b := range blocks {
		p[b] = fakeFunction([]string{"F", "G", "H"}[i%3])
	}
	var uses []ir.Use
	for i := 0; i < n; i++ {
		args := ints(0)
		for j := rng.Intn(4); j > 0; j-- {
			args = append(args, ir.Int(int64(rng.Intn(caps.LinuxUniverseSize+5))))
		}
		uses = append(uses, call(lower, blocks[rng.Intn(len(blocks))], args...))
	}
	return uses, p
}

func TestOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	uses, p := randomProgram(rng, 40)
	base := analyze(t, newModule(uses...), p)
	for i := 0; i < 20; i++ {
		perm := make([]ir.Use, len(uses))
		for j, k := range rng.Perm(len(uses)) {
			perm[j] = uses[k]
		}
		r := analyze(t, newModule(perm...), p)
		if diff := cmp.Diff(base.Blocks(), r.Blocks()); diff != "" {
			t.Errorf("permutation %d: block table mismatch (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(base.Functions(), r.Functions()); diff != "" {
			t.Errorf("permutation %d: function table mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestFunctionAggregation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	uses, p := randomProgram(rng, 60)
	r := analyze(t, newModule(uses...), p)
	want := FunctionTable{}
	for b, s := range r.Blocks() {
		MergeInto(want, p[b], s)
	}
	if diff := cmp.Diff(want, r.Functions()); diff != "" {
		t.Errorf("function entries are not the union of their blocks (-want +got):\n%s", diff)
	}
}

func TestMergeInto(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var (
		keyF   ir.Function = lower
		keyB   ir.Block    = fakeBlock("B")
		keyNew ir.Block    = fakeBlock("new")
	)
	randomSet := func() caps.Set {
		s := set()
		for i := rng.Intn(6); i > 0; i-- {
			if err := s.Add(caps.Capability(rng.Intn(caps.LinuxUniverseSize))); err != nil {
				t.Fatal(err)
			}
		}
		return s
	}
	for i := 0; i < 100; i++ {
		e, s1, s2 := randomSet(), randomSet(), randomSet()

		once := FunctionTable{keyF: e}
		MergeInto(once, keyF, s1)
		twice := FunctionTable{keyF: e}
		MergeInto(twice, keyF, s1)
		MergeInto(twice, keyF, s1)
		if once[keyF] != twice[keyF] {
			t.Errorf("merge is not idempotent: %v vs %v", once[keyF], twice[keyF])
		}

		ab := BlockTable{keyB: e}
		MergeInto(ab, keyB, s1)
		MergeInto(ab, keyB, s2)
		ba := BlockTable{keyB: e}
		MergeInto(ba, keyB, s2)
		MergeInto(ba, keyB, s1)
		if ab[keyB] != ba[keyB] {
			t.Errorf("merge is not commutative: %v vs %v", ab[keyB], ba[keyB])
		}

		fresh := BlockTable{}
		MergeInto(fresh, keyNew, s1)
		if fresh[keyNew] != s1 {
			t.Errorf("merge into a missing key = %v, want %v", fresh[keyNew], s1)
		}
		for _, c := range e.Capabilities() {
			if !ab[keyB].Has(c) {
				t.Errorf("merge dropped capability %d of %v", c, e)
			}
		}
	}
}

func TestResultIsReadOnly(t *testing.T) {
	r := analyze(t, newModule(call(lower, "B", ints(1, 2)...)), ir.BlockFunctions{fakeBlock("B"): fakeFunction("F")})
	blocks := r.Blocks()
	blocks[fakeBlock("B")] = set(30)
	delete(blocks, fakeBlock("B"))
	fns := r.Functions()
	fns[fakeFunction("F")] = set(31)
	if s, _ := r.BlockCapabilities(fakeBlock("B")); s != set(2) {
		t.Errorf("modifying Blocks() changed the result: %v", s)
	}
	if s, _ := r.FunctionCapabilities(fakeFunction("F")); s != set(2) {
		t.Errorf("modifying Functions() changed the result: %v", s)
	}
}

func TestInvalidInput(t *testing.T) {
	m := newModule()
	p := ir.BlockFunctions{}
	if _, err := Analyze(nil, p, nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Analyze(nil module) = %v, want ErrMissingInput", err)
	}
	if _, err := Analyze(m, nil, nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Analyze(nil partition) = %v, want ErrMissingInput", err)
	}
	if _, err := Analyze(m, p, &Config{Marker: "lower", UniverseSize: 0}); !errors.Is(err, caps.ErrInvalidUniverse) || !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Analyze(universe 0) = %v, want ErrInvalidConfig wrapping ErrInvalidUniverse", err)
	}
	if _, err := Analyze(m, p, &Config{UniverseSize: 8}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("Analyze(no marker) = %v, want ErrInvalidConfig", err)
	}
	if r, err := Analyze(m, p, &Config{Marker: "lower", UniverseSize: 8}); err != nil || r.UniverseSize() != 8 {
		t.Errorf("Analyze(universe 8) = %v, %v", r, err)
	}
}
