// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jcd2/privlower/caps"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// DumpOptions controls DumpFunctionTable.
type DumpOptions struct {
	// Color enables terminal colors.
	Color bool
	// Blocks also lists the block table.
	Blocks bool
	// Only, if not empty, limits the listing to entries requesting at least
	// one of these capabilities.
	Only []caps.Capability
}

func (o DumpOptions) selects(s caps.Set) bool {
	if len(o.Only) == 0 {
		return true
	}
	for _, c := range o.Only {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// DumpFunctionTable writes the function table of r to w, one function per
// line in name order, e.g.
//
//	testlib.F1: CAP_DAC_READ_SEARCH, CAP_KILL
func DumpFunctionTable(w io.Writer, r *Result, opts DumpOptions) error {
	var (
		nameColor = color.New(color.FgCyan, color.Bold)
		capColor  = color.New(color.FgYellow)
		warnColor = color.New(color.FgRed)
	)
	for _, c := range []*color.Color{nameColor, capColor, warnColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	var b strings.Builder
	if !r.MarkerFound {
		fmt.Fprintf(&b, "%s\n", warnColor.Sprintf("Didn't find function %s", r.Marker))
	} else {
		fmt.Fprintf(&b, "Capabilities requested through %s (%d call sites):\n", r.Marker, r.CallSites)
		for _, e := range r.sortedFunctions() {
			if !opts.selects(e.set) {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", nameColor.Sprint(e.name), capColor.Sprint(capList(e.set.Names())))
		}
		if opts.Blocks {
			for _, e := range r.sortedBlocks() {
				if !opts.selects(e.set) {
					continue
				}
				fmt.Fprintf(&b, "  %s: %s\n", nameColor.Sprint(e.name), capColor.Sprint(capList(e.set.Names())))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func capList(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

// ReportStruct returns the result as a protobuf Struct:
//
//	{
//	  "marker": "testlib.priv_lower",
//	  "markerFound": true,
//	  "callSites": 2,
//	  "universeSize": 41,
//	  "functions": {"testlib.F1": ["CAP_DAC_READ_SEARCH", "CAP_KILL"]},
//	  "blocks": {"testlib.F1#1": ["CAP_DAC_READ_SEARCH", "CAP_KILL"], ...},
//	  "diagnostics": [{"kind": "...", "position": "...", "message": "..."}]
//	}
func ReportStruct(r *Result) (*structpb.Struct, error) {
	functions := make(map[string]any, len(r.functions))
	for _, e := range r.sortedFunctions() {
		functions[e.name] = stringList(e.set.Names())
	}
	blocks := make(map[string]any, len(r.blocks))
	for _, e := range r.sortedBlocks() {
		blocks[e.name] = stringList(e.set.Names())
	}
	diagnostics := make([]any, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		m := map[string]any{
			"kind":    d.Kind.String(),
			"message": d.Message,
		}
		if d.Position.IsValid() {
			m["position"] = d.Position.String()
		}
		diagnostics[i] = m
	}
	s, err := structpb.NewStruct(map[string]any{
		"marker":       r.Marker,
		"markerFound":  r.MarkerFound,
		"callSites":    r.CallSites,
		"universeSize": r.universe,
		"functions":    functions,
		"blocks":       blocks,
		"diagnostics":  diagnostics,
	})
	if err != nil {
		return nil, fmt.Errorf("building report: %w", err)
	}
	return s, nil
}

// MarshalReport returns the report of ReportStruct as indented JSON.
func MarshalReport(r *Result) ([]byte, error) {
	s, err := ReportStruct(r)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
