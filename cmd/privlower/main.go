// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Command privlower reports the capabilities that the functions and basic
// blocks of a Go program request through a privilege-lowering routine.
//
// Usage:
//
//	privlower [flags] packages...
//
// Every call of the marker routine (priv_lower by default) declares a set of
// capabilities as its arguments after the first.  privlower prints, per
// function, the union of the capabilities its calls declare.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jcd2/privlower/analyzer"
	"github.com/jcd2/privlower/config"
	"github.com/jcd2/privlower/ssair"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/buildutil"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const usage = `Report the capabilities requested through a privilege-lowering routine.

Usage:
  privlower [flags] packages...

Examples:
  privlower ./...
  privlower -marker example.com/priv.Lower -output json ./cmd/server
  privlower -platforms linux/amd64,linux/arm64 ./...

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flags holds the command line.  Flags that were not given do not override
// the config file.
type flags struct {
	configFile string
	marker     string
	universe   int
	output     string
	color      string
	tags       []string
	platforms  string
	only       string
	blocks     bool
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*flag.FlagSet, *flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("privlower", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configFile, "config", "", "yaml config file")
	fs.StringVar(&f.marker, "marker", config.DefaultMarker, "name of the privilege-lowering routine")
	fs.IntVar(&f.universe, "universe", 0, "number of capabilities (default: the Linux capabilities)")
	fs.StringVar(&f.output, "output", config.OutputText, "output format: text or json")
	fs.StringVar(&f.color, "color", config.ColorAuto, "colored text output: auto, always or never")
	fs.Var((*buildutil.TagsFlag)(&f.tags), "tags", buildutil.TagsFlagDoc)
	fs.StringVar(&f.platforms, "platforms", "", "comma-separated goos/goarch pairs to analyze")
	fs.StringVar(&f.only, "only", "", "comma-separated capabilities; list only entries requesting one of them")
	fs.BoolVar(&f.blocks, "blocks", false, "also print the per-block table")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, f, nil
}

// loadConfig reads the config file, if any, and applies the flags that were
// set on top of it.
func loadConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.NewDefault()
	if f.configFile != "" {
		var err error
		if cfg, err = config.Load(f.configFile); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "marker":
			cfg.Marker = f.marker
		case "universe":
			cfg.UniverseSize = f.universe
		case "output":
			cfg.Output = f.output
		case "color":
			cfg.Color = f.color
		case "tags":
			cfg.BuildTags = strings.Join(f.tags, ",")
		case "platforms":
			cfg.Platforms = splitList(f.platforms)
		case "only":
			cfg.Only = splitList(f.only)
		case "v":
			if f.verbose && cfg.LogLevel < int(config.InfoLevel) {
				cfg.LogLevel = int(config.InfoLevel)
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func run(args []string, stdout, stderr io.Writer) int {
	fs, f, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	} else if err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cfg, err := loadConfig(fs, f)
	if err != nil {
		fmt.Fprintf(stderr, "privlower: %v\n", err)
		return 2
	}
	log := config.NewLogGroupTo(stderr, config.LogLevel(cfg.LogLevel))
	if cfg.SourceFile() != "" {
		log.Infof("Loaded config from %s", cfg.SourceFile())
	}

	platforms, err := cfg.ParsedPlatforms()
	if err != nil {
		fmt.Fprintf(stderr, "privlower: %v\n", err)
		return 2
	}
	only, err := cfg.ParsedOnly()
	if err != nil {
		fmt.Fprintf(stderr, "privlower: %v\n", err)
		return 2
	}
	results, err := analyzePlatforms(context.Background(), fs.Args(), cfg, platforms, log)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}

	if cfg.Output == config.OutputJSON {
		err = writeJSON(stdout, platforms, results)
	} else {
		err = writeText(stdout, platforms, results, analyzer.DumpOptions{
			Color:  useColor(cfg.Color, stdout),
			Blocks: f.blocks,
			Only:   only,
		})
	}
	if err != nil {
		log.Errorf("writing output: %v", err)
		return 1
	}
	return 0
}

// analyzePlatforms loads and analyzes the packages once per platform.  Each
// platform gets its own program and tables.  With several platforms, log
// messages are prefixed by the platform they come from.
func analyzePlatforms(ctx context.Context, patterns []string, cfg *config.Config, platforms []config.Platform, log *config.LogGroup) ([]*analyzer.Result, error) {
	results := make([]*analyzer.Result, len(platforms))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range platforms {
		plog := log
		if len(platforms) > 1 {
			plog = log.WithPrefix(p.String() + ": ")
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			plog.Infof("Loading packages for %s", p)
			pkgs, err := ssair.LoadPackages(patterns, ssair.LoadConfig{
				BuildTags: cfg.BuildTags,
				GOOS:      p.GOOS,
				GOARCH:    p.GOARCH,
			})
			if err != nil {
				return fmt.Errorf("%s: loading packages: %w", p, err)
			}
			if len(pkgs) == 0 {
				return fmt.Errorf("%s: no packages matched %v", p, patterns)
			}
			m, err := ssair.Build(pkgs)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			r, err := analyzer.Analyze(m, m.Partition(), &analyzer.Config{
				Marker:       cfg.Marker,
				UniverseSize: cfg.UniverseSize,
				Log:          plog,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeText(w io.Writer, platforms []config.Platform, results []*analyzer.Result, opts analyzer.DumpOptions) error {
	for i, r := range results {
		if len(platforms) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "== %s ==\n", platforms[i])
		}
		if err := analyzer.DumpFunctionTable(w, r, opts); err != nil {
			return err
		}
	}
	return nil
}

// writeJSON writes the report of a single platform as is, and the reports of
// several platforms as an object keyed by platform.
func writeJSON(w io.Writer, platforms []config.Platform, results []*analyzer.Result) error {
	var b []byte
	var err error
	if len(results) == 1 {
		b, err = analyzer.MarshalReport(results[0])
	} else {
		all := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(results))}
		for i, r := range results {
			s, err := analyzer.ReportStruct(r)
			if err != nil {
				return err
			}
			all.Fields[platforms[i].String()] = structpb.NewStructValue(s)
		}
		b, err = protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(all)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// useColor reports whether text output to w should be colored.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
