// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package config holds the configuration of the privlower tool and its
// logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jcd2/privlower/caps"
	"gopkg.in/yaml.v3"
)

// DefaultMarker is the name of the routine whose calls declare the
// capabilities a code unit needs.
const DefaultMarker = "priv_lower"

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrInvalidConfig is wrapped by every validation error returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the configuration of a privlower run.  Fields that are not set
// in a config file keep the values from NewDefault.
type Config struct {
	// Marker is the name of the privilege-lowering routine, either bare
	// ("priv_lower") or qualified by import path ("example.com/priv.Lower").
	Marker string `yaml:"marker"`

	// UniverseSize is the number of capabilities; capability arguments must
	// be below it.
	UniverseSize int `yaml:"universe-size"`

	// LogLevel controls the verbosity of the tool, from 1 (errors) to 5 (trace).
	LogLevel int `yaml:"log-level"`

	// Output is "text" or "json".
	Output string `yaml:"output"`

	// Color is "auto", "always" or "never" and applies to text output.
	Color string `yaml:"color"`

	// BuildTags are passed to the go command when loading packages.
	BuildTags string `yaml:"build-tags"`

	// Platforms lists "goos/goarch" pairs.  Each platform is analyzed
	// separately.  Empty means the host platform.
	Platforms []string `yaml:"platforms"`

	// Only restricts text output to the functions and blocks requesting at
	// least one of these capabilities, given by name ("CAP_SETUID",
	// "net_raw") or index.  Empty means no restriction.
	Only []string `yaml:"only"`

	sourceFile string
}

// NewDefault returns the default config.
func NewDefault() *Config {
	return &Config{
		Marker:       DefaultMarker,
		UniverseSize: caps.LinuxUniverseSize,
		LogLevel:     int(WarnLevel),
		Output:       OutputText,
		Color:        ColorAuto,
	}
}

// Load reads a configuration from a yaml file.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file %s: %w", filename, err)
	}
	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) keep the default
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(WarnLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// SourceFile returns the file c was loaded from, if any.
func (c *Config) SourceFile() string {
	return c.sourceFile
}

// Validate checks that c can be used for a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("%w: empty marker name", ErrInvalidConfig)
	}
	if err := caps.ValidUniverse(c.UniverseSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.LogLevel < int(ErrLevel) || c.LogLevel > int(TraceLevel) {
		return fmt.Errorf("%w: log-level %d not in %d..%d", ErrInvalidConfig, c.LogLevel, ErrLevel, TraceLevel)
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("%w: unknown output %q", ErrInvalidConfig, c.Output)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%w: unknown color mode %q", ErrInvalidConfig, c.Color)
	}
	if _, err := c.ParsedPlatforms(); err != nil {
		return err
	}
	if _, err := c.ParsedOnly(); err != nil {
		return err
	}
	return nil
}

// ParsedOnly returns the capabilities listed in Only.  Each must be inside
// the universe of c.
func (c *Config) ParsedOnly() ([]caps.Capability, error) {
	var cs []caps.Capability
	for _, s := range c.Only {
		x, err := caps.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: only: %w", ErrInvalidConfig, err)
		}
		if int(x) >= c.UniverseSize {
			return nil, fmt.Errorf("%w: only: %s is outside the universe of %d capabilities", ErrInvalidConfig, s, c.UniverseSize)
		}
		cs = append(cs, x)
	}
	return cs, nil
}

// Platform is a GOOS/GOARCH pair.  Empty fields mean the host value.
type Platform struct {
	GOOS   string
	GOARCH string
}

func (p Platform) String() string {
	if p.GOOS == "" && p.GOARCH == "" {
		return "host"
	}
	return p.GOOS + "/" + p.GOARCH
}

// ParsePlatform parses "goos/goarch".
func ParsePlatform(s string) (Platform, error) {
	goos, goarch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || goos == "" || goarch == "" {
		return Platform{}, fmt.Errorf("%w: platform %q is not goos/goarch", ErrInvalidConfig, s)
	}
	return Platform{GOOS: goos, GOARCH: goarch}, nil
}

// ParsedPlatforms returns the platforms of c, or the host platform if none
// are listed.
func (c *Config) ParsedPlatforms() ([]Platform, error) {
	if len(c.Platforms) == 0 {
		return []Platform{{}}, nil
	}
	ps := make([]Platform, 0, len(c.Platforms))
	for _, s := range c.Platforms {
		p, err := ParsePlatform(s)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}
