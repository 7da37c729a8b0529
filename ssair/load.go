// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package ssair

import (
	"os"

	"golang.org/x/tools/go/packages"
)

// LoadConfig specifies the build tags, GOOS value, and GOARCH value to use
// when loading packages.  These will be used to determine when a file's build
// constraint is satisfied.  See
// https://pkg.go.dev/cmd/go#hdr-Build_constraints for more information.
type LoadConfig struct {
	BuildTags string
	GOOS      string
	GOARCH    string
	// Dir is the directory the go command runs in.  Empty means the current
	// directory.
	Dir string
	// Env is appended to the environment of the go command.
	Env []string
}

// PackagesLoadModeNeeded is a packages.LoadMode that has all the bits set for
// the information that this package uses to build SSA.  Users should load
// packages for analysis using this LoadMode (or a superset.)
const PackagesLoadModeNeeded packages.LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes |
	packages.NeedModule

// LoadPackages loads the packages matching packageNames and their
// dependencies.
func LoadPackages(packageNames []string, lcfg LoadConfig) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: PackagesLoadModeNeeded, Dir: lcfg.Dir}
	if lcfg.BuildTags != "" {
		cfg.BuildFlags = []string{"-tags=" + lcfg.BuildTags}
	}
	if lcfg.GOOS != "" || lcfg.GOARCH != "" || len(lcfg.Env) > 0 {
		env := append([]string(nil), os.Environ()...)
		env = append(env, lcfg.Env...)
		if lcfg.GOOS != "" {
			env = append(env, "GOOS="+lcfg.GOOS)
		}
		if lcfg.GOARCH != "" {
			env = append(env, "GOARCH="+lcfg.GOARCH)
		}
		cfg.Env = env
	}
	return packages.Load(cfg, packageNames...)
}
