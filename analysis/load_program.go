// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// PkgLoadMode is the default loading mode in the analyses. We load all possible information.
const PkgLoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedExportFile |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes |
	packages.NeedModule

// LoadedProgram represents a loaded program.
type LoadedProgram struct {
	// Program is the SSA version of the program.
	Program *ssa.Program
	// Packages is the list of the packages matching the arguments of the load.
	Packages []*packages.Package
	// Directives is a map from the directive's position in the program to the relevant directive comment.
	Directives Directives
}

// LoadProgram loads the packages matching args on platform (the GOOS, empty for the host) and builds the SSA form
// of the whole program with buildmode. To understand how to specify the args, look at the documentation of
// packages.Load. Build tags can be set in the BuildFlags of config, and a nil config loads with PkgLoadMode.
// The type errors of the packages are returned as one error.
func LoadProgram(config *packages.Config, platform string, buildmode ssa.BuilderMode, args []string) (LoadedProgram,
	error) {
	if config == nil {
		config = &packages.Config{Mode: PkgLoadMode}
	}
	if config.Fset == nil {
		config.Fset = token.NewFileSet()
	}
	if platform != "" {
		config.Env = append(os.Environ(), fmt.Sprintf("GOOS=%s", platform))
	}

	initialPackages, err := packages.Load(config, args...)
	if err != nil {
		return LoadedProgram{}, fmt.Errorf("failed to load packages: %w", err)
	}
	if len(initialPackages) == 0 {
		return LoadedProgram{}, fmt.Errorf("no packages")
	}
	var errs []error
	packages.Visit(initialPackages, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			errs = append(errs, e)
		}
	})
	if len(errs) > 0 {
		return LoadedProgram{}, fmt.Errorf("errors found in packages: %w", errors.Join(errs...))
	}

	program, ssaPackages := ssautil.AllPackages(initialPackages, buildmode)
	for i, p := range ssaPackages {
		if p == nil {
			return LoadedProgram{}, fmt.Errorf("cannot build SSA for package %s", initialPackages[i])
		}
	}
	program.Build()

	return LoadedProgram{
		Program:    program,
		Packages:   initialPackages,
		Directives: findDirectives(initialPackages, program.Fset),
	}, nil
}

// AllPackages returns the slice of all packages the set of functions provided as argument belong to.
func AllPackages(funcs map[*ssa.Function]bool) []*ssa.Package {
	pkgs := make(map[*ssa.Package]bool)
	for f := range funcs {
		if f.Package() != nil {
			pkgs[f.Package()] = true
		}
	}
	pkglist := make([]*ssa.Package, 0, len(pkgs))
	for p := range pkgs {
		pkglist = append(pkglist, p)
	}
	sort.Slice(pkglist, func(i, j int) bool {
		return pkglist[i].Pkg.Path() < pkglist[j].Pkg.Path()
	})
	return pkglist
}

// Directives represents a map of directive position to directive.
type Directives map[DirectivePos]Directive

// Directive represents an instruction to the tools in the source code being analyzed.
// It is a comment in the form: `//typeflow:x`, where x is a valid DirectiveKind.
type Directive struct {
	Kind    DirectiveKind
	Comment *ast.Comment
}

// DirectivePos represents the position of a directive within a program.
type DirectivePos struct {
	Filename string
	Line     int
}

// NewDirectivePos creates a DirectivePos from a token.Position.
func NewDirectivePos(pos token.Position) DirectivePos {
	return DirectivePos{
		Filename: pos.Filename,
		Line:     pos.Line,
	}
}

// DirectiveKind represents the kind of directive.
type DirectiveKind string

const (
	// DirectiveEntrypoint marks the function declared on the next line as a root of the analysis.
	DirectiveEntrypoint DirectiveKind = "entrypoint"
)

// NewDirective returns the directive for c and true if c is a valid
// directive comment.
func NewDirective(c *ast.Comment) (Directive, bool) {
	_, after, found := strings.Cut(c.Text, "typeflow:")
	if !found {
		return Directive{}, false
	}

	switch k := DirectiveKind(strings.TrimSpace(after)); k {
	case DirectiveEntrypoint:
		return Directive{Kind: k, Comment: c}, true
	default:
		return Directive{}, false
	}
}

// IsEntryPoint returns true if the declaration of fn is preceded by an entrypoint directive
func (d Directives) IsEntryPoint(fset *token.FileSet, fn *ssa.Function) bool {
	if fn.Syntax() == nil {
		return false
	}
	pos := fset.Position(fn.Syntax().Pos())
	if !pos.IsValid() {
		return false
	}
	dir, ok := d[DirectivePos{Filename: pos.Filename, Line: pos.Line - 1}]
	return ok && dir.Kind == DirectiveEntrypoint
}

// findDirectives returns all the directives in the syntax of pkgs.
func findDirectives(pkgs []*packages.Package, fset *token.FileSet) Directives {
	res := make(Directives)
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			for _, group := range file.Comments {
				for _, c := range group.List {
					pos := fset.Position(c.Pos())
					if !pos.IsValid() {
						continue
					}
					if d, ok := NewDirective(c); ok {
						res[NewDirectivePos(pos)] = d
					}
				}
			}
		}
	}
	return res
}
