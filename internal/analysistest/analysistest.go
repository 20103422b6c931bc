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

package analysistest

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/internal/funcutil"
	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
)

// LoadTest loads the program in the directory dir, looking for a main.go and a config.yaml. If additional files
// are specified as extraFiles, the program will be loaded using those files too.
func LoadTest(t *testing.T, dir string, extraFiles []string) (analysis.LoadedProgram, *config.Config) {
	configFile := filepath.Join(dir, "config.yaml")
	cfg := config.NewDefault()
	if _, err := os.Stat(configFile); err == nil {
		cfg, err = config.Load(configFile)
		if err != nil {
			t.Fatalf("error loading config %s: %s", configFile, err)
		}
	}

	files := []string{filepath.Join(dir, "./main.go")}
	for _, extraFile := range extraFiles {
		files = append(files, filepath.Join(dir, extraFile))
	}
	pkgConfig := &packages.Config{
		Mode:  analysis.PkgLoadMode,
		Tests: false,
		Dir:   dir,
	}
	program, err := analysis.LoadProgram(pkgConfig, "", ssa.BuilderMode(0), files)
	if err != nil {
		t.Fatalf("error loading packages: %s", err)
	}
	return program, cfg
}

// CallsRegex matches annotations of the form "@Calls(f, T.m)"
var CallsRegex = regexp.MustCompile(`//.*@Calls\(((?:\s*[\w.$]+\s*,?)*)\)`)

// AllocRegex matches annotations of the form "@Alloc(id)"
var AllocRegex = regexp.MustCompile(`//.*@Alloc\(\s*(\w+)\s*\)`)

// PointsToRegex matches annotations of the form "@PointsTo(id1, id2)"
var PointsToRegex = regexp.MustCompile(`//.*@PointsTo\(((?:\s*\w+\s*,?)*)\)`)

// LPos is a position without column
type LPos struct {
	Filename string
	Line     int
}

func (p LPos) String() string {
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}

// RemoveColumn returns the position pos without column
func RemoveColumn(pos token.Position) LPos {
	return LPos{Line: pos.Line, Filename: pos.Filename}
}

// Annotations are the expectations written in the comments of a test program.
type Annotations struct {
	// Calls maps the line of a call to the names of the functions the call may call. The name of a method is
	// prefixed by the name of its receiver type, without package and pointer.
	Calls map[LPos]map[string]bool
	// Allocs maps the line of an allocation to the identifier of the allocation
	Allocs map[LPos]string
	// PointsTo maps the line of a call to the identifiers of the allocations its first argument may point to
	PointsTo map[LPos]map[string]bool
}

// GetAnnotations loads the package in dir and collects the annotations in the trailing comments of its statements.
func GetAnnotations(dir string) (Annotations, error) {
	pkgConfig := &packages.Config{
		Mode:  analysis.PkgLoadMode,
		Tests: false,
		Dir:   dir,
	}
	loadedPackages, err := decorator.Load(pkgConfig, ".")
	if err != nil {
		return Annotations{}, fmt.Errorf("could not load packages: %w", err)
	}
	a := Annotations{
		Calls:    map[LPos]map[string]bool{},
		Allocs:   map[LPos]string{},
		PointsTo: map[LPos]map[string]bool{},
	}
	for _, pack := range loadedPackages {
		for _, dstFile := range pack.Syntax {
			dst.Inspect(dstFile, func(n dst.Node) bool {
				if n == nil {
					return false
				}
				for _, c := range n.Decorations().End.All() {
					astNode, ok := pack.Decorator.Ast.Nodes[n]
					if !ok {
						continue
					}
					a.add(RemoveColumn(pack.Decorator.Fset.Position(astNode.Pos())), c)
				}
				return true
			})
		}
	}
	return a, nil
}

func (a Annotations) add(pos LPos, comment string) {
	if m := CallsRegex.FindStringSubmatch(comment); len(m) > 1 {
		a.Calls[pos] = identSet(a.Calls[pos], m[1])
	}
	if m := AllocRegex.FindStringSubmatch(comment); len(m) > 1 {
		a.Allocs[pos] = m[1]
	}
	if m := PointsToRegex.FindStringSubmatch(comment); len(m) > 1 {
		a.PointsTo[pos] = identSet(a.PointsTo[pos], m[1])
	}
}

func identSet(s map[string]bool, list string) map[string]bool {
	if s == nil {
		s = map[string]bool{}
	}
	for _, ident := range strings.Split(list, ",") {
		if ident = strings.TrimSpace(ident); ident != "" {
			s[ident] = true
		}
	}
	return s
}

// SetString returns the sorted elements of s, comma separated
func SetString(s map[string]bool) string {
	return strings.Join(funcutil.SetToOrderedSlice(s), ", ")
}
