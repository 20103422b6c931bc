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

package compare

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readNMFile reads the text symbols of a file produced from the executable binary using
// go tool nm > filename
// Symbol names are normalized to the names of the ssa functions, without parentheses.
func readNMFile(filename string) (map[string]bool, error) {
	symbols := make(map[string]bool)
	infile, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read symbols: %w", err)
	}
	defer infile.Close()

	fileScanner := bufio.NewScanner(infile)
	fileScanner.Split(bufio.ScanLines)

	for fileScanner.Scan() {
		entry := strings.Fields(fileScanner.Text())
		if len(entry) != 3 || entry[1] != "T" {
			continue
		}

		name := entry[2]
		// if the name contains an embedded (*, move it to the start of the string
		// to match the name formatting used by the ssa package.
		if index := strings.Index(name, "(*"); index > 0 {
			name = "(*" + name[:index] + name[index+2:]
		}
		if strings.HasPrefix(name, "type..eq.") || strings.HasPrefix(name, "type..hash.") {
			continue
		}
		name = strings.TrimSuffix(name, ".abi0")
		if n := strings.LastIndex(name, ".func"); n != -1 {
			name = name[:n] + "$" + name[n+5:]
		}
		symbols[stripParens(name)] = true
	}
	return symbols, fileScanner.Err()
}

func stripParens(s string) string {
	return strings.NewReplacer("(", "", ")", "").Replace(s)
}

func stripLeadingAsterisk(s string) string {
	return strings.TrimPrefix(s, "*")
}
