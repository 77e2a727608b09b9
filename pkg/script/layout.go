// Package script knows the layout of an executable ason script: the generated
// declaration prelude, a marker line, and the statement body written by the
// generator.
package script

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Marker separates the prelude from the body.
const Marker = "//ason:body"

// HostImport is the import path of the bridge package visible to scripts.
const HostImport = "ason/host"

// DefaultImports are always imported by an assembled program. Scripts may use
// them without an import line.
var DefaultImports = []string{
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"sort",
	"strconv",
	"strings",
	"time",
}

// keepers reference one symbol per default import so the program compiles
// even when the body does not use them.
var keepers = map[string]string{
	"encoding/json": "json.Marshal",
	"errors":        "errors.New",
	"fmt":           "fmt.Sprint",
	"math":          "math.Abs",
	"sort":          "sort.Strings",
	"strconv":       "strconv.Itoa",
	"strings":       "strings.TrimSpace",
	"time":          "time.Now",
	HostImport:      "host.Log",
}

var importLine = regexp.MustCompile(`^\s*import\s+(?:[A-Za-z_][A-Za-z0-9_]*\s+)?"([^"]+)"\s*;?\s*$`)

// IsDefaultImport reports whether path is imported by every program.
func IsDefaultImport(path string) bool {
	if path == HostImport {
		return true
	}
	for _, p := range DefaultImports {
		if p == path {
			return true
		}
	}
	return false
}

// Split separates code into prelude and body at the marker line. Without a
// marker the whole code is the body.
func Split(code string) (prelude, body string) {
	idx := strings.Index(code, Marker)
	if idx < 0 {
		return "", code
	}
	return code[:idx], code[idx+len(Marker):]
}

// Assemble builds a complete Go program defining
//
//	func run() any
//
// from a prelude and a statement body. Single-line imports at the top of the
// body are hoisted into the import block.
func Assemble(prelude, body string) string {
	imports := map[string]bool{HostImport: true}
	for _, p := range DefaultImports {
		imports[p] = true
	}

	var stmts []string
	hoisting := true
	for _, line := range strings.Split(body, "\n") {
		if hoisting {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if m := importLine.FindStringSubmatch(trimmed); m != nil {
				imports[m[1]] = true
				continue
			}
			hoisting = false
		}
		stmts = append(stmts, line)
	}

	paths := make([]string, 0, len(imports))
	for p := range imports {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("package main\n\nimport (\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "\t%q\n", p)
	}
	b.WriteString(")\n\n")

	keep := make([]string, 0, len(keepers))
	for p, sym := range keepers {
		if imports[p] {
			keep = append(keep, sym)
		}
	}
	sort.Strings(keep)
	for _, sym := range keep {
		fmt.Fprintf(&b, "var _ = %s\n", sym)
	}
	b.WriteString("\n")

	b.WriteString(strings.TrimSpace(prelude))
	b.WriteString("\n\nfunc run() any {\n")
	b.WriteString(strings.Join(stmts, "\n"))
	b.WriteString("\n\treturn nil\n}\n")
	return b.String()
}
