package repair

import (
	"regexp"
	"strings"

	"github.com/aretw0/ason/pkg/script"
)

var (
	fence       = regexp.MustCompile("(?i)```(?:golang|go)?")
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	singleImp   = regexp.MustCompile(`^import\s+(?:[A-Za-z_][A-Za-z0-9_]*\s+)?"([^"]+)"\s*;?$`)
	groupedPath = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_]*\s+)?"([^"]+)"\s*;?$`)
)

// Clean normalizes a generator reply into a script body: code fences,
// comments, package clauses and imports already provided by every program are
// removed, and runs of blank lines are collapsed.
func Clean(reply string) string {
	if strings.TrimSpace(reply) == "" {
		return ""
	}
	text := strings.ReplaceAll(reply, "\r\n", "\n")
	text = fence.ReplaceAllString(text, "")
	text = removeBlockComments(text)

	var out []string
	inGroup := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if inGroup {
			if trimmed == ")" {
				inGroup = false
				continue
			}
			if m := groupedPath.FindStringSubmatch(trimmed); m != nil && !script.IsDefaultImport(m[1]) {
				out = append(out, `import "`+m[1]+`"`)
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "//"):
			continue
		case trimmed == "package main":
			continue
		case trimmed == "import (":
			inGroup = true
			continue
		}
		if m := singleImp.FindStringSubmatch(trimmed); m != nil && script.IsDefaultImport(m[1]) {
			continue
		}
		out = append(out, line)
	}

	text = strings.Join(out, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// removeBlockComments drops /* ... */ spans. An unterminated comment runs to
// the end of the text.
func removeBlockComments(text string) string {
	for {
		start := strings.Index(text, "/*")
		if start < 0 {
			return text
		}
		end := strings.Index(text[start+2:], "*/")
		if end < 0 {
			return text[:start]
		}
		text = text[:start] + text[start+2+end+2:]
	}
}
