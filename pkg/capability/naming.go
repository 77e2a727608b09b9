package capability

import (
	"strings"
	"unicode"
)

// Pascal converts identifiers such as "sales-api", "get_orders" or
// "customer id" into PascalCase Go identifiers ("SalesApi", "GetOrders",
// "CustomerId"). Leading digits are prefixed with an underscore.
func Pascal(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return "X"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// camel lowercases the first rune of a Pascal identifier; used for parameter names.
func camel(s string) string {
	p := Pascal(s)
	if p == "" {
		return p
	}
	r := []rune(p)
	r[0] = unicode.ToLower(r[0])
	out := string(r)
	if isKeyword(out) {
		out += "_"
	}
	return out
}

func isKeyword(s string) bool {
	switch s {
	case "break", "case", "chan", "const", "continue", "default", "defer", "else",
		"fallthrough", "for", "func", "go", "goto", "if", "import", "interface",
		"map", "package", "range", "return", "select", "struct", "switch", "type", "var":
		return true
	}
	return false
}
