package capability

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/ason/pkg/script"
)

// Artifacts is the generated surface. Values are immutable snapshots.
type Artifacts struct {
	// Prelude is executable Go source, terminated by script.Marker.
	Prelude string
	// Signatures is the listing handed to the generator.
	Signatures string
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	textMarshal  = reflect.TypeFor[encoding.TextMarshaler]()
)

// shapes collects the data structures referenced by method signatures,
// deduplicated by name. Go struct types additionally keep the name they
// were given so two distinct types never share one declaration.
type shapes struct {
	order []string
	decls map[string]string
	types map[reflect.Type]string
}

func newShapes() *shapes {
	return &shapes{decls: make(map[string]string), types: make(map[reflect.Type]string)}
}

// free returns base when it is unused, or base followed by the smallest
// number that is. Anonymous shapes always get a number.
func (s *shapes) free(base string, numbered bool) string {
	if _, taken := s.decls[base]; !taken && !numbered {
		return base
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s%d", base, n)
		if _, taken := s.decls[name]; !taken {
			return name
		}
	}
}

func (s *shapes) add(name, decl string) {
	if _, ok := s.decls[name]; ok {
		return
	}
	s.decls[name] = decl
	s.order = append(s.order, name)
}

func (s *shapes) render(b *strings.Builder) {
	for _, name := range s.order {
		b.WriteString(s.decls[name])
		b.WriteString("\n\n")
	}
}

// goType renders the script-side type expression for t.
func (s *shapes) goType(t reflect.Type) string {
	switch {
	case t == nil:
		return "any"
	case t == timeType:
		return "time.Time"
	case t == durationType:
		return "time.Duration"
	case t == nodeType:
		return "string"
	case t.Kind() != reflect.Struct && t.Implements(textMarshal):
		return "string"
	}

	switch t.Kind() {
	case reflect.Pointer:
		return s.goType(t.Elem())
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return t.Kind().String()
	case reflect.Slice, reflect.Array:
		return "[]" + s.goType(t.Elem())
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return "map[string]" + s.goType(t.Elem())
		}
		return "map[string]any"
	case reflect.Struct:
		if t.Implements(textMarshal) {
			return "string"
		}
		return s.structShape(t)
	default:
		return "any"
	}
}

func (s *shapes) structShape(t reflect.Type) string {
	if name, ok := s.types[t]; ok {
		return name
	}
	var name string
	if t.Name() == "" {
		name = s.free("Shape", true)
	} else {
		name = s.free(t.Name(), false)
	}
	// reserve the name first so recursive types terminate
	s.types[t] = name
	s.decls[name] = ""

	var b strings.Builder
	fmt.Fprintf(&b, "type %s struct {\n", name)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		jsonName := strings.Split(tag, ",")[0]
		if jsonName == "-" {
			continue
		}
		if jsonName == "" {
			jsonName = f.Name
		}
		fmt.Fprintf(&b, "\t%s %s `json:%q`\n", f.Name, s.goType(f.Type), jsonName)
	}
	b.WriteString("}")

	delete(s.decls, name)
	s.add(name, b.String())
	return name
}

func commentLine(b *strings.Builder, indent, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(b, "%s// %s\n", indent, strings.TrimSpace(line))
	}
}

// methodSignature renders "Name(a int, b string) float64".
func methodSignature(m *Method, sh *shapes) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = fmt.Sprintf("%s %s", p.Name, sh.goType(p.Type))
	}
	sig := fmt.Sprintf("%s(%s)", m.Name, strings.Join(params, ", "))
	if rt := resultExpr(m, sh); rt != "" {
		sig += " " + rt
	}
	return sig
}

func resultExpr(m *Method, sh *shapes) string {
	switch {
	case m.Return == ReturnNone:
		return ""
	case m.Opens != "":
		return m.Opens
	default:
		return sh.goType(m.Result)
	}
}

// renderType writes the stub type and its methods for an operator kind.
func renderType(code, sigs *strings.Builder, t *Type, sh *shapes) {
	commentLine(code, "", t.Description)
	fmt.Fprintf(code, "type %s struct{ handle string }\n\n", t.Name)

	if t.Description != "" {
		fmt.Fprintf(sigs, "type %s // %s\n", t.Name, oneLine(t.Description))
	} else {
		fmt.Fprintf(sigs, "type %s\n", t.Name)
	}

	for _, m := range t.Methods {
		sig := methodSignature(m, sh)
		commentLine(code, "", m.Description)
		fmt.Fprintf(code, "func (o %s) %s {\n", t.Name, sig)

		args := make([]string, len(m.Params))
		for i, p := range m.Params {
			args[i] = p.Name
		}
		argList := ""
		if len(args) > 0 {
			argList = ", " + strings.Join(args, ", ")
		}

		switch {
		case m.Return == ReturnNone:
			fmt.Fprintf(code, "\thost.Invoke(%q, %q, o.handle, nil%s)\n", t.Name, m.Name, argList)
		case m.Opens != "":
			fmt.Fprintf(code, "\tvar h string\n\thost.Invoke(%q, %q, o.handle, &h%s)\n\treturn %s{handle: h}\n", t.Name, m.Name, argList, m.Opens)
		default:
			fmt.Fprintf(code, "\tvar out %s\n\thost.Invoke(%q, %q, o.handle, &out%s)\n\treturn out\n", resultExpr(m, sh), t.Name, m.Name, argList)
		}
		code.WriteString("}\n\n")

		if m.Description != "" {
			fmt.Fprintf(sigs, "\tfunc (%s) %s // %s\n", t.Name, sig, oneLine(m.Description))
		} else {
			fmt.Fprintf(sigs, "\tfunc (%s) %s\n", t.Name, sig)
		}
	}
	sigs.WriteString("\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// render concatenates every source into the two artifacts.
func render(types []*Type, toolSets []*ToolSet, extra string) Artifacts {
	sh := newShapes()
	var code, sigs strings.Builder

	for _, t := range types {
		renderType(&code, &sigs, t, sh)
	}
	for _, ts := range toolSets {
		ts.render(&code, &sigs, sh)
	}

	var prelude strings.Builder
	prelude.WriteString("// Code generated by ason. DO NOT EDIT.\n\n")
	sh.render(&prelude)
	prelude.WriteString(code.String())
	if extra = strings.TrimSpace(extra); extra != "" {
		prelude.WriteString(extra)
		prelude.WriteString("\n\n")
	}
	prelude.WriteString(script.Marker)
	prelude.WriteString("\n")

	var listing strings.Builder
	listing.WriteString(sigs.String())
	if len(sh.order) > 0 {
		names := append([]string(nil), sh.order...)
		sort.Strings(names)
		for _, name := range names {
			listing.WriteString(sh.decls[name])
			listing.WriteString("\n\n")
		}
	}
	if extra != "" {
		listing.WriteString(extra)
		listing.WriteString("\n")
	}

	return Artifacts{Prelude: prelude.String(), Signatures: strings.TrimSpace(listing.String()) + "\n"}
}
