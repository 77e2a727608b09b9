package capability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/ason/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
)

// ToolSet is the script-visible surface of one external tool server.
type ToolSet struct {
	Server string
	// TypeName is the stub type, e.g. "SalesApiMcp" for server "sales-api".
	TypeName string
	// VarName is the ready-to-use instance, e.g. "SalesApi".
	VarName string
	Tools   []Tool
}

// Tool is one tool of a ToolSet.
type Tool struct {
	Name        string
	Method      string
	Description string
	Params      []ToolParam
	schema      *openapi3.Schema
}

// ToolParam is one argument of a tool.
type ToolParam struct {
	Key         string
	Ident       string
	Required    bool
	Description string
	schema      *openapi3.Schema
}

// NewToolSet parses the tool descriptors of server.
func NewToolSet(server string, tools []domain.ToolDescriptor) (*ToolSet, error) {
	if strings.TrimSpace(server) == "" {
		return nil, fmt.Errorf("tool server name is required")
	}
	ts := &ToolSet{
		Server:   server,
		TypeName: Pascal(server) + "Mcp",
		VarName:  Pascal(server),
	}
	seen := make(map[string]bool)
	for _, desc := range tools {
		method := Pascal(desc.Name)
		if seen[method] {
			return nil, fmt.Errorf("tool server %s: duplicate tool %s", server, desc.Name)
		}
		seen[method] = true

		schema, err := parseSchema(desc.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s/%s: %w", server, desc.Name, err)
		}
		tool := Tool{Name: desc.Name, Method: method, Description: desc.Description, schema: schema}
		tool.Params = toolParams(schema)
		ts.Tools = append(ts.Tools, tool)
	}
	return ts, nil
}

func parseSchema(raw map[string]any) (*openapi3.Schema, error) {
	schema := &openapi3.Schema{}
	if len(raw) == 0 {
		return schema, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	if err := json.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return schema, nil
}

// toolParams orders required properties first, then the rest, each alphabetically.
func toolParams(schema *openapi3.Schema) []ToolParam {
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	keys := make([]string, 0, len(schema.Properties))
	for k := range schema.Properties {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if required[keys[i]] != required[keys[j]] {
			return required[keys[i]]
		}
		return keys[i] < keys[j]
	})

	params := make([]ToolParam, 0, len(keys))
	used := make(map[string]bool)
	for _, k := range keys {
		ident := camel(k)
		for used[ident] {
			ident += "_"
		}
		used[ident] = true

		var prop *openapi3.Schema
		if ref := schema.Properties[k]; ref != nil {
			prop = ref.Value
		}
		desc := ""
		if prop != nil {
			desc = prop.Description
		}
		params = append(params, ToolParam{Key: k, Ident: ident, Required: required[k], Description: desc, schema: prop})
	}
	return params
}

func schemaKind(s *openapi3.Schema) string {
	if s == nil || s.Type == nil {
		return ""
	}
	for _, t := range *s.Type {
		if t != "null" {
			return t
		}
	}
	return ""
}

// schemaType maps a JSON schema to a script type expression. Objects with
// properties become struct shapes named <Tool><Param>Input.
func (sh *shapes) schemaType(s *openapi3.Schema, shapeName string) string {
	switch schemaKind(s) {
	case openapi3.TypeString:
		return "string"
	case openapi3.TypeInteger:
		return "int"
	case openapi3.TypeNumber:
		return "float64"
	case openapi3.TypeBoolean:
		return "bool"
	case openapi3.TypeArray:
		if s.Items == nil || s.Items.Value == nil {
			return "[]any"
		}
		return "[]" + sh.schemaType(s.Items.Value, shapeName)
	case openapi3.TypeObject:
		if len(s.Properties) == 0 {
			return "map[string]any"
		}
		return sh.schemaShape(s, shapeName)
	default:
		return "any"
	}
}

func (sh *shapes) schemaShape(s *openapi3.Schema, name string) string {
	if _, ok := sh.decls[name]; ok {
		return name
	}
	sh.decls[name] = ""

	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "type %s struct {\n", name)
	for _, k := range keys {
		var prop *openapi3.Schema
		if ref := s.Properties[k]; ref != nil {
			prop = ref.Value
		}
		field := Pascal(k)
		fieldType := sh.schemaType(prop, strings.TrimSuffix(name, "Input")+field+"Input")
		fmt.Fprintf(&b, "\t%s %s `json:\"%s,omitempty\"`\n", field, fieldType, k)
	}
	b.WriteString("}")

	delete(sh.decls, name)
	sh.add(name, b.String())
	return name
}

func (ts *ToolSet) render(code, sigs *strings.Builder, sh *shapes) {
	commentLine(code, "", fmt.Sprintf("%s calls the tools of server %q.", ts.TypeName, ts.Server))
	fmt.Fprintf(code, "type %s struct{}\n\nvar %s %s\n\n", ts.TypeName, ts.VarName, ts.TypeName)
	fmt.Fprintf(sigs, "type %s // tools of server %q\n", ts.TypeName, ts.Server)

	for _, tool := range ts.Tools {
		params := make([]string, len(tool.Params))
		for i, p := range tool.Params {
			params[i] = fmt.Sprintf("%s %s", p.Ident, sh.schemaType(p.schema, tool.Method+Pascal(p.Key)+"Input"))
		}
		sig := fmt.Sprintf("%s(%s) any", tool.Method, strings.Join(params, ", "))

		commentLine(code, "", tool.Description)
		fmt.Fprintf(code, "func (%s) %s {\n\targs := map[string]any{}\n", ts.TypeName, sig)
		for _, p := range tool.Params {
			if p.Required {
				fmt.Fprintf(code, "\targs[%q] = %s\n", p.Key, p.Ident)
			} else {
				fmt.Fprintf(code, "\thost.Optional(args, %q, %s)\n", p.Key, p.Ident)
			}
		}
		fmt.Fprintf(code, "\treturn host.InvokeTool(%q, %q, args)\n}\n\n", ts.Server, tool.Name)

		if tool.Description != "" {
			fmt.Fprintf(sigs, "\tfunc (%s) %s // %s\n", ts.TypeName, sig, oneLine(tool.Description))
		} else {
			fmt.Fprintf(sigs, "\tfunc (%s) %s\n", ts.TypeName, sig)
		}
	}
	fmt.Fprintf(sigs, "var %s %s\n\n", ts.VarName, ts.TypeName)
}
