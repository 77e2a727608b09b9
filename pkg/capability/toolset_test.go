package capability_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reflectArgs(args ...any) []reflect.Value {
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		out[i] = reflect.ValueOf(a)
	}
	return out
}

func salesTools() []domain.ToolDescriptor {
	return []domain.ToolDescriptor{
		{
			Name:        "get_orders",
			Description: "List orders",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"limit"},
				"properties": map[string]any{
					"limit":  map[string]any{"type": "integer"},
					"ratio":  map[string]any{"type": "number"},
					"active": map[string]any{"type": "boolean"},
					"tags":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"filter": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"region": map[string]any{"type": "string"},
						},
					},
					"type": map[string]any{"type": "string", "description": "keyword as name"},
				},
			},
		},
		{Name: "ping"},
	}
}

func TestToolSet_Naming(t *testing.T) {
	ts, err := capability.NewToolSet("sales-api", salesTools())
	require.NoError(t, err)
	assert.Equal(t, "SalesApiMcp", ts.TypeName)
	assert.Equal(t, "SalesApi", ts.VarName)
	require.Len(t, ts.Tools, 2)
	assert.Equal(t, "GetOrders", ts.Tools[0].Method)

	params := ts.Tools[0].Params
	require.NotEmpty(t, params)
	assert.Equal(t, "limit", params[0].Key, "required parameters come first")
	assert.True(t, params[0].Required)

	idents := make([]string, len(params))
	for i, p := range params {
		idents[i] = p.Ident
	}
	assert.Contains(t, idents, "type_", "Go keywords are escaped")
}

func TestToolSet_Surface(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.RegisterToolSet("sales-api", salesTools()))

	a := reg.RebuildIfDirty("")
	p := a.Prelude

	assert.Contains(t, p, "type SalesApiMcp struct{}")
	assert.Contains(t, p, "var SalesApi SalesApiMcp")
	assert.Contains(t, p, "func (SalesApiMcp) GetOrders(limit int, active bool, filter GetOrdersFilterInput, ratio float64, tags []string, type_ string) any {")
	assert.Contains(t, p, `args["limit"] = limit`)
	assert.Contains(t, p, `host.Optional(args, "ratio", ratio)`)
	assert.Contains(t, p, `return host.InvokeTool("sales-api", "get_orders", args)`)
	assert.Contains(t, p, "func (SalesApiMcp) Ping() any {")
	assert.Equal(t, 1, strings.Count(p, "type GetOrdersFilterInput struct {"))
	assert.Contains(t, p, "Region string `json:\"region,omitempty\"`")

	assert.Contains(t, a.Signatures, `type SalesApiMcp // tools of server "sales-api"`)
	assert.Contains(t, a.Signatures, "// List orders")
}

func TestToolSet_Errors(t *testing.T) {
	_, err := capability.NewToolSet("", nil)
	assert.Error(t, err)

	_, err = capability.NewToolSet("x", []domain.ToolDescriptor{{Name: "a-b"}, {Name: "a_b"}})
	assert.Error(t, err)
}

func TestPascal(t *testing.T) {
	assert.Equal(t, "SalesApi", capability.Pascal("sales-api"))
	assert.Equal(t, "GetOrders", capability.Pascal("get_orders"))
	assert.Equal(t, "CustomerId", capability.Pascal("customer id"))
	assert.Equal(t, "_3d", capability.Pascal("3d"))
	assert.Equal(t, "X", capability.Pascal("--"))
}
