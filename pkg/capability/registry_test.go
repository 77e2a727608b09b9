package capability_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type OrderLine struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"qty"`
	Price    float64 `json:"price"`
	internal string
}

type Order struct {
	ID      int         `json:"id"`
	Lines   []OrderLine `json:"lines"`
	Placed  time.Time   `json:"placed"`
	Ignored string      `json:"-"`
}

func salesType() *capability.Type {
	return capability.Declare("SalesView", "Sales dashboard").
		Method("Total", func(n *operator.Node, region string) (float64, error) { return 42, nil },
			capability.Describe("Total sales for a region"), capability.Params("region")).
		Method("Total", func(n *operator.Node, region string, year int) float64 { return 1 },
			capability.Params("region", "year")).
		Method("Refresh", func(ctx context.Context, n *operator.Node) error { return nil }).
		Method("Orders", func(n *operator.Node, limit int) []Order { return nil }, capability.Params("limit")).
		Method("Place", func(n *operator.Node, o Order) (Order, error) { return o, nil }, capability.Params("order")).
		Method("OpenOrder", func(ctx context.Context, n *operator.Node, id int) (*operator.Node, error) { return nil, nil },
			capability.Params("id"), capability.Opens("OrderView")).
		Method("Slow", func(n *operator.Node) capability.Deferred[string] {
			return func(ctx context.Context) (string, error) { return "done", nil }
		})
}

func TestDeclare_ReturnKinds(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(salesType()))

	m, err := reg.Lookup("SalesView", "Total", 1)
	require.NoError(t, err)
	assert.Equal(t, capability.ReturnValue, m.Return)
	assert.Equal(t, "region", m.Params[0].Name)

	m, err = reg.Lookup("SalesView", "Total", 2)
	require.NoError(t, err)
	assert.Len(t, m.ParamTypes(), 2)

	m, err = reg.Lookup("SalesView", "Refresh", 0)
	require.NoError(t, err)
	assert.Equal(t, capability.ReturnNone, m.Return)

	m, err = reg.Lookup("SalesView", "Slow", 0)
	require.NoError(t, err)
	assert.Equal(t, capability.ReturnAwaited, m.Return)
	assert.Equal(t, "string", m.Result.Kind().String())

	_, err = reg.Lookup("SalesView", "Total", 3)
	assert.ErrorIs(t, err, domain.ErrMissingMethod)
	_, err = reg.Lookup("Nope", "Total", 1)
	assert.ErrorIs(t, err, domain.ErrMissingMethod)
}

func TestDeclare_InvalidSignatures(t *testing.T) {
	bad := capability.Declare("Bad", "").
		Method("NoNode", func(x int) {}).
		Method("NotFunc", 12).
		Method("TooMany", func(n *operator.Node) (int, int) { return 0, 0 })

	err := capability.NewRegistry().Register(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoNode")
	assert.Contains(t, err.Error(), "NotFunc")
	assert.Contains(t, err.Error(), "TooMany")
}

func TestMethod_Call(t *testing.T) {
	tree := operator.NewTree("SalesView", nil)
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(capability.Declare("SalesView", "").
		Method("Echo", func(ctx context.Context, n *operator.Node, s string) (string, error) {
			return n.Handle() + ":" + s, nil
		}).
		Method("Fail", func(n *operator.Node) error { return errors.New("nope") })))

	m, err := reg.Lookup("SalesView", "Echo", 1)
	require.NoError(t, err)
	out, err := m.Call(context.Background(), tree.Root(), reflectArgs("x"))
	require.NoError(t, err)
	assert.Equal(t, "SalesView:x", out)

	_, err = m.Call(context.Background(), tree.Root(), reflectArgs(42))
	assert.ErrorIs(t, err, domain.ErrExecution)
	assert.Contains(t, err.Error(), "cannot use int as string")
	_, err = m.Call(context.Background(), tree.Root(), nil)
	assert.ErrorIs(t, err, domain.ErrExecution)

	m, err = reg.Lookup("SalesView", "Fail", 0)
	require.NoError(t, err)
	out, err = m.Call(context.Background(), tree.Root(), nil)
	assert.Nil(t, out)
	assert.EqualError(t, err, "nope")
}

func TestRebuildIfDirty_CachesAndNotifies(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(salesType()))

	var rebuilt []capability.Artifacts
	reg.OnRebuilt(func(a capability.Artifacts) { rebuilt = append(rebuilt, a) })

	first := reg.RebuildIfDirty("")
	second := reg.RebuildIfDirty("")
	assert.Equal(t, first, second)
	assert.Len(t, rebuilt, 1)

	third := reg.RebuildIfDirty("var Root = SalesView{handle: \"SalesView\"}")
	assert.Len(t, rebuilt, 2)
	assert.Contains(t, third.Prelude, "var Root = SalesView")

	require.NoError(t, reg.RegisterToolSet("crm", nil))
	reg.RebuildIfDirty("var Root = SalesView{handle: \"SalesView\"}")
	assert.Len(t, rebuilt, 3)
}

func TestRebuild_PreludeShape(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(salesType(), capability.Declare("OrderView", "One order")))

	a := reg.RebuildIfDirty("")
	p := a.Prelude

	assert.True(t, strings.HasSuffix(p, "//ason:body\n"))
	assert.Contains(t, p, "type SalesView struct{ handle string }")
	assert.Contains(t, p, "func (o SalesView) Total(region string) float64 {")
	assert.Contains(t, p, `host.Invoke("SalesView", "Total", o.handle, &out, region)`)
	assert.Contains(t, p, `host.Invoke("SalesView", "Refresh", o.handle, nil)`)
	assert.Contains(t, p, "func (o SalesView) OpenOrder(id int) OrderView {")
	assert.Contains(t, p, "return OrderView{handle: h}")
	assert.Contains(t, p, "func (o SalesView) Slow() string {")
	assert.Contains(t, p, "func (o SalesView) Orders(limit int) []Order {")

	// shapes are declared once, with json tags, skipping unexported and "-" fields
	assert.Equal(t, 1, strings.Count(p, "type Order struct {"))
	assert.Equal(t, 1, strings.Count(p, "type OrderLine struct {"))
	assert.Contains(t, p, "Quantity int `json:\"qty\"`")
	assert.Contains(t, p, "Placed time.Time `json:\"placed\"`")
	assert.NotContains(t, p, "internal")
	assert.NotContains(t, p, "Ignored")

	s := a.Signatures
	assert.Contains(t, s, "type SalesView // Sales dashboard")
	assert.Contains(t, s, "\tfunc (SalesView) Total(region string) float64 // Total sales for a region")
	assert.NotContains(t, s, "host.Invoke")
}

type Shape1 struct {
	Label string `json:"label"`
}

func TestRebuild_AnonymousShapesGetUnusedNames(t *testing.T) {
	type wrapper = struct {
		Inner struct {
			N int `json:"n"`
		} `json:"inner"`
	}
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(capability.Declare("Board", "").
		Method("Wrapped", func(n *operator.Node) wrapper { return wrapper{} }).
		Method("Labelled", func(n *operator.Node) Shape1 { return Shape1{} }).
		Method("Again", func(n *operator.Node) wrapper { return wrapper{} })))

	p := reg.RebuildIfDirty("").Prelude

	decls := regexp.MustCompile(`type (Shape\d+) struct \{`).FindAllStringSubmatch(p, -1)
	names := map[string]bool{}
	for _, d := range decls {
		names[d[1]] = true
	}
	assert.Len(t, decls, 3, p)
	assert.Len(t, names, 3, p)
	assert.Contains(t, p, "Label string `json:\"label\"`")
	assert.Contains(t, p, "N int `json:\"n\"`")
}
