// Package demo is a small console back office (customers and orders) used by
// the ason command to show scripts driving a live application.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/capability"
	"github.com/aretw0/ason/pkg/operator"
)

const (
	RootKind      = "MainOperator"
	CustomersKind = "CustomersOperator"
	OrdersKind    = "OrdersOperator"
)

type Customer struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Order struct {
	OrderID     int       `json:"orderId"`
	Customer    Customer  `json:"customer"`
	OrderDate   time.Time `json:"orderDate"`
	TotalAmount float64   `json:"totalAmount"`
}

// Customers is the customers module; created on first navigation.
type Customers struct {
	mu    sync.Mutex
	items []Customer
}

func (m *Customers) List() []Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

func (m *Customers) Add(c Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, c)
}

func (m *Customers) Edit(c Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == c.ID {
			m.items[i] = c
			return
		}
	}
}

func (m *Customers) Delete(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.DeleteFunc(m.items, func(c Customer) bool { return c.ID == id })
}

// Orders is the orders module; created on first navigation.
type Orders struct {
	mu    sync.Mutex
	items []Order
}

func (m *Orders) List() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

func (m *Orders) Add(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, o)
}

func (m *Orders) Edit(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].OrderID == o.OrderID {
			m.items[i] = o
			return
		}
	}
}

func (m *Orders) Delete(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.DeleteFunc(m.items, func(o Order) bool { return o.OrderID == id })
}

// App owns the modules and the operator tree that exposes them.
type App struct {
	tree   *operator.Tree
	logger *slog.Logger

	mu        sync.Mutex
	customers *Customers
	orders    *Orders
}

// New creates the application with its root operator attached.
func New(logger *slog.Logger, opts ...operator.Option) *App {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &App{logger: logger}
	a.tree = operator.NewTree(RootKind, a, opts...)
	return a
}

func (a *App) Tree() *operator.Tree { return a.tree }

// NavigateTo shows a module, creating it on first use. Showing a module
// attaches its operator, which is what a pending Reload waits for.
func (a *App) NavigateTo(module string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch module {
	case CustomersKind:
		if a.customers == nil {
			a.customers = &Customers{items: seedCustomers()}
		}
		a.tree.Attach(nil, CustomersKind, "", a.customers)
	case OrdersKind:
		if a.orders == nil {
			a.orders = &Orders{items: seedOrders()}
		}
		a.tree.Attach(nil, OrdersKind, "", a.orders)
	default:
		return fmt.Errorf("unknown module %q", module)
	}
	a.logger.Debug("navigated", "module", module)
	return nil
}

// Capabilities declares the operator types scripts can use.
func (a *App) Capabilities() []*capability.Type {
	open := func(kind string) func(ctx context.Context, n *operator.Node) (*operator.Node, error) {
		return func(ctx context.Context, n *operator.Node) (*operator.Node, error) {
			return n.Open(ctx, kind, "", func(ctx context.Context) error {
				return a.NavigateTo(kind)
			})
		}
	}

	return []*capability.Type{
		capability.Declare(RootKind, "Main window of the back office").
			Method("GetCustomersOperator", open(CustomersKind), capability.Opens(CustomersKind)).
			Method("GetOrdersOperator", open(OrdersKind), capability.Opens(OrdersKind)),

		capability.Declare(CustomersKind, "Customers module").
			Method("GetCustomers", func(n *operator.Node) []Customer {
				return n.Object().(*Customers).List()
			}, capability.Describe("Returns a list of existing customers")).
			Method("AddCustomer", func(n *operator.Node, c Customer) {
				n.Object().(*Customers).Add(c)
			}, capability.Params("customer")).
			Method("EditCustomer", func(n *operator.Node, c Customer) {
				n.Object().(*Customers).Edit(c)
			}, capability.Params("customer")).
			Method("DeleteCustomer", func(n *operator.Node, id int) {
				n.Object().(*Customers).Delete(id)
			}, capability.Params("customerId")),

		capability.Declare(OrdersKind, "Orders module").
			Method("GetOrders", func(n *operator.Node) []Order {
				return n.Object().(*Orders).List()
			}, capability.Describe("Returns a list of all orders")).
			Method("AddOrder", func(n *operator.Node, o Order) {
				n.Object().(*Orders).Add(o)
			}, capability.Params("order")).
			Method("EditOrder", func(n *operator.Node, o Order) {
				n.Object().(*Orders).Edit(o)
			}, capability.Params("order")).
			Method("DeleteOrder", func(n *operator.Node, id int) {
				n.Object().(*Orders).Delete(id)
			}, capability.Params("orderId")),
	}
}

func seedCustomers() []Customer {
	return []Customer{
		{ID: 1, Name: "Alice Johnson", Email: "alice@example.com"},
		{ID: 2, Name: "Bob Smith", Email: "bob.smith@example.com"},
		{ID: 3, Name: "Carol Davis", Email: "carol.davis@example.com"},
	}
}

func seedOrders() []Order {
	c := seedCustomers()
	return []Order{
		{OrderID: 1001, Customer: c[0], OrderDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), TotalAmount: 250.75},
		{OrderID: 1002, Customer: c[1], OrderDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), TotalAmount: 99.99},
		{OrderID: 1003, Customer: c[2], OrderDate: time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), TotalAmount: 560.40},
	}
}
