package operator

import (
	"context"
	"sync"
	"time"
)

// Node is one addressable object of the host application.
type Node struct {
	tree   *Tree
	parent *Node // not owned; nil for the root

	kind   string
	id     string
	handle string

	mu          sync.Mutex
	object      any
	initialized bool
	reopen      ReopenFunc
}

// Handle is the unique address of the node: its kind followed by its id.
func (n *Node) Handle() string { return n.handle }

// Kind is the capability type name that selects the node's methods.
func (n *Node) Kind() string { return n.kind }

// ID distinguishes nodes of the same kind; empty for singletons.
func (n *Node) ID() string { return n.id }

// Parent returns the node that opened n, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Tree returns the tree that owns n.
func (n *Node) Tree() *Tree { return n.tree }

// IsRoot reports whether n is the root of its tree.
func (n *Node) IsRoot() bool { return n.parent == nil }

// Object returns the attached object, or nil while detached.
func (n *Node) Object() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.object
}

// Initialized reports whether an object is currently attached.
func (n *Node) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.initialized
}

// Open resolves and reloads a child of n.
func (n *Node) Open(ctx context.Context, kind, id string, reopen ReopenFunc) (*Node, error) {
	return n.tree.Open(ctx, n, kind, id, reopen)
}

// Reload makes sure the node is attached.
//
// An attached node only has its reopen action invoked. A detached node
// registers a waiter, invokes reopen and blocks until Tree.Attach is called for
// its handle, the reload timeout expires (domain.ErrReloadTimeout) or ctx is done.
func (n *Node) Reload(ctx context.Context) error {
	n.mu.Lock()
	initialized := n.initialized
	reopen := n.reopen
	n.mu.Unlock()

	if initialized {
		if reopen == nil {
			return nil
		}
		return reopen(ctx)
	}

	t := n.tree
	w := t.waiterFor(n.handle)
	if n.Initialized() {
		// attached between the check above and the waiter registration
		t.dropWaiter(n.handle, w)
		return nil
	}

	if reopen != nil {
		if err := reopen(ctx); err != nil {
			t.dropWaiter(n.handle, w)
			return err
		}
	}

	timer := time.NewTimer(t.reloadTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		t.dropWaiter(n.handle, w)
		t.logger.Warn("operator reload timed out", "handle", n.handle, "timeout", t.reloadTimeout)
		return reloadTimeoutError(n.handle, t.reloadTimeout)
	case <-ctx.Done():
		t.dropWaiter(n.handle, w)
		return ctx.Err()
	}
}
