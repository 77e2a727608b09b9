package operator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
)

// DefaultReloadTimeout bounds how long Reload waits for the host to attach.
const DefaultReloadTimeout = 40 * time.Second

// ReopenFunc asks the host to show (or re-show) the view behind a node.
// The host answers asynchronously by calling Tree.Attach.
type ReopenFunc func(ctx context.Context) error

// Tree owns every node, keyed by handle.
type Tree struct {
	root *Node

	mu      sync.RWMutex
	nodes   map[string]*Node
	waiters map[string]*waiter

	reloadTimeout time.Duration
	logger        *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithReloadTimeout overrides DefaultReloadTimeout.
func WithReloadTimeout(d time.Duration) Option {
	return func(t *Tree) {
		if d > 0 {
			t.reloadTimeout = d
		}
	}
}

// WithLogger configures a logger for attach/reload events.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// NewTree creates a tree whose root is already attached to object.
// The root handle is kind.
func NewTree(kind string, object any, opts ...Option) *Tree {
	t := &Tree{
		nodes:         make(map[string]*Node),
		waiters:       make(map[string]*waiter),
		reloadTimeout: DefaultReloadTimeout,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.root = &Node{tree: t, kind: kind, handle: Handle(kind, ""), object: object, initialized: true}
	t.nodes[t.root.handle] = t.root
	return t
}

// Handle builds the handle of a node: the kind followed by the optional id.
func Handle(kind, id string) string {
	return kind + id
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Lookup finds a node by handle.
func (t *Tree) Lookup(handle string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[handle]
	return n, ok
}

// Remove drops a node from the tree. Removing the root is ignored.
func (t *Tree) Remove(handle string) {
	if handle == t.root.handle {
		return
	}
	t.mu.Lock()
	delete(t.nodes, handle)
	t.mu.Unlock()
}

// Attach binds object to the node kind+id, creating it under parent (the root
// when nil) if needed. A pending Reload for the handle is released.
func (t *Tree) Attach(parent *Node, kind, id string, object any) *Node {
	handle := Handle(kind, id)

	t.mu.Lock()
	n, ok := t.nodes[handle]
	if !ok {
		n = t.newNodeLocked(parent, kind, id)
	}
	n.mu.Lock()
	n.object = object
	n.initialized = true
	n.mu.Unlock()

	w, waiting := t.waiters[handle]
	if waiting {
		delete(t.waiters, handle)
	}
	t.mu.Unlock()

	if waiting {
		close(w.done)
	}
	t.logger.Debug("operator attached", "handle", handle, "created", !ok)
	return n
}

// Detach clears the object of kind+id. Unknown handles are ignored.
func (t *Tree) Detach(kind, id string) {
	handle := Handle(kind, id)
	n, ok := t.Lookup(handle)
	if !ok {
		return
	}
	n.mu.Lock()
	n.object = nil
	n.initialized = false
	n.mu.Unlock()
	t.logger.Debug("operator detached", "handle", handle)
}

// Resolve returns the node kind+id, lazily creating an uninitialized node
// under parent. A non-nil reopen replaces the node's reopen action.
func (t *Tree) Resolve(parent *Node, kind, id string, reopen ReopenFunc) *Node {
	handle := Handle(kind, id)

	t.mu.Lock()
	n, ok := t.nodes[handle]
	if !ok {
		n = t.newNodeLocked(parent, kind, id)
	}
	t.mu.Unlock()

	if reopen != nil {
		n.mu.Lock()
		n.reopen = reopen
		n.mu.Unlock()
	}
	return n
}

// Open resolves the node and reloads it, returning once the host attached it.
func (t *Tree) Open(ctx context.Context, parent *Node, kind, id string, reopen ReopenFunc) (*Node, error) {
	n := t.Resolve(parent, kind, id, reopen)
	if err := n.Reload(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tree) newNodeLocked(parent *Node, kind, id string) *Node {
	if parent == nil {
		parent = t.root
	}
	n := &Node{tree: t, parent: parent, kind: kind, id: id, handle: Handle(kind, id)}
	t.nodes[n.handle] = n
	return n
}

// waiter is shared by every Reload pending on one handle.
type waiter struct {
	done chan struct{}
	refs int
}

// waiterFor joins the waiter released by the next Attach of handle.
func (t *Tree) waiterFor(handle string) *waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.waiters[handle]
	if !ok {
		w = &waiter{done: make(chan struct{})}
		t.waiters[handle] = w
	}
	w.refs++
	return w
}

// dropWaiter leaves w. The entry is removed once its last Reload gives up, so
// other reloaders of the handle are still released by Attach.
func (t *Tree) dropWaiter(handle string, w *waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w.refs--
	if cur, ok := t.waiters[handle]; ok && cur == w && w.refs == 0 {
		delete(t.waiters, handle)
	}
}

func reloadTimeoutError(handle string, d time.Duration) error {
	return fmt.Errorf("%w: %s was not attached within %s. Make sure the host calls Tree.Attach when the object associated with the operator is loaded",
		domain.ErrReloadTimeout, handle, d)
}
