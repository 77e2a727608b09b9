// Package dispatch executes operator invocations requested by scripts.
//
// A call names an operator handle, a method and loosely typed arguments. The
// Dispatcher resolves the handle in the operator.Tree, finds the method in the
// capability.Registry by name and argument count, coerces the arguments to the
// declared parameter types, reloads the node and runs the method on the host's
// execution context (a ports.Scheduler). Tool calls are routed to external
// tool servers through a ToolInvoker.
package dispatch
