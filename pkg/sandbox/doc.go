/*
Package sandbox interprets generated Go scripts with yaegi.

A script is a statement list. It is assembled together with the generated
prelude into a program defining func run() any, then evaluated by an
interpreter that only sees an allow-list of standard library packages plus
the bridge package "ason/host":

	host.Invoke(target, method, handle string, out any, args ...any)
	host.InvokeTool(server, tool string, args map[string]any) any
	host.Optional(args map[string]any, key string, v any)
	host.Log(level, message string)

Bridge failures panic inside the script; the panic surfaces as the script's
execution error. This is a best-effort sandbox, not a security boundary.
*/
package sandbox
