/*
Package runner is the host side of script execution.

A Client executes scripts either in-process (the sandbox calls the dispatcher
directly) or through a ports.Transport that carries protocol messages to an
executor living in a child process, a container or a remote hub. In transport
mode the Client owns the pending-call table: every exec request waits on its
own slot keyed by correlation id, and invoke requests coming back from the
executor are dispatched to the host and answered with the same id.
*/
package runner
