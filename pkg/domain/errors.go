package domain

import "errors"

// ErrGenerationImpossible is returned when the generator declares the task cannot be scripted.
var ErrGenerationImpossible = errors.New("generation impossible")

// ErrValidation is returned when a script is rejected before execution.
var ErrValidation = errors.New("script validation failed")

// ErrExecution is returned when a script fails at runtime.
var ErrExecution = errors.New("script execution failed")

// ErrReloadTimeout is returned when an operator is not re-attached within the reload timeout.
var ErrReloadTimeout = errors.New("operator loading timeout")

// ErrDisposed is returned when an invocation targets a handle that is unknown or detached.
var ErrDisposed = errors.New("operator disposed")

// ErrMissingMethod is returned when no registered method matches the name and argument count.
var ErrMissingMethod = errors.New("missing method")

// ErrInvocationCancelled is returned when the host vetoes an invocation.
// Its text travels over the wire and is matched by the repair loop.
var ErrInvocationCancelled = errors.New("Task was cancelled") //nolint:staticcheck // matched verbatim across the wire

// ErrTransportNotStarted is returned when a message is sent before Start.
var ErrTransportNotStarted = errors.New("transport not started")

// ErrTransportClosed is returned when the peer went away while a call was pending.
var ErrTransportClosed = errors.New("transport closed")

// ErrToolServerNotFound is returned when a tool call names an unregistered server.
var ErrToolServerNotFound = errors.New("tool server not found")

// ErrProxiesNotInitialized is returned when a script is executed before the surface was generated.
var ErrProxiesNotInitialized = errors.New("Proxies not initialized") //nolint:staticcheck // surfaced verbatim in outcomes

// ErrSessionExists is returned when a remote session is created twice for one connection.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionNotFound is returned when a session ID cannot be found.
var ErrSessionNotFound = errors.New("session not found")
