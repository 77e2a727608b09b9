/*
Package domain contains the core types shared by every ason component.

It is kept free of I/O and transport concerns, following Hexagonal Architecture
principles: adapters and the runtime depend on domain, never the other way round.

# Key Entities

  - ExecutionMode: where a script runs (in-process, child process, container).
  - Outcome: the immutable result of one generate-validate-execute-repair run.
  - ToolDescriptor: metadata about a tool exposed by an external tool server.
  - Sentinel errors: the failure taxonomy checked with errors.Is.
*/
package domain
