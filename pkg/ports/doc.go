/*
Package ports defines the driven ports (interfaces) of the ason runtime.

These interfaces decouple orchestration from the concrete text generator,
the script executor, the transport carrying protocol lines and the store
backing the remote session directory.

# Key Interfaces

  - Generator: produces text completions (scripts, explanations).
  - Executor: runs a script and returns its raw result text.
  - Transport: carries newline-delimited protocol messages to an executor.
  - Scheduler: runs operator calls on the host's execution context.
  - Validator: rejects scripts before execution.
  - SessionDirectory: records live remote sessions (memory or Redis).
*/
package ports
