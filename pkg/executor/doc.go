// Package executor is the script side of the wire protocol. A Server reads
// exec requests, runs them in the sandbox and turns every host call made by
// the script into an invoke or invokeMcp request that the host answers.
//
// The same Server backs the ason-executor binary (stdio), container images
// and in-process sessions of the remote hub.
package executor
