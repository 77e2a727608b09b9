// Package protocol defines the newline-delimited JSON messages exchanged
// between a host and a script executor, regardless of the transport that
// carries them.
//
// Every message has a "type" discriminator and a correlation "id". Requests
// (exec, invoke, invokeMcp) are answered by a result message with the same id;
// log messages are fire-and-forget.
package protocol
