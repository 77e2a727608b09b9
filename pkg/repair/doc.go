// Package repair turns a natural-language task into a script result. It asks
// a generator for Go statements, cleans and validates the reply, executes it
// and, on failure, asks again with the error and the previous script, up to a
// bounded number of attempts.
package repair
