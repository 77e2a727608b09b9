package domain

import "errors"

// Outcome is the result of one orchestration run.
type Outcome struct {
	Success bool
	// Result is the raw textual result. Nil when the script produced nothing.
	Result *string
	// Error carries the failure message when Success is false.
	Error    string
	Script   string
	Attempts int
	// Cause classifies the failure when a sentinel applies, e.g. ErrGenerationImpossible.
	Cause error
}

// Succeeded builds a successful outcome.
func Succeeded(result *string, script string, attempts int) Outcome {
	return Outcome{Success: true, Result: result, Script: script, Attempts: attempts}
}

// Failed builds an unsuccessful outcome.
func Failed(message, script string, attempts int) Outcome {
	return Outcome{Error: message, Script: script, Attempts: attempts}
}

// FailedWith builds an unsuccessful outcome classified by cause.
func FailedWith(cause error, message, script string, attempts int) Outcome {
	return Outcome{Error: message, Script: script, Attempts: attempts, Cause: cause}
}

// Err returns nil for a successful outcome. Otherwise the error reads as
// Error and unwraps to Cause.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	if o.Cause == nil {
		return errors.New(o.Error)
	}
	return &outcomeError{msg: o.Error, cause: o.Cause}
}

type outcomeError struct {
	msg   string
	cause error
}

func (e *outcomeError) Error() string { return e.msg }
func (e *outcomeError) Unwrap() error { return e.cause }

// ResultText returns the result or an empty string.
func (o Outcome) ResultText() string {
	if o.Result == nil {
		return ""
	}
	return *o.Result
}
