package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput marks tool arguments that cannot be decoded or validated.
	ErrMalformedInput = errors.New("malformed tool input")

	// ErrCallFailed marks failures of the service behind a tool.
	ErrCallFailed = errors.New("tool call failed")
)

// InputError describes rejected tool arguments. Its message is the text
// handed back to the model.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("Erreur parsing input JSON : %v", e.Err)
}

func (e *InputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}

func malformed(format string, args ...any) error {
	return &InputError{Err: fmt.Errorf(format, args...)}
}

// CallError describes a failed call to the service behind a tool. Its
// message is the text handed back to the model.
type CallError struct {
	Service string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("Erreur %s : %v", e.Service, e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrCallFailed, e.Err}
}

func callFailed(service string, err error) error {
	return &CallError{Service: service, Err: err}
}
