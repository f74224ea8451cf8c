// Package expr compiles and evaluates the boolean validation rules attached
// to tool inputs.
package expr

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule is a compiled boolean expression with the message reported when it
// does not hold.
type Rule struct {
	Source  string
	Message string
	program *vm.Program
}

// Compile type-checks source against env and requires a boolean result.
// env maps variable names to values of the types they will hold at runtime.
func Compile(source, message string, env map[string]any) (*Rule, error) {
	if source == "" {
		return nil, fmt.Errorf("empty expression")
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expression compile error: %w", err)
	}
	if message == "" {
		message = fmt.Sprintf("condition %q not satisfied", source)
	}
	return &Rule{Source: source, Message: message, program: program}, nil
}

// ValidateSyntax checks that source parses without binding an environment.
func ValidateSyntax(source string) error {
	if source == "" {
		return fmt.Errorf("empty expression")
	}
	if _, err := expr.Compile(source); err != nil {
		return fmt.Errorf("invalid expression syntax: %w", err)
	}
	return nil
}

// Eval runs the rule against env and reports whether it holds.
func (r *Rule) Eval(env map[string]any) (bool, error) {
	if r == nil || r.program == nil {
		return false, fmt.Errorf("nil rule")
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("expression eval error for %q: %w", r.Source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", r.Source, out)
	}
	return b, nil
}

// Check returns an error carrying the rule message when the rule does not hold.
func (r *Rule) Check(env map[string]any) error {
	ok, err := r.Eval(env)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s", r.Message)
	}
	return nil
}
