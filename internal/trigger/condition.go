// Package trigger evaluates auto-collapse condition expressions against
// engine stats, e.g. `live >= 8 || idle_seconds > 30`.
package trigger

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Condition is a compiled boolean expression over a stats environment.
// Thread-safe: the compiled *vm.Program is immutable and reused across
// goroutines.
type Condition struct {
	source string
	prg    *vm.Program
}

// Compile parses and compiles a condition expression. Variables referenced
// by the expression are resolved from the environment passed to Eval;
// undefined variables are allowed so conditions stay forward-compatible
// with new stats fields.
func Compile(expression string) (*Condition, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty trigger expression")
	}

	prg, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"trigger compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return &Condition{source: expression, prg: prg}, nil
}

// Source returns the original expression text.
func (c *Condition) Source() string {
	return c.source
}

// Eval runs the condition against the given environment.
func (c *Condition) Eval(env map[string]any) (bool, error) {
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(c.prg, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"trigger evaluation failed for %q: %s", c.source, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": c.source})
	}

	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"trigger %q did not evaluate to a boolean", c.source)
	}
	return b, nil
}
