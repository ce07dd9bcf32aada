package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefold/nodefold/pkg/schema"
)

func TestCompileAndEval(t *testing.T) {
	cond, err := Compile("live >= 8 || idle_seconds > 30")
	require.NoError(t, err)
	assert.Equal(t, "live >= 8 || idle_seconds > 30", cond.Source())

	got, err := cond.Eval(map[string]any{"live": 3, "idle_seconds": 45.0})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = cond.Eval(map[string]any{"live": 3, "idle_seconds": 2.0})
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCompile_EmptyExpression(t *testing.T) {
	_, err := Compile("")
	require.Error(t, err)

	var fe *schema.FoldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("live >=")
	require.Error(t, err)

	var fe *schema.FoldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestCompile_NonBooleanRejected(t *testing.T) {
	// AsBool makes a non-boolean expression a compile error.
	_, err := Compile("live + 1")
	require.Error(t, err)
}

func TestEval_UndefinedVariablesAllowed(t *testing.T) {
	cond, err := Compile("archived_total != nil && archived_total > 100")
	require.NoError(t, err)

	// A stats field this build does not emit resolves to nil; the guard
	// keeps the condition false instead of erroring.
	got, err := cond.Eval(map[string]any{"live": 1})
	require.NoError(t, err)
	assert.False(t, got)

	got, err = cond.Eval(map[string]any{"archived_total": 150})
	require.NoError(t, err)
	assert.True(t, got)
}
