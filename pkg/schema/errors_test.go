package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeNotFound, "node %q not live", "n-1")
	assert.Equal(t, `[NOT_FOUND] node "n-1" not live`, err.Error())

	withNode := NewError(ErrCodeInvalidTransition, "archived is terminal").WithNode("n-2")
	assert.Equal(t, "[INVALID_TRANSITION] node n-2: archived is terminal", withNode.Error())
}

func TestFoldError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "append history entry").WithCause(cause)

	require.ErrorIs(t, err, cause)

	var fe *FoldError
	require.ErrorAs(t, error(err), &fe)
	assert.Equal(t, ErrCodeStore, fe.Code)
}

func TestFoldError_Details(t *testing.T) {
	err := NewError(ErrCodeValidation, "bad scene").
		WithDetails(map[string]any{"path": "/nodes/0/kind"})
	assert.Equal(t, "/nodes/0/kind", err.Details["path"])
}
