package serrors

import (
	"fmt"
	"testing"

	gerrors "github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
)

func TestBaseError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	sentinel := NewError("IMPORT_DECODE", "file could not be decoded", "")
	wrapped := fmt.Errorf("%w: missing header", sentinel)
	require.ErrorIs(t, wrapped, sentinel)
	require.ErrorIs(t, gerrors.Wrap(wrapped, "decode"), sentinel)

	other := NewError("IMPORT_CANCELLED", "import cancelled", "")
	require.NotErrorIs(t, wrapped, other)
}

func TestCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", NewError("X", "x", ""))
	require.Equal(t, "X", Code(err))
	require.Equal(t, "", Code(fmt.Errorf("plain")))
	require.Equal(t, "", Code(nil))
}
