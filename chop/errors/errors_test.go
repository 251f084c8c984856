package errors

import (
	"fmt"
	"testing"

	goerrors "errors"

	"github.com/stretchr/testify/require"
)

func TestCodeOfSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{ErrInvalidArg, CodeInvalidArg},
		{ErrNotImpl, CodeNotImpl},
		{ErrStreamEnd, CodeStreamEnd},
		{ErrStoreEnd, CodeStoreEnd},
		{ErrBlockUnavailable, CodeBlockUnavailable},
		{ErrStoreError, CodeStoreError},
		{ErrIntegrityError, CodeIntegrityError},
		{ErrEmptySource, CodeEmptySource},
		{ErrDeserializeError, CodeDeserializeError},
		{nil, CodeOk},
	}
	for _, c := range cases {
		require.Equal(t, c.code, CodeOf(c.err))
	}
}

func TestCodeOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("reading block 42: %w", ErrIntegrityError)
	require.Equal(t, CodeIntegrityError, CodeOf(wrapped))
	require.True(t, goerrors.Is(wrapped, ErrIntegrityError))
}

func TestCodeOfUnrecognizedFallsBackToStoreError(t *testing.T) {
	require.Equal(t, CodeStoreError, CodeOf(goerrors.New("some I/O fault")))
}

func TestIsFlowControl(t *testing.T) {
	require.True(t, IsFlowControl(ErrStreamEnd))
	require.True(t, IsFlowControl(ErrStoreEnd))
	require.False(t, IsFlowControl(ErrIntegrityError))
	require.False(t, IsFlowControl(nil))
}
