package errors_test

import (
	stderrors "errors"
	"testing"

	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "nothing"))

	err := apperrors.Wrapf(apperrors.ErrNotFound, "[Store.SwitchActive] %s", "wipimo-prod")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, "[Store.SwitchActive] wipimo-prod: connection not found", err.Error())
}

func TestPersistence(t *testing.T) {
	require.NoError(t, apperrors.Persistence(nil, "noop"))

	cause := stderrors.New("connection refused")
	err := apperrors.Persistence(cause, "[Repo.Update] session %s", "abc")
	require.True(t, apperrors.Is(err, apperrors.ErrPersistence))
	require.True(t, apperrors.Is(err, cause))
	require.Contains(t, err.Error(), "session abc")
}
