package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewError_KnownCode(t *testing.T) {
	req := require.New(t)

	err := NewError(ErrMessageNotFound)

	req.Equal(ErrMessageNotFound, err.Code)
	req.Equal(KindNotFound, err.Kind)
	req.Equal(http.StatusNotFound, err.Status)
}

func TestNewError_DefaultsStatusToBadRequest(t *testing.T) {
	err := NewError(ErrEmptyMessage)

	require.Equal(t, http.StatusBadRequest, err.Status)
}

func TestNewError_UnknownCodeFallsBack(t *testing.T) {
	err := NewError(424242)

	require.Equal(t, ErrUnknown, err.Code)
	require.Equal(t, KindInternal, err.Kind)
}

func TestNewError_FormatsDetails(t *testing.T) {
	err := NewError(ErrGroupTooSmall, 2)

	require.Equal(t, "A group needs at least 2 members.", err.Message)
}

func TestWrap_KeepsCause(t *testing.T) {
	req := require.New(t)

	err := Wrap(ErrStoreUnavailable, context.DeadlineExceeded)

	req.ErrorIs(err, context.DeadlineExceeded)
	req.True(HasCode(err, ErrStoreUnavailable))
	req.Equal(KindStoreUnavailable, KindOf(err))
}

func TestFrom(t *testing.T) {
	req := require.New(t)

	coded := NewError(ErrStatusConflict)
	req.Same(coded, From(fmt.Errorf("advance: %w", coded)))

	plain := errors.New("boom")
	converted := From(plain)
	req.Equal(ErrUnknown, converted.Code)
	req.ErrorIs(converted, plain)

	req.Nil(From(nil))
}
