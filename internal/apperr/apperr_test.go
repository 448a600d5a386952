package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("update workflow: %w", Conflict("version mismatch", 3))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, 3, LatestOf(err))
}

func TestStorageUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("find invitation", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, "find invitation: connection reset", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Nil(t, LatestOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindForbidden:       http.StatusForbidden,
		KindExpired:         http.StatusGone,
		KindUnauthenticated: http.StatusUnauthorized,
		KindStorage:         http.StatusInternalServerError,
		KindUnknown:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), string(kind))
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindConflict.Retryable())
	assert.True(t, KindStorage.Retryable())
	assert.False(t, KindValidation.Retryable())
	assert.False(t, KindForbidden.Retryable())
}
