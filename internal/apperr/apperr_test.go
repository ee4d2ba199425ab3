package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(BadInput, "missing field")
	assert.Equal(t, "missing field", err.Error())
	assert.Equal(t, BadInput, KindOf(err))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(StoreError, "write segment", cause)

	assert.Equal(t, "write segment: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, StoreError))
	assert.False(t, Is(err, BadInput))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("unknown")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		BadInput:           http.StatusBadRequest,
		NoInputs:           http.StatusBadRequest,
		InvalidQuery:       http.StatusBadRequest,
		NotFound:           http.StatusNotFound,
		Conflict:           http.StatusConflict,
		InvalidRange:       http.StatusRequestedRangeNotSatisfiable,
		TranscodeFailed:    http.StatusInternalServerError,
		Internal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(kind), "kind=%s", kind)
	}
}
