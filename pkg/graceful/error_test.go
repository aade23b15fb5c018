package graceful

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestMapAndWrapErr(t *testing.T) {
	RegisterErrorMap(map[error]ErrorMapEntry{
		errSentinel: {Code: CodeRejectedCommand, Message: "nope"},
	})

	t.Run("registered sentinel maps through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", errSentinel)
		ce := MapAndWrapErr(wrapped, "fallback", CodePersistence)
		assert.Equal(t, CodeRejectedCommand, ce.Code)
		assert.Equal(t, "nope", ce.Message)
		assert.ErrorIs(t, ce, errSentinel)
	})

	t.Run("unregistered error falls back", func(t *testing.T) {
		ce := MapAndWrapErr(errors.New("mystery"), "fallback", CodePersistence)
		assert.Equal(t, CodePersistence, ce.Code)
		assert.Equal(t, "fallback", ce.Message)
	})
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, CodeRejectedCommand.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, CodeProvider.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeAggregateConflict.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodePersistence.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeUnknown.HTTPStatus())
}

func TestContextErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	ce := WrapErr(CodeProvider, "provider failed", cause)
	require.ErrorIs(t, ce, cause)
	assert.Contains(t, ce.Error(), "provider failed")
	assert.Contains(t, ce.Error(), "root cause")
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")
	assert.Equal(t, "req-7", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
