package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDerivesStatusCodePerKind(t *testing.T) {
	cases := map[Kind]int{
		InvalidRequest:      http.StatusBadRequest,
		Timeout:             http.StatusGatewayTimeout,
		PoolExhausted:       http.StatusServiceUnavailable,
		ConnectFailed:       http.StatusServiceUnavailable,
		UpstreamUnavailable: http.StatusBadGateway,
		QueryFailed:         http.StatusInternalServerError,
		Cancelled:           http.StatusRequestTimeout,
		ShuttingDown:        http.StatusServiceUnavailable,
		Internal:            http.StatusInternalServerError,
	}
	for kind, status := range cases {
		e := New(kind, "boom")
		assert.Equal(t, status, e.StatusCode, "kind=%s", kind)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("dial failed")
	e := New(ConnectFailed, "could not connect").WithCause(cause)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "dial failed")
}

func TestWithDetailsAttachesKeyValue(t *testing.T) {
	e := New(Internal, "oops").WithDetails("session_id", "abc")
	assert.Equal(t, "abc", e.Details["session_id"])
}

func TestIsMatchesKindOnly(t *testing.T) {
	e := New(Timeout, "too slow")
	assert.True(t, Is(e, Timeout))
	assert.False(t, Is(e, Cancelled))
	assert.False(t, Is(errors.New("plain"), Timeout))
}

func TestKindOfDefaultsToInternalForNonApiErr(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.Equal(t, PoolExhausted, KindOf(New(PoolExhausted, "full")))
}

func TestToResponseNeverLeaksStack(t *testing.T) {
	e := New(QueryFailed, "query failed").WithCause(errors.New("syntax error near SELECT"))
	resp, status := ToResponse(e, "req-123")

	assert.Equal(t, "QUERY_FAILED", resp.ErrorKind)
	assert.Equal(t, "req-123", resp.RequestID)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestToResponseWrapsPlainErrorAsInternal(t *testing.T) {
	resp, status := ToResponse(errors.New("unexpected"), "req-456")
	assert.Equal(t, "INTERNAL", resp.ErrorKind)
	assert.Equal(t, http.StatusInternalServerError, status)
}
