package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnauthorizedMatching(t *testing.T) {
	err := fmt.Errorf("callback: %w", ReauthRequired("u1", errors.New("refresh failed")))

	assert.True(t, IsUnauthorized(err))
	assert.True(t, IsReauthRequired(err))
	assert.True(t, errors.Is(err, ErrReauthRequired))
	assert.False(t, errors.Is(err, ErrNoCredential))
	assert.False(t, errors.Is(err, ErrInvalidSignature))
	assert.Contains(t, err.Error(), "refresh failed")

	noCred := NoCredential("u2")
	assert.True(t, errors.Is(noCred, ErrNoCredential))
	assert.False(t, IsReauthRequired(noCred))
	assert.Contains(t, noCred.Error(), "u2")
}

func TestInvalidArgument(t *testing.T) {
	err := InvalidArgument("meeting %q has no join_url", "123")
	assert.True(t, IsInvalidArgument(err))
	assert.Equal(t, `invalid argument: meeting "123" has no join_url`, err.Error())
}

func TestUpstreamError(t *testing.T) {
	err := fmt.Errorf("create bot: %w", Upstream("recall", 400, "bad meeting url"))
	var up *UpstreamError
	assert.True(t, errors.As(err, &up))
	assert.Equal(t, 400, StatusOf(err))
	assert.Equal(t, "recall", up.Service)
	assert.Contains(t, err.Error(), "recall returned 400: bad meeting url")

	timeout := Transport("zoom", context.DeadlineExceeded)
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
	assert.Equal(t, 0, StatusOf(timeout))
}

func TestRetryExhausted(t *testing.T) {
	last := Upstream("deposition", 401, "expired code")
	err := &RetryExhausted{Attempts: 3, Last: last}
	assert.Equal(t, 401, StatusOf(err))
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid argument", InvalidArgument("x"), http.StatusBadRequest},
		{"no credential", NoCredential("u"), http.StatusUnauthorized},
		{"signature", InvalidSignature("bad"), http.StatusUnauthorized},
		{"upstream", Upstream("s3", 500, ""), http.StatusBadGateway},
		{"exhausted", &RetryExhausted{Attempts: 3}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
