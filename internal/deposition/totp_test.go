package deposition

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the RFC 6238 SHA1 seed "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPSourceMatchesRFCVectors(t *testing.T) {
	s := NewTOTPSource(rfcSecret)

	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}
	for _, tt := range tests {
		got, err := s.CodeAt(time.Unix(tt.unix, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "t=%d", tt.unix)
	}
}

func TestTOTPSourceUsesClock(t *testing.T) {
	s := NewTOTPSource(rfcSecret)
	s.now = func() time.Time { return time.Unix(59, 0) }

	code, err := s.Code(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestTOTPSourceInvalidSecret(t *testing.T) {
	_, err := NewTOTPSource("not base32!").Code(context.Background())
	assert.Error(t, err)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 30*time.Second, Remaining(time.Unix(60, 0)))
	assert.Equal(t, 1*time.Second, Remaining(time.Unix(89, 0)))
}

func TestCommandSource(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on echo")
	}

	s, err := NewCommandSource("echo 123456")
	require.NoError(t, err)
	code, err := s.Code(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	s, err = NewCommandSource("echo 12ab56")
	require.NoError(t, err)
	_, err = s.Code(context.Background())
	assert.ErrorContains(t, err, "invalid totp code format")

	s, err = NewCommandSource("/nonexistent/totp-generator")
	require.NoError(t, err)
	_, err = s.Code(context.Background())
	assert.Error(t, err)
}

func TestNewCommandSourceEmpty(t *testing.T) {
	_, err := NewCommandSource("   ")
	assert.Error(t, err)
}
