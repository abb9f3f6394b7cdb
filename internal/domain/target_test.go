package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"https", "https://example.com/a", false},
		{"http upper case scheme", "HTTP://example.com", false},
		{"surrounding spaces", "  https://example.com  ", false},
		{"missing", "", true},
		{"ftp", "ftp://example.com/file", true},
		{"javascript", "javascript:alert(1)", true},
		{"file", "file:///etc/passwd", true},
		{"no scheme", "example.com", true},
		{"no host", "https://", true},
		{"malformed", "http://[::1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := ParseTarget(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				var inputErr *InputError
				assert.True(t, errors.As(err, &inputErr))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, u)
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
	}{
		{"https://Example.COM", "https://example.com/"},
		{"HTTPS://example.com:443/a?b=1#frag", "https://example.com/a?b=1"},
		{"http://example.com:80/", "http://example.com/"},
		{"http://example.com:8080/x", "http://example.com:8080/x"},
		{"https://user:pw@example.com/", "https://example.com/"},
		{"http://[::1]:80/", "http://[::1]/"},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := ParseTarget(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, NormalizeTarget(u))
		})
	}
}

func TestCacheKey_IsPerClient(t *testing.T) {
	u, err := ParseTarget("https://example.com")
	require.NoError(t, err)
	assert.NotEqual(t, CacheKey("1.1.1.1", u), CacheKey("2.2.2.2", u))
	assert.Equal(t, "1.1.1.1|https://example.com/", CacheKey("1.1.1.1", u))
}

func TestFetchError_Kind(t *testing.T) {
	err := &FetchError{Kind: FetchContentType, URL: "https://example.com", Err: ErrUnsupportedContentType}
	assert.True(t, IsFetchKind(err, FetchContentType))
	assert.False(t, IsFetchKind(err, FetchTimeout))
	assert.True(t, errors.Is(err, ErrUnsupportedContentType))
}
