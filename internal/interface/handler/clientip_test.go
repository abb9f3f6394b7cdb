package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPResolver_Resolve(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.168.1.1"}, "")
	require.NoError(t, err)

	testCases := []struct {
		name      string
		remote    string
		forwarded []string
		want      string
	}{
		{"direct client", "203.0.113.5:1234", nil, "203.0.113.5"},
		{"untrusted peer header ignored", "203.0.113.5:1234", []string{"1.1.1.1"}, "203.0.113.5"},
		{"trusted peer single hop", "10.1.2.3:80", []string{"198.51.100.2"}, "198.51.100.2"},
		{"skips trusted hops", "10.1.2.3:80", []string{"198.51.100.2, 192.168.1.1, 10.9.9.9"}, "198.51.100.2"},
		{"rightmost untrusted wins", "10.1.2.3:80", []string{"6.6.6.6, 198.51.100.2"}, "198.51.100.2"},
		{"multiple header lines", "10.1.2.3:80", []string{"6.6.6.6", "198.51.100.2"}, "198.51.100.2"},
		{"garbage stops walk", "10.1.2.3:80", []string{"nonsense"}, "10.1.2.3"},
		{"all trusted", "10.1.2.3:80", []string{"10.0.0.9"}, "10.1.2.3"},
		{"trusted without header", "192.168.1.1:80", nil, "192.168.1.1"},
		{"ipv6 remote", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"no port", "203.0.113.9", nil, "203.0.113.9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/fetch", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tc.want, resolver.Resolve(req))
		})
	}
}

func TestClientIPResolver_CustomHeader(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"127.0.0.1"}, "x-real-ip")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/fetch", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("X-Real-IP", "198.51.100.4")
	req.Header.Set("X-Forwarded-For", "6.6.6.6")
	assert.Equal(t, "198.51.100.4", resolver.Resolve(req))
}

func TestNewClientIPResolver_InvalidEntry(t *testing.T) {
	_, err := NewClientIPResolver([]string{"not-an-ip"}, "")
	assert.Error(t, err)

	_, err = NewClientIPResolver([]string{"10.0.0.0/99"}, "")
	assert.Error(t, err)
}
