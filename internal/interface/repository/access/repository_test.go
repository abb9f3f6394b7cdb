package access

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlocklist(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRepository_EmptyFileNameBlocksNothing(t *testing.T) {
	repo, err := New("", nil)
	require.NoError(t, err)

	assert.True(t, repo.IsHostAllowed("example.com"))
	assert.False(t, repo.IsIPBlocked(net.ParseIP("8.8.8.8")))
	assert.NoError(t, repo.Reload())
}

func TestRepository_MissingFileBlocksNothing(t *testing.T) {
	repo, err := New(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.True(t, repo.IsHostAllowed("example.com"))
}

func TestRepository_Domains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	writeBlocklist(t, path, `
blocked_domains:
  - Evil.example
  - "*.internal.corp"
blocked_ips:
  - 203.0.113.7
  - 198.51.100.0/24
`)

	repo, err := New(path, nil)
	require.NoError(t, err)

	testCases := []struct {
		host    string
		allowed bool
	}{
		{"evil.example", false},
		{"EVIL.example.", false},
		{"sub.evil.example", true},
		{"api.internal.corp", false},
		{"a.b.internal.corp", false},
		{"internal.corp", true},
		{"example.com", true},
		{"203.0.113.7", false},
		{"198.51.100.99", false},
		{"198.51.101.1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.host, func(t *testing.T) {
			assert.Equal(t, tc.allowed, repo.IsHostAllowed(tc.host))
		})
	}

	assert.True(t, repo.IsIPBlocked(net.ParseIP("198.51.100.1")))
	assert.False(t, repo.IsIPBlocked(net.ParseIP("198.51.99.1")))
}

func TestRepository_InvalidEntryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	writeBlocklist(t, path, "blocked_ips:\n  - not-an-ip\n")

	_, err := New(path, nil)
	assert.Error(t, err)
}

func TestRepository_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	writeBlocklist(t, path, "blocked_domains: [evil.example]\n")

	repo, err := New(path, nil)
	require.NoError(t, err)

	writeBlocklist(t, path, "blocked_domains: [: broken")
	assert.Error(t, repo.Reload())
	assert.False(t, repo.IsHostAllowed("evil.example"))
}

func TestRepository_WatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocked.yaml")
	writeBlocklist(t, path, "blocked_domains: []\n")

	repo, err := New(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go repo.Watch(ctx)

	// 監視開始前の書き込みを取りこぼさないよう、反映されるまで書き直す
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("blocked_domains: [evil.example]\n"), 0644)
		return !repo.IsHostAllowed("evil.example")
	}, 5*time.Second, 50*time.Millisecond)
}
