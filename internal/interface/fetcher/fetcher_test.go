package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpreview/internal/domain"
	"linkpreview/internal/interface/connection"
)

const page = `<html><head><title>Hello</title></head><body></body></html>`

func newLoopbackFetcher(cfg Config) *Fetcher {
	return New(cfg, connection.NewGuard(connection.Config{AllowPrivate: true}))
}

func requireFetchKind(t *testing.T, err error, kind domain.FetchErrorKind) {
	t.Helper()
	require.Error(t, err)
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe), "expected *domain.FetchError, got %T: %v", err, err)
	assert.Equal(t, kind, fe.Kind, "error: %v", err)
}

func TestFetch_Success(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	res, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)

	assert.Equal(t, page, res.Body)
	assert.Equal(t, "text/html; charset=utf-8", res.ContentType)
	assert.Equal(t, srv.URL+"/article", res.FinalURL)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, DefaultAccept, gotAccept)
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1
		w.Write([]byte("<html><head><title>caf\xe9</title></head></html>"))
	}))
	t.Cleanup(srv.Close)

	res, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, res.Body, "café")
}

func TestFetch_RejectsNonHTMLContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"title":"nope"}`)
	}))
	t.Cleanup(srv.Close)

	res, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), srv.URL)
	assert.Nil(t, res)
	requireFetchKind(t, err, domain.FetchContentType)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedContentType))
}

func TestFetch_BadStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(status)
				fmt.Fprint(w, page)
			}))
			t.Cleanup(srv.Close)

			_, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), srv.URL)
			requireFetchKind(t, err, domain.FetchBadStatus)
		})
	}
}

func TestFetch_SizeLimit(t *testing.T) {
	t.Run("streamed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.(http.Flusher).Flush()
			w.Write([]byte(strings.Repeat("a", 4096)))
		}))
		t.Cleanup(srv.Close)

		_, err := newLoopbackFetcher(Config{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL)
		requireFetchKind(t, err, domain.FetchSizeLimit)
	})

	t.Run("declared length", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Length", "4096")
			w.Write([]byte(strings.Repeat("a", 4096)))
		}))
		t.Cleanup(srv.Close)

		_, err := newLoopbackFetcher(Config{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL)
		requireFetchKind(t, err, domain.FetchSizeLimit)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(strings.Repeat("a", 1024)))
		}))
		t.Cleanup(srv.Close)

		res, err := newLoopbackFetcher(Config{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Len(t, res.Body, 1024)
	})
}

// redirectChain は /r/N から /r/N-1 へ順にリダイレクトし、/r/0 でHTMLを返す
func redirectChain(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/r/%d", &n)
		if n > 0 {
			http.Redirect(w, r, fmt.Sprintf("/r/%d", n-1), http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Redirects(t *testing.T) {
	srv := redirectChain(t)
	f := newLoopbackFetcher(Config{MaxRedirects: 5})

	res, err := f.Fetch(context.Background(), srv.URL+"/r/5")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/r/0", res.FinalURL)

	_, err = f.Fetch(context.Background(), srv.URL+"/r/6")
	requireFetchKind(t, err, domain.FetchRedirectLimit)
}

func TestFetch_RedirectToDisallowedScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "ftp://example.com/file", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), srv.URL)
	requireFetchKind(t, err, domain.FetchSSRFBlocked)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	start := time.Now()
	_, err := newLoopbackFetcher(Config{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	requireFetchKind(t, err, domain.FetchTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetch_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := newLoopbackFetcher(Config{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	requireFetchKind(t, err, domain.FetchCanceled)
}

func TestFetch_SSRFBlocksLoopback(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	t.Cleanup(srv.Close)

	f := New(Config{}, connection.NewGuard(connection.Config{}))
	_, err := f.Fetch(context.Background(), srv.URL)
	requireFetchKind(t, err, domain.FetchSSRFBlocked)
	assert.False(t, hit)
}

type mapResolver map[string]string

func (m mapResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if ip, ok := m[host]; ok {
		return []net.IPAddr{{IP: net.ParseIP(ip)}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type blockedIPs []string

func (b blockedIPs) IsHostAllowed(string) bool { return true }
func (b blockedIPs) Reload() error             { return nil }
func (b blockedIPs) IsIPBlocked(ip net.IP) bool {
	for _, s := range b {
		if net.ParseIP(s).Equal(ip) {
			return true
		}
	}
	return false
}

func TestFetch_RedirectHopIsRevalidated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, port, _ := net.SplitHostPort(r.Host)
		http.Redirect(w, r, "http://internal.test:"+port+"/", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	guard := connection.NewGuard(connection.Config{
		AllowPrivate: true,
		Resolver:     mapResolver{"internal.test": "127.0.0.2"},
		Access:       blockedIPs{"127.0.0.2"},
	})

	_, err := New(Config{}, guard).Fetch(context.Background(), srv.URL)
	requireFetchKind(t, err, domain.FetchSSRFBlocked)
}

func TestFetch_InvalidSchemeNeverDials(t *testing.T) {
	_, err := newLoopbackFetcher(Config{}).Fetch(context.Background(), "file:///etc/passwd")
	var inputErr *domain.InputError
	assert.True(t, errors.As(err, &inputErr))
}

func TestIsHTMLContentType(t *testing.T) {
	testCases := []struct {
		ct   string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"text/plain", false},
		{"image/png", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.ct, func(t *testing.T) {
			assert.Equal(t, tc.want, IsHTMLContentType(tc.ct))
		})
	}
}

type blockedHosts []string

func (b blockedHosts) IsHostAllowed(host string) bool {
	for _, h := range b {
		if strings.EqualFold(h, host) {
			return false
		}
	}
	return true
}
func (b blockedHosts) IsIPBlocked(net.IP) bool { return false }
func (b blockedHosts) Reload() error           { return nil }

func TestFetch_RedirectToBlockedHost(t *testing.T) {
	var blockedHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, port, _ := net.SplitHostPort(r.Host)
		if host == "blocked.test" {
			blockedHits.Add(1)
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page)
			return
		}
		http.Redirect(w, r, "http://blocked.test:"+port+"/", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	guard := connection.NewGuard(connection.Config{
		AllowPrivate: true,
		Resolver:     mapResolver{"allowed.test": "127.0.0.1", "blocked.test": "127.0.0.1"},
	})
	f := New(Config{Access: blockedHosts{"blocked.test"}}, guard)

	_, err := f.Fetch(context.Background(), "http://blocked.test:"+port+"/")
	requireFetchKind(t, err, domain.FetchBlocked)

	_, err = f.Fetch(context.Background(), "http://allowed.test:"+port+"/")
	requireFetchKind(t, err, domain.FetchBlocked)
	assert.True(t, errors.Is(err, domain.ErrBlockedHost))
	assert.Equal(t, int64(0), blockedHits.Load())
}
