package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesara-space/forge/internal/infrastructure/httpclient"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

type fakeApps map[string]*types.AppRecord

func (f fakeApps) Get(ctx context.Context, appID string) (*types.AppRecord, error) {
	if rec, ok := f[appID]; ok {
		return rec, nil
	}
	return nil, apperr.E(apperr.NotFound, "app %s not found", appID)
}

func app(id string, mode types.NetworkMode, allow []string, rl types.RateLimit) *types.AppRecord {
	return &types.AppRecord{
		ID: id,
		Security: types.SecurityPolicy{Network: types.NetworkPolicy{
			Mode: mode, Allowlist: allow, RateLimit: rl,
		}},
	}
}

func newUpstream(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Set-Cookie", "tracking=1")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2<<20)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return srv, u.Hostname()
}

func newGateway(apps fakeApps) *Gateway {
	return New(apps, httpclient.NewEgressClient(httpclient.EgressConfig{Timeout: 5 * time.Second}), 1, nil)
}

func TestStrictModeForbidsEverything(t *testing.T) {
	srv, host := newUpstream(t)
	g := newGateway(fakeApps{"a": app("a", types.NetworkStrict, []string{host}, types.RateLimit{})})

	for _, target := range []string{srv.URL + "/ok", "https://example.com", "ftp://x"} {
		_, err := g.Proxy(context.Background(), "a", target)
		assert.True(t, apperr.IsKind(err, apperr.Forbidden), target)
	}
}

func TestAllowlist(t *testing.T) {
	srv, host := newUpstream(t)
	g := newGateway(fakeApps{"a": app("a", types.NetworkProxy, []string{host}, types.RateLimit{})})

	resp, err := g.Proxy(context.Background(), "a", srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
	assert.Empty(t, resp.Header.Get("Set-Cookie"))

	_, err = g.Proxy(context.Background(), "a", "https://evil.com/x")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden))
}

func TestChecksRunInOrder(t *testing.T) {
	g := newGateway(fakeApps{
		"strict": app("strict", types.NetworkStrict, nil, types.RateLimit{}),
		"proxy":  app("proxy", types.NetworkDirectProxy, []string{"example.com"}, types.RateLimit{}),
	})

	tests := []struct {
		name   string
		appID  string
		target string
		kind   apperr.Kind
	}{
		{"unknown app wins over bad url", "ghost", "nonsense", apperr.NotFound},
		{"mode wins over bad url", "strict", "nonsense", apperr.Forbidden},
		{"bad scheme", "proxy", "ftp://example.com/file", apperr.InputInvalid},
		{"relative url", "proxy", "/just/a/path", apperr.InputInvalid},
		{"credentials", "proxy", "https://user:pw@example.com/", apperr.InputInvalid},
		{"host not allowlisted", "proxy", "https://sub.example.com/", apperr.Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Proxy(context.Background(), tt.appID, tt.target)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv, host := newUpstream(t)
	g := newGateway(fakeApps{
		"a": app("a", types.NetworkProxy, []string{host}, types.RateLimit{RPS: 2}),
		"b": app("b", types.NetworkProxy, []string{host}, types.RateLimit{RPS: 2}),
	})
	clock := time.Unix(1_700_000_000, 0)
	g.window.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		_, err := g.Proxy(context.Background(), "a", srv.URL+"/ok")
		require.NoError(t, err)
	}
	_, err := g.Proxy(context.Background(), "a", srv.URL+"/ok")
	assert.True(t, apperr.IsKind(err, apperr.RateLimited))

	// Other apps have their own window.
	_, err = g.Proxy(context.Background(), "b", srv.URL+"/ok")
	assert.NoError(t, err)

	clock = clock.Add(1001 * time.Millisecond)
	_, err = g.Proxy(context.Background(), "a", srv.URL+"/ok")
	assert.NoError(t, err)
}

func TestUpstreamFailures(t *testing.T) {
	srv, host := newUpstream(t)
	g := newGateway(fakeApps{"a": app("a", types.NetworkProxy, []string{host}, types.RateLimit{})})

	resp, err := g.Proxy(context.Background(), "a", srv.URL+"/teapot")
	require.NoError(t, err, "non-2xx statuses are relayed, not failures")
	assert.Equal(t, http.StatusTeapot, resp.Status)

	_, err = g.Proxy(context.Background(), "a", srv.URL+"/big")
	assert.True(t, apperr.IsKind(err, apperr.UpstreamFailure))

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	_, err = g.Proxy(context.Background(), "a", closedURL+"/gone")
	assert.True(t, apperr.IsKind(err, apperr.UpstreamFailure))
}

func TestRedirectOffAllowlistIsForbidden(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer target.Close()
	tu, _ := url.Parse(target.URL)

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://localhost:"+tu.Port()+"/", http.StatusFound)
	}))
	defer redirector.Close()
	ru, _ := url.Parse(redirector.URL)

	g := newGateway(fakeApps{"a": app("a", types.NetworkProxy, []string{ru.Hostname()}, types.RateLimit{})})
	_, err := g.Proxy(context.Background(), "a", redirector.URL+"/")
	assert.True(t, apperr.IsKind(err, apperr.Forbidden), "got %v", err)
}

func TestSlidingWindowIsAtomic(t *testing.T) {
	w := NewSlidingWindow(time.Second)
	clock := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return clock }

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("k", 5) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestSlidingWindowSlides(t *testing.T) {
	w := NewSlidingWindow(time.Second)
	clock := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return clock }

	assert.True(t, w.Allow("k", 2))
	clock = clock.Add(600 * time.Millisecond)
	assert.True(t, w.Allow("k", 2))
	assert.False(t, w.Allow("k", 2))

	// The first hit leaves the window; the second is still inside it.
	clock = clock.Add(500 * time.Millisecond)
	assert.True(t, w.Allow("k", 2))
	assert.False(t, w.Allow("k", 2))

	assert.True(t, w.Allow("other", 0))
}

func TestWindowCapacity(t *testing.T) {
	assert.Equal(t, 0, windowCapacity(types.RateLimit{}))
	assert.Equal(t, 2, windowCapacity(types.RateLimit{RPS: 2}))
	assert.Equal(t, 5, windowCapacity(types.RateLimit{RPS: 2, Burst: 5}))
}
