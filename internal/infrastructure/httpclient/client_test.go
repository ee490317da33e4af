package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchClientRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewFetchClient(FetchConfig{RetryMax: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHostAllowed(t *testing.T) {
	allow := []string{"api.example.com", " Data.Example.org "}

	assert.True(t, HostAllowed("api.example.com", allow))
	assert.True(t, HostAllowed("data.example.org", allow))
	assert.False(t, HostAllowed("evil.api.example.com", allow))
	assert.False(t, HostAllowed("example.com", allow))
	assert.False(t, HostAllowed("api.example.com", nil))
}

func TestEgressClientBlocksOffAllowlistRedirect(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer target.Close()

	targetURL, err := url.Parse(target.URL)
	require.NoError(t, err)
	targetURL.Host = "localhost:" + targetURL.Port()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, targetURL.String(), http.StatusFound)
	}))
	defer origin.Close()

	client := NewEgressClient(EgressConfig{})
	ctx := WithAllowlist(context.Background(), []string{"127.0.0.1"})

	_, err = client.R().SetContext(ctx).Get(origin.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRedirectBlocked)
}

func TestEgressClientFollowsAllowlistedRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewEgressClient(EgressConfig{})
	ctx := WithAllowlist(context.Background(), []string{"127.0.0.1"})

	resp, err := client.R().SetContext(ctx).Get(srv.URL + "/start")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.String())
}
