// Package httpclient builds the two outbound HTTP clients the service uses.
//
// The fetch client talks to the module CDN: bounded retries with backoff
// via go-retryablehttp, explicit Accept-Encoding so bodies arrive
// compressed and are decoded by the resolver. The egress client serves the
// proxy gateway: resty, never retried (proxied calls are not known to be
// idempotent) and refusing redirects that leave the caller's allowlist.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const userAgent = "forge-build/1.0"

// FetchConfig configures the CDN fetch client.
type FetchConfig struct {
	Timeout  time.Duration
	RetryMax int
	MinWait  time.Duration
	MaxWait  time.Duration
	Logger   *zap.Logger
}

// NewFetchClient returns an *http.Client that retries transient failures.
func NewFetchClient(cfg FetchConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = 200 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.MinWait
	rc.RetryWaitMax = cfg.MaxWait
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = leveledLogger{cfg.Logger.Sugar()}
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := rc.StandardClient()
	client.Timeout = cfg.Timeout
	return client
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// ErrRedirectBlocked is returned when an upstream redirects off-allowlist.
var ErrRedirectBlocked = errors.New("redirect target not allowlisted")

// EgressConfig configures the proxy egress client.
type EgressConfig struct {
	Timeout      time.Duration
	MaxRedirects int
}

type allowlistKey struct{}

// WithAllowlist attaches the hostnames redirects may target to ctx.
func WithAllowlist(ctx context.Context, hosts []string) context.Context {
	return context.WithValue(ctx, allowlistKey{}, hosts)
}

func allowlistFrom(ctx context.Context) []string {
	hosts, _ := ctx.Value(allowlistKey{}).([]string)
	return hosts
}

// HostAllowed reports whether host exactly matches an allowlist entry.
func HostAllowed(host string, allowlist []string) bool {
	host = strings.ToLower(host)
	for _, h := range allowlist {
		if strings.ToLower(strings.TrimSpace(h)) == host {
			return true
		}
	}
	return false
}

// NewEgressClient returns a resty client for proxied requests.
func NewEgressClient(cfg EgressConfig) *resty.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)

	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("%w: scheme %s", ErrRedirectBlocked, req.URL.Scheme)
		}
		if !HostAllowed(req.URL.Hostname(), allowlistFrom(req.Context())) {
			return fmt.Errorf("%w: %s", ErrRedirectBlocked, req.URL.Hostname())
		}
		return nil
	}))

	return client
}
