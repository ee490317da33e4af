// Package gateway performs network requests on behalf of sandboxed apps.
//
// A request passes, in order: the app exists, its network mode permits
// proxying, the URL is http(s), the hostname is on the app's allowlist,
// and the (app, host) pair is under its rate limit. Each check has its own
// rejection kind so the sandbox can tell "not allowed" from "remote down".
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/infrastructure/httpclient"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// DefaultMaxBodyMB caps relayed bodies when the policy sets no limit.
const DefaultMaxBodyMB = 5

// strippedHeaders are never relayed to the sandbox.
var strippedHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Upgrade",
	"Set-Cookie",
}

// Apps looks up app records.
type Apps interface {
	Get(ctx context.Context, appID string) (*types.AppRecord, error)
}

// Response is a relayed upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Gateway relays requests for sandboxed apps.
type Gateway struct {
	apps      Apps
	client    *resty.Client
	window    *SlidingWindow
	maxBodyMB int
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New creates a gateway. client should come from httpclient.NewEgressClient.
func New(apps Apps, client *resty.Client, defaultMaxBodyMB int, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxBodyMB <= 0 {
		defaultMaxBodyMB = DefaultMaxBodyMB
	}
	return &Gateway{
		apps:      apps,
		client:    client,
		window:    NewSlidingWindow(time.Second),
		maxBodyMB: defaultMaxBodyMB,
		logger:    logger,
	}
}

// WithMetrics adds metrics tracking to the gateway
func (g *Gateway) WithMetrics(metrics *monitoring.Metrics) *Gateway {
	g.metrics = metrics
	return g
}

// Proxy fetches target for appID after enforcing the app's network policy.
func (g *Gateway) Proxy(ctx context.Context, appID, target string) (*Response, error) {
	resp, err := g.proxy(ctx, appID, target)
	g.metrics.RecordProxy(outcome(err))
	if err != nil {
		g.logger.Debug("Proxy request rejected",
			zap.String("app_id", appID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
	}
	return resp, err
}

func (g *Gateway) proxy(ctx context.Context, appID, target string) (*Response, error) {
	app, err := g.apps.Get(ctx, appID)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, apperr.E(apperr.NotFound, "app not found")
		}
		return nil, err
	}

	policy := app.Security.Network
	if !policy.Mode.AllowsProxy() {
		return nil, apperr.E(apperr.Forbidden, "network mode %q does not allow proxied requests", policy.Mode)
	}

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, apperr.E(apperr.InputInvalid, "url must be an absolute http or https URL")
	}
	if u.User != nil {
		return nil, apperr.E(apperr.InputInvalid, "url must not carry credentials")
	}

	host := strings.ToLower(u.Hostname())
	if !httpclient.HostAllowed(host, policy.Allowlist) {
		return nil, apperr.E(apperr.Forbidden, "host %s is not on the allowlist", host)
	}

	if capacity := windowCapacity(policy.RateLimit); capacity > 0 {
		if !g.window.Allow(appID+"|"+host, capacity) {
			return nil, apperr.E(apperr.RateLimited, "rate limit exceeded for %s", host)
		}
	}

	return g.fetch(ctx, u, policy)
}

func (g *Gateway) fetch(ctx context.Context, u *url.URL, policy types.NetworkPolicy) (*Response, error) {
	limit := int64(policy.RateLimit.MaxBodyMB)
	if limit <= 0 {
		limit = int64(g.maxBodyMB)
	}
	limit <<= 20

	resp, err := g.client.R().
		SetContext(httpclient.WithAllowlist(ctx, policy.Allowlist)).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		if errors.Is(err, httpclient.ErrRedirectBlocked) {
			return nil, apperr.E(apperr.Forbidden, "upstream redirected to a host outside the allowlist")
		}
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "upstream request failed")
	}
	body := resp.RawBody()
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "reading upstream response failed")
	}
	if int64(len(data)) > limit {
		return nil, apperr.E(apperr.UpstreamFailure, "upstream response exceeds %d MB", limit>>20)
	}

	header := resp.Header().Clone()
	for _, h := range strippedHeaders {
		header.Del(h)
	}
	return &Response{Status: resp.StatusCode(), Header: header, Body: data}, nil
}

// windowCapacity is the number of requests admitted per second.
func windowCapacity(rl types.RateLimit) int {
	return max(rl.RPS, rl.Burst)
}

func outcome(err error) string {
	if err == nil {
		return "forwarded"
	}
	return string(apperr.KindOf(err))
}
