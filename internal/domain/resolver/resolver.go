// Package resolver maps bare import specifiers onto pinned CDN modules and
// caches every fetched module immutably on disk.
//
// The first resolution of a specifier@version fetches from the CDN; every
// later resolution, in the same build or any other, is served from the
// cache without touching the network. Concurrent first resolutions of the
// same key share a single fetch.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/infrastructure/resilience"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// Module is a resolved dependency.
type Module struct {
	URL         string
	ContentType string
	Contents    []byte
}

// Config configures a Resolver.
type Config struct {
	CDNBase string
	Catalog *Catalog
	Cache   *Cache
	Fetcher Fetcher
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Resolver resolves specifiers through the cache and the CDN.
type Resolver struct {
	cdnBase  string
	catalog  *Catalog
	cache    *Cache
	fetcher  Fetcher
	timeout  time.Duration
	group    singleflight.Group
	breakers *resilience.Group
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Cache == nil || cfg.Fetcher == nil {
		return nil, errors.New("resolver requires a cache and a fetcher")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.CDNBase == "" {
		cfg.CDNBase = "https://esm.sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	logger := cfg.Logger
	return &Resolver{
		cdnBase: strings.TrimRight(cfg.CDNBase, "/"),
		catalog: cfg.Catalog,
		cache:   cfg.Cache,
		fetcher: cfg.Fetcher,
		timeout: cfg.Timeout,
		breakers: resilience.NewGroup(resilience.Settings{
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c resilience.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsFailure: func(err error) bool {
				return err != nil &&
					!errors.Is(err, ErrModuleNotFound) &&
					!errors.Is(err, ErrUnexpectedContent) &&
					!errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("CDN circuit breaker state change",
					zap.String("host", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Catalog returns the pinned catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// CDNBase returns the CDN origin.
func (r *Resolver) CDNBase() string {
	return r.cdnBase
}

// ModuleURL returns the CDN URL and pinned version for a bare specifier.
func (r *Resolver) ModuleURL(specifier string) (string, string, error) {
	name, subpath, version, err := r.catalog.Pin(specifier)
	if err != nil {
		return "", "", err
	}
	u := fmt.Sprintf("%s/%s@%s", r.cdnBase, name, version)
	if subpath != "" {
		u += "/" + subpath
	}
	return u, version, nil
}

// Resolve returns the module for specifier pinned at version.
func (r *Resolver) Resolve(ctx context.Context, specifier, version string) (*Module, error) {
	if IsLocalAlias(specifier) {
		return nil, apperr.E(apperr.InputInvalid, "local alias %q does not resolve through the CDN", specifier)
	}
	pinned, ok := r.catalog.Version(specifier)
	if !ok {
		_, _, _, err := r.catalog.Pin(specifier)
		return nil, apperr.Wrap(err, apperr.InputInvalid, "unknown dependency")
	}
	if version == "" {
		version = pinned
	}

	name, subpath := SplitSpecifier(specifier)
	u := fmt.Sprintf("%s/%s@%s", r.cdnBase, name, version)
	if subpath != "" {
		u += "/" + subpath
	}
	return r.load(ctx, utils.CacheKey(specifier, version), u)
}

// ResolveURL returns the module at an absolute CDN URL, as referenced from
// inside another CDN module.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (*Module, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperr.E(apperr.InputInvalid, "invalid module url %q", rawURL)
	}
	canonical := r.Canonicalize(u).String()
	return r.load(ctx, utils.CacheKey(canonical), canonical)
}

func (r *Resolver) load(ctx context.Context, key, u string) (*Module, error) {
	m, ok, err := r.cache.Get(key)
	if err != nil {
		r.logger.Warn("Ignoring unreadable cache entry", zap.String("key", key), zap.Error(err))
	}
	if ok {
		r.metrics.RecordResolverLookup(true)
		return m, nil
	}
	r.metrics.RecordResolverLookup(false)

	// The shared fetch outlives any one caller; each caller only stops
	// waiting when its own ctx ends.
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if m, ok, _ := r.cache.Get(key); ok {
			return m, nil
		}
		m, err := r.fetch(fetchCtx, u)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(key, m); err != nil {
			r.logger.Warn("Failed to persist module", zap.String("url", u), zap.Error(err))
		}
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Module), nil
	}
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (*Module, error) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var m *Module
	err := r.breakers.Get(host).Do(func() error {
		var err error
		m, err = r.fetcher.Fetch(ctx, rawURL)
		return err
	})

	switch {
	case err == nil:
		r.metrics.RecordResolverFetch("ok")
		r.logger.Debug("Fetched module",
			zap.String("url", rawURL),
			zap.Int("bytes", len(m.Contents)),
			zap.Duration("took", time.Since(start)),
		)
		return m, nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		r.metrics.RecordResolverFetch("circuit_open")
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "CDN unavailable")
	case errors.Is(err, ErrModuleNotFound), errors.Is(err, ErrUnexpectedContent):
		r.metrics.RecordResolverFetch("rejected")
		return nil, apperr.Wrap(err, apperr.InputInvalid, "CDN rejected module")
	default:
		r.metrics.RecordResolverFetch("error")
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "CDN fetch failed")
	}
}

var (
	reactJSXRuntime = regexp.MustCompile(`^/react(@[^/]+)?/jsx-(dev-)?runtime(\.m?js)?$`)
	reactDOMClient  = regexp.MustCompile(`^/react-dom(@[^/]+)?/client(\.m?js)?$`)
	reactRoot       = regexp.MustCompile(`^/react(@[^/]+)?(/.*)?$`)
	reactDOMRoot    = regexp.MustCompile(`^/react-dom(@[^/]+)?(/.*)?$`)
)

// Canonicalize rewrites CDN URLs for react and react-dom onto their pinned
// versions so the bundle holds exactly one copy of each.
func (r *Resolver) Canonicalize(u *url.URL) *url.URL {
	base, err := url.Parse(r.cdnBase)
	if err != nil || !strings.EqualFold(u.Host, base.Host) {
		return u
	}

	out := *u
	out.Path = strings.ReplaceAll(out.Path, "@^", "@")
	reactPin, _ := r.catalog.Version("react")
	domPin, _ := r.catalog.Version("react-dom")
	if reactPin == "" || domPin == "" {
		return &out
	}

	switch p := out.Path; {
	case reactJSXRuntime.MatchString(p):
		m := reactJSXRuntime.FindStringSubmatch(p)
		out.Path = fmt.Sprintf("/react@%s/jsx-%sruntime", reactPin, m[2])
	case reactDOMClient.MatchString(p):
		out.Path = fmt.Sprintf("/react-dom@%s/client", domPin)
	case reactDOMRoot.MatchString(p):
		out.Path = reactDOMRoot.ReplaceAllString(p, "/react-dom@"+domPin+"$2")
	case reactRoot.MatchString(p):
		out.Path = reactRoot.ReplaceAllString(p, "/react@"+reactPin+"$2")
	default:
		return &out
	}
	out.RawQuery = ""
	out.RawPath = ""
	return &out
}
