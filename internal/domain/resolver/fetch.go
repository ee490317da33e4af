package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const maxModuleSize = 32 << 20

var (
	// ErrUnexpectedContent marks a CDN response that is not a module.
	ErrUnexpectedContent = errors.New("unexpected CDN response")
	// ErrModuleNotFound marks a 4xx CDN response.
	ErrModuleNotFound = errors.New("module not found on CDN")

	htmlSniff = regexp.MustCompile(`(?i)<html|<!doctype html`)
)

// statusError is a non-2xx CDN response.
type statusError struct {
	URL    string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s -> %d", e.URL, e.Status)
}

func (e *statusError) Unwrap() error {
	if e.Status >= 400 && e.Status < 500 {
		return ErrModuleNotFound
	}
	return nil
}

// Fetcher retrieves a module over the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Module, error)
}

// HTTPFetcher fetches modules with an *http.Client and decodes compressed
// bodies itself.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Module, error) {
	m, err := f.fetch(ctx, url, false)
	if errors.Is(err, errDecode) {
		return f.fetch(ctx, url, true)
	}
	return m, err
}

var errDecode = errors.New("decode failed")

func (f *HTTPFetcher) fetch(ctx context.Context, url string, identity bool) (*Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if identity {
		req.Header.Set("Accept-Encoding", "identity")
	} else {
		req.Header.Set("Accept-Encoding", "zstd, gzip, deflate")
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{URL: url, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxModuleSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrUnexpectedContent, url, maxModuleSize)
	}

	body, err := decode(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		if identity {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedContent, url, err)
		}
		return nil, errDecode
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	ct := resp.Header.Get("Content-Type")
	if err := checkContent(finalURL, ct, body); err != nil {
		return nil, err
	}

	return &Module{URL: finalURL, ContentType: ct, Contents: body}, nil
}

func decode(raw []byte, encoding string) ([]byte, error) {
	var r io.ReadCloser
	var err error

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		r, err = zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			r, err = flate.NewReader(bytes.NewReader(raw)), nil
		}
	case "zstd":
		var d *zstd.Decoder
		d, err = zstd.NewReader(bytes.NewReader(raw))
		if err == nil {
			r = d.IOReadCloser()
		}
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(io.LimitReader(r, maxModuleSize))
}

func checkContent(url, contentType string, body []byte) error {
	ct := strings.ToLower(contentType)
	typeOK := strings.Contains(ct, "javascript") || strings.Contains(ct, "json") || strings.Contains(ct, "css")

	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	if !typeOK || strings.Contains(ct, "html") || htmlSniff.Match(head) {
		if ct == "" {
			ct = "unknown"
		}
		return fmt.Errorf("%w: %s (content-type: %s)", ErrUnexpectedContent, url, ct)
	}
	return nil
}
