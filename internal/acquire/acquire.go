// Package acquire implements Content Acquisition (spec C5): a uniform
// front-end for reading a provenance (local path or URL) with
// timeouts, a byte-size cap, ETag support, and retry backoff.
package acquire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/connerohnesorge/spry/internal/errs"
)

// ResolutionMode selects how a provenance string is resolved.
type ResolutionMode int

const (
	// ModuleRelative resolves relative paths against BaseURL, and allows
	// http(s): URLs. file: paths are used as given.
	ModuleRelative ResolutionMode = iota
	// LocalFS accepts only file paths or file: URLs.
	LocalFS
)

// Options configures one Source's acquisition. The zero value is
// usable: module-relative mode, a 10 MiB cap, a 30s timeout, 3 retries.
type Options struct {
	Mode         ResolutionMode
	BaseURL      string
	FS           afero.Fs
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxBytes     int64
	AllowedHosts []string
	ETag         string
	RetryMax     int
	RetryBase    time.Duration
}

func (o Options) normalized() Options {
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = 10 * 1024 * 1024
	}
	if o.RetryMax == 0 {
		o.RetryMax = 3
	}
	if o.RetryBase == 0 {
		o.RetryBase = 200 * time.Millisecond
	}

	return o
}

// Result is a successful fetch.
type Result struct {
	Body        []byte
	ContentType string
	NotModified bool
	ETag        string
}

// Fetch reads provenance according to opts, returning a tagged
// *errs.ProvenanceError on failure.
func Fetch(ctx context.Context, provenance string, opts Options) (*Result, error) {
	opts = opts.normalized()

	scheme, rest := splitScheme(provenance)

	switch scheme {
	case "", "file":
		return fetchLocal(opts, localPath(scheme, rest, opts))
	case "http", "https":
		if opts.Mode == LocalFS {
			return nil, &errs.ProvenanceError{Kind: errs.KindHTTPNotAllowed, Source: provenance}
		}

		return fetchHTTP(ctx, provenance, opts)
	default:
		return nil, &errs.ProvenanceError{Kind: errs.KindUnsupportedScheme, Source: provenance}
	}
}

// SafeFetch never returns an error; failures are reported in the
// Result's Err field (spec §4.5 "safe variants never throw").
type SafeResult struct {
	*Result
	Err error
}

func SafeFetch(ctx context.Context, provenance string, opts Options) SafeResult {
	r, err := Fetch(ctx, provenance, opts)
	if err != nil {
		return SafeResult{Err: err}
	}

	return SafeResult{Result: r}
}

func splitScheme(provenance string) (scheme, rest string) {
	if i := strings.Index(provenance, "://"); i >= 0 {
		return provenance[:i], provenance[i+3:]
	}

	if strings.HasPrefix(provenance, "file:") {
		return "file", strings.TrimPrefix(provenance, "file:")
	}

	return "", provenance
}

func localPath(scheme, rest string, opts Options) string {
	if scheme == "file" {
		return rest
	}

	if opts.BaseURL != "" && opts.Mode == ModuleRelative && !filepath.IsAbs(rest) {
		return filepath.Join(opts.BaseURL, rest)
	}

	return rest
}

func fetchLocal(opts Options, path string) (*Result, error) {
	data, err := afero.ReadFile(opts.FS, path)
	if err != nil {
		return nil, &errs.ProvenanceError{Kind: errs.KindIOError, Source: path, Err: err}
	}

	return &Result{Body: data, ContentType: mime.TypeByExtension(filepath.Ext(path))}, nil
}

func fetchHTTP(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if err := checkHost(rawURL, opts.AllowedHosts); err != nil {
		return nil, err
	}

	var lastErr error

	for attempt := 0; attempt <= opts.RetryMax; attempt++ {
		if attempt > 0 {
			delay := opts.RetryBase * time.Duration(1<<uint(attempt-1))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &errs.ProvenanceError{Kind: errs.KindTimeout, Source: rawURL, Err: ctx.Err()}
			}
		}

		result, err := doFetchOnce(ctx, rawURL, opts)
		if err == nil {
			return result, nil
		}

		var pe *errs.ProvenanceError
		if errors.As(err, &pe) && (pe.Kind == errs.KindUnsupportedScheme || pe.Kind == errs.KindHTTPNotAllowed || pe.Kind == errs.KindTooLarge) {
			return nil, err
		}

		log.Warn().Str("source", rawURL).Int("attempt", attempt+1).Err(err).Msg("fetch attempt failed, retrying")

		lastErr = err
	}

	log.Error().Str("source", rawURL).Int("attempts", opts.RetryMax+1).Err(lastErr).Msg("fetch exhausted retries")

	return nil, lastErr
}

func doFetchOnce(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &errs.ProvenanceError{Kind: errs.KindFetchFailed, Source: rawURL, Err: err}
	}

	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, &errs.ProvenanceError{Kind: errs.KindTimeout, Source: rawURL, Err: err}
		}

		return nil, &errs.ProvenanceError{Kind: errs.KindFetchFailed, Source: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true, ETag: resp.Header.Get("ETag")}, nil
	}

	if resp.StatusCode >= 400 {
		return nil, &errs.ProvenanceError{Kind: errs.KindFetchFailed, Source: rawURL, Err: errors.New(resp.Status)}
	}

	limited := io.LimitReader(resp.Body, opts.MaxBytes+1)

	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &errs.ProvenanceError{Kind: errs.KindIOError, Source: rawURL, Err: err}
	}

	if int64(len(body)) > opts.MaxBytes {
		return nil, &errs.ProvenanceError{Kind: errs.KindTooLarge, Source: rawURL}
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

func checkHost(rawURL string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &errs.ProvenanceError{Kind: errs.KindFetchFailed, Source: rawURL, Err: err}
	}

	for _, h := range allowed {
		if u.Hostname() == h {
			return nil
		}
	}

	return &errs.ProvenanceError{Kind: errs.KindHTTPNotAllowed, Source: rawURL}
}

// DecodeText decodes body as UTF-8, replacing invalid bytes with U+FFFD
// rather than failing. The charset parameter of contentType is read but
// not applied: bodies in other charsets are not converted.
func DecodeText(body []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" || strings.EqualFold(params["charset"], "utf-8") {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}

	// Non-UTF-8 charsets are out of scope for this core; fall back to a
	// best-effort UTF-8 decode rather than failing.
	return string(bytes.ToValidUTF8(body, []byte("�")))
}
