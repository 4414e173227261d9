package catalog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
)

// Fetcher downloads catalog files published over HTTP, such as a supplier
// price list or a comparison-site export.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	userAgent string
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithFetchClient sets the HTTP client.
func WithFetchClient(hc *http.Client) FetchOption {
	return func(f *Fetcher) { f.client = hc }
}

// WithFetchRate limits requests per second. Zero or less disables limiting.
func WithFetchRate(perSec float64) FetchOption {
	return func(f *Fetcher) {
		if perSec <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// NewFetcher creates a Fetcher. Failed downloads are retried on 429, 5xx
// and network errors.
func NewFetcher(retry resilience.RetryConfig, opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 60 * time.Second},
		limiter:   rate.NewLimiter(5, 1),
		retry:     retry,
		userAgent: "bill-advisor/1.0",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsRemote reports whether a catalog location is an http(s) URL.
func IsRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// DownloadToFile fetches rawURL and writes it to dst. Returns bytes written.
func (f *Fetcher) DownloadToFile(ctx context.Context, rawURL, dst string) (int64, error) {
	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger("catalog", "download")
	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: download %s", rawURL)
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(dst)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "catalog: write file")
	}
	return n, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "catalog: rate limiter wait")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		err := eris.Errorf("catalog: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return resp.Body, nil
}

// LoadURL downloads a remote catalog and parses it like LoadFile. The
// format comes from the URL path extension; anything but .xlsx is read as
// JSON.
func (f *Fetcher) LoadURL(ctx context.Context, rawURL string) ([]model.EnergyOffer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse url %s", rawURL)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext != ".xlsx" {
		ext = ".json"
	}

	dir, err := os.MkdirTemp("", "catalog-*")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	dst := filepath.Join(dir, "catalog"+ext)
	n, err := f.DownloadToFile(ctx, rawURL, dst)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("catalog: downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
	return LoadFile(dst)
}
