package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/opendate-cli/internal/resilience"
)

// HTTPOptions configures the HTTP downloader.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Policy    resilience.Policy
	// PerHost is the request rate allowed per host. Zero means 2/s.
	PerHost rate.Limit
	Client  *http.Client
}

// HTTPDownloader fetches files with per-host rate limiting and retries.
type HTTPDownloader struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPDownloader returns a downloader with defaults applied.
func NewHTTPDownloader(opts HTTPOptions) *HTTPDownloader {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "opendate-cli/1.0"
	}
	if opts.PerHost == 0 {
		opts.PerHost = 2
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = resilience.DefaultPolicy()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPDownloader{client: client, opts: opts, limiters: make(map[string]*rate.Limiter)}
}

func (d *HTTPDownloader) limiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(d.opts.PerHost, 1)
		d.limiters[host] = l
	}
	return l
}

// DownloadToFile writes the body of rawURL to dest and returns bytes written.
func (d *HTTPDownloader) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, eris.Wrap(err, "http: parse url")
	}
	lim := d.limiter(u.Host)

	p := d.opts.Policy
	p.OnRetry = resilience.LogRetry(u.Host, "download")
	return resilience.RetryValue(ctx, p, func(ctx context.Context) (int64, error) {
		if err := lim.Wait(ctx); err != nil {
			return 0, eris.Wrap(err, "http: rate limit wait")
		}
		return d.fetchOnce(ctx, rawURL, dest)
	})
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "http: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("http: unexpected status %d for %s", resp.StatusCode, rawURL)
		if resilience.RetryableStatus(resp.StatusCode) {
			return 0, resilience.Transient(err, resp.StatusCode)
		}
		return 0, err
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "http: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return n, resilience.Transient(eris.Wrap(err, "http: write file"), 0)
	}
	return n, nil
}
