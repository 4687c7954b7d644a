// Package fetcher materializes source data files from local paths, HTTP(S)
// and FTP URLs, unpacking ZIP archives, and reads them as CSV or XLSX rows.
package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures a Fetcher.
type Options struct {
	TempDir   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher turns a source location into a readable local file.
type Fetcher struct {
	opts Options
	http *HTTPDownloader
	ftp  *FTPDownloader
}

// New returns a Fetcher that downloads into opts.TempDir.
func New(opts Options) *Fetcher {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Fetcher{
		opts: opts,
		http: NewHTTPDownloader(HTTPOptions{UserAgent: opts.UserAgent, Timeout: opts.Timeout}),
		ftp:  NewFTPDownloader(opts.Timeout),
	}
}

// Local returns a local path for loc, downloading remote files first. ZIP
// archives are unpacked and the first tabular entry is returned.
func (f *Fetcher) Local(ctx context.Context, loc string) (string, error) {
	p, err := f.materialize(ctx, loc)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(p), ".zip") {
		return p, nil
	}

	dir := filepath.Join(f.opts.TempDir, "unzip-"+uuid.NewString())
	out, err := ExtractTabular(p, dir)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: unpack %s", loc)
	}
	return out, nil
}

func (f *Fetcher) materialize(ctx context.Context, loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		if _, statErr := os.Stat(loc); statErr != nil {
			return "", eris.Wrapf(statErr, "fetcher: open %s", loc)
		}
		return loc, nil
	}

	if err := os.MkdirAll(f.opts.TempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create temp dir")
	}
	dest := filepath.Join(f.opts.TempDir, uuid.NewString()+"-"+path.Base(u.Path))

	start := time.Now()
	var n int64
	switch u.Scheme {
	case "http", "https":
		n, err = f.http.DownloadToFile(ctx, loc, dest)
	case "ftp":
		n, err = f.ftp.DownloadToFile(ctx, loc, dest)
	case "file":
		return u.Path, nil
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, loc)
	}
	if err != nil {
		return "", err
	}

	zap.L().Info("fetcher: downloaded",
		zap.String("source", loc),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dest, nil
}
