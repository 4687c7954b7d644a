package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPDownloader fetches files from anonymous FTP servers.
type FTPDownloader struct {
	timeout time.Duration
}

// NewFTPDownloader returns a downloader with the given dial timeout.
func NewFTPDownloader(timeout time.Duration) *FTPDownloader {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FTPDownloader{timeout: timeout}
}

func splitFTPURL(rawURL string) (host, file string, user *url.Userinfo, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", nil, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", nil, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", nil, eris.Errorf("ftp: no file path in %s", rawURL)
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, u.User, nil
}

// DownloadToFile retrieves rawURL into dest and returns bytes written.
func (d *FTPDownloader) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	host, file, user, err := splitFTPURL(rawURL)
	if err != nil {
		return 0, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", file))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(d.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "ftp: dial")
	}
	defer conn.Quit() //nolint:errcheck

	name, pass := "anonymous", "anonymous@"
	if user != nil {
		name = user.Username()
		if p, ok := user.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(name, pass); err != nil {
		return 0, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(file)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: retrieve")
	}
	defer resp.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, resp)
	if err != nil {
		return n, eris.Wrap(err, "ftp: write file")
	}
	return n, nil
}
