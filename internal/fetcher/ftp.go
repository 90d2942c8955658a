package fetcher

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/clearhealth/pricing-cli/internal/model"
)

// ftpClient downloads ftp:// source URLs. A handful of health systems
// still publish machine-readable files on anonymous FTP drops.
type ftpClient struct {
	timeout time.Duration
}

func newFTPClient(timeout time.Duration) *ftpClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ftpClient{timeout: timeout}
}

func parseFTPURL(rawURL string) (host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

func (c *ftpClient) fetch(ctx context.Context, rawURL string, blobs *BlobStore) model.FetchRecord {
	rec := model.FetchRecord{URL: rawURL}

	host, path, err := parseFTPURL(rawURL)
	if err != nil || path == "" {
		rec.Outcome = model.FetchPermanentFailure
		rec.Reason = "bad-url"
		return rec
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(c.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		rec.Outcome = model.FetchTransientFailure
		rec.Reason = "ftp-dial"
		return rec
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		rec.Outcome = model.FetchPermanentFailure
		rec.Reason = model.ReasonAuthBlock
		return rec
	}

	resp, err := conn.Retr(path)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such file") {
			rec.Outcome = model.FetchPermanentFailure
			rec.Reason = model.ReasonNotFound
		} else {
			rec.Outcome = model.FetchTransientFailure
			rec.Reason = "ftp-retrieve"
		}
		return rec
	}
	defer resp.Close() //nolint:errcheck

	hash, size, err := blobs.Put(resp)
	if err != nil {
		rec.Outcome = model.FetchTransientFailure
		rec.Reason = "blob-write"
		return rec
	}
	if size == 0 {
		rec.Outcome = model.FetchPermanentFailure
		rec.Reason = model.ReasonUnexpectedContent
		return rec
	}

	rec.Outcome = model.FetchSuccess
	rec.ByteSize = size
	rec.ContentHash = hash
	return rec
}
