package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/clearhealth/pricing-cli/internal/model"
	"github.com/clearhealth/pricing-cli/internal/resilience"
)

// sniffLen is how many leading bytes are inspected to decide whether a
// 2xx body is really a structured file and not an HTML error page.
const sniffLen = 512

type httpClient struct {
	client    *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	hostRate rate.Limit
	burst    int
}

func newHTTPClient(opts Options) *httpClient {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &httpClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
		limiters:  make(map[string]*rate.Limiter),
		hostRate:  rate.Limit(opts.HostRateLimit),
		burst:     opts.HostBurst,
	}
}

func (c *httpClient) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.hostRate, c.burst)
		c.limiters[host] = lim
	}
	return lim
}

// fetch performs one GET and classifies the outcome. The returned record
// has URL, Outcome, Reason, ByteSize, and ContentHash populated; the
// caller fills in source identity and attempt index.
func (c *httpClient) fetch(ctx context.Context, rawURL, hint string, blobs *BlobStore) model.FetchRecord {
	rec := model.FetchRecord{URL: rawURL}

	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		rec.Outcome = model.FetchTransientFailure
		rec.Reason = "cancelled"
		return rec
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		rec.Outcome = model.FetchPermanentFailure
		rec.Reason = "bad-url"
		return rec
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/csv,application/json,application/zip,*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		rec.Outcome, rec.Reason = classifyTransportError(err)
		return rec
	}
	defer resp.Body.Close() //nolint:errcheck

	// Read a prefix for body-shape classification before streaming the rest.
	prefix := make([]byte, sniffLen)
	n, readErr := io.ReadFull(resp.Body, prefix)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		rec.Outcome, rec.Reason = classifyTransportError(readErr)
		return rec
	}
	prefix = prefix[:n]

	outcome, reason := ClassifyResponse(resp.StatusCode, resp.Header.Get("Content-Type"), prefix, hint)
	rec.Outcome = outcome
	rec.Reason = reason
	if outcome != model.FetchSuccess {
		return rec
	}

	hash, size, err := blobs.Put(io.MultiReader(bytes.NewReader(prefix), resp.Body))
	if err != nil {
		rec.Outcome = model.FetchTransientFailure
		rec.Reason = "blob-write"
		return rec
	}
	rec.ByteSize = size
	rec.ContentHash = hash
	return rec
}

// classifyTransportError maps a transport-level error onto a fetch outcome.
// TLS certificate failures are permanent and never downgraded to insecure
// transport; resets and timeouts are transient.
func classifyTransportError(err error) (model.FetchOutcome, string) {
	if resilience.IsTLSFailure(err) {
		return model.FetchPermanentFailure, model.ReasonTLS
	}
	if resilience.IsTransient(err) {
		return model.FetchTransientFailure, transportReason(err)
	}
	// Unknown transport errors are treated as transient so a flaky
	// middlebox does not permanently retire a source.
	return model.FetchTransientFailure, transportReason(err)
}

func transportReason(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection reset"):
		return "connection-reset"
	case strings.Contains(msg, "connection refused"):
		return "connection-refused"
	case strings.Contains(msg, "no such host"):
		return "dns"
	default:
		return "transport"
	}
}

// ClassifyResponse maps (status code, content type, body prefix) onto a
// fetch outcome. The mapping is a pure function: the same input always
// yields the same outcome, which keeps retry decisions reproducible from
// the download log.
func ClassifyResponse(status int, contentType string, bodyPrefix []byte, hint string) (model.FetchOutcome, string) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.FetchPermanentFailure, model.ReasonAuthBlock
	case status == http.StatusNotFound || status == http.StatusGone:
		return model.FetchPermanentFailure, model.ReasonNotFound
	case resilience.IsTransientHTTPStatus(status):
		return model.FetchTransientFailure, "http-" + strconv.Itoa(status)
	case status < 200 || status >= 300:
		return model.FetchPermanentFailure, "http-" + strconv.Itoa(status)
	}

	// 2xx: the body must look like a structured file, not an error page
	// served with a success status.
	if len(bodyPrefix) == 0 {
		return model.FetchPermanentFailure, model.ReasonUnexpectedContent
	}
	if looksLikeHTML(contentType, bodyPrefix) && hint != "html" {
		return model.FetchPermanentFailure, model.ReasonUnexpectedContent
	}

	return model.FetchSuccess, ""
}

func looksLikeHTML(contentType string, prefix []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimLeft(prefix, " \t\r\n\uFEFF")
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}
