package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxReferenceBytes = 20 << 20

// ProxyFetcher retrieves reference photos through a resizing/format-normalizing image
// proxy. Each call appends a fresh cache-defeat token to the source URL.
type ProxyFetcher struct {
	ProxyURL string // e.g. https://images.weserv.nl/; empty fetches the source directly
	HTTP     *http.Client
	now      func() time.Time
}

// NewProxyFetcher creates a fetcher with the given per-request timeout.
func NewProxyFetcher(proxyURL string, timeout time.Duration) *ProxyFetcher {
	return &ProxyFetcher{
		ProxyURL: proxyURL,
		HTTP:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// ProxyURLFor builds the URL actually requested for source.
func (f *ProxyFetcher) ProxyURLFor(source string) (string, error) {
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	unique := source + sep + "t=" + strconv.FormatInt(f.now().UnixMilli(), 10)
	if f.ProxyURL == "" {
		return unique, nil
	}

	u, err := url.Parse(f.ProxyURL)
	if err != nil {
		return "", fmt.Errorf("invalid proxy url: %w", err)
	}
	q := u.Query()
	q.Set("url", unique)
	q.Set("maxage", "1h")
	q.Set("output", "jpg")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch downloads the reference image with caching disabled.
func (f *ProxyFetcher) Fetch(ctx context.Context, source string) (Image, error) {
	target, err := f.ProxyURLFor(source)
	if err != nil {
		return Image{}, &FetchError{URL: source, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Image{}, &FetchError{URL: source, Err: err}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return Image{}, &FetchError{URL: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Image{}, &FetchError{URL: source, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
	if err != nil {
		return Image{}, &FetchError{URL: source, Err: err}
	}
	if len(data) == 0 {
		return Image{}, &FetchError{URL: source, Err: fmt.Errorf("empty response body")}
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return Image{Data: data, MIMEType: mime}, nil
}

func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "unknown status"
}
