package imagesrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/your-org/faceapi/internal/resultcode"
)

type cachedImage struct {
	data        []byte
	contentType string
}

// HTTPFetcher downloads images over http(s), bounded by a timeout and a size
// limit, and keeps recently fetched images in memory.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	cache    *cache.Cache
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64, cacheTTL time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		cache:    cache.New(cacheTTL, 2*cacheTTL),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", resultcode.Validationf("unsupported image url %q", rawURL)
	}

	if v, ok := f.cache.Get(rawURL); ok {
		c := v.(cachedImage)
		return c.data, c.contentType, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", resultcode.Validationf("build request: %v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, "", fmt.Errorf("fetch %s: %w", u.Host, resultcode.ErrTimeout)
		}
		return nil, "", fmt.Errorf("%w: fetch %s: %v", resultcode.ErrDecode, u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: fetch %s: status %d", resultcode.ErrDecode, u.Host, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", resultcode.ErrDecode, u.Host, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", resultcode.Validationf("remote image exceeds %d bytes", f.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = ""
	}

	f.cache.SetDefault(rawURL, cachedImage{data: data, contentType: contentType})
	return data, contentType, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
