package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultUserAgent is sent with every request unless a strategy overrides it
	DefaultUserAgent = "setlist/1.0 (+https://github.com/lehigh-university-libraries/setlist)"

	// DefaultMaxBytes caps a single image download (25 MiB)
	DefaultMaxBytes int64 = 25 << 20
)

// ErrUnreachable is matched by every failed fetch attempt
var ErrUnreachable = errors.New("endpoint unreachable")

// FetchError describes one failed retrieval attempt
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes every FetchError match ErrUnreachable
func (e *FetchError) Is(target error) bool {
	return target == ErrUnreachable
}

// Request is a single outbound GET
type Request struct {
	URL    string
	Header http.Header
}

// Fetcher retrieves raw image bytes from a single endpoint
type Fetcher struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		UserAgent: DefaultUserAgent,
		MaxBytes:  DefaultMaxBytes,
	}
}

// Fetch performs one anonymous GET against req.URL. There is no retry; any
// failure, including a context timeout, is returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "image/*,*/*;q=0.8")
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	// Relays answer with HTML or plain-text error pages and a 200 status
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if strings.HasPrefix(mediaType, "text/") {
			return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("unexpected content type %s", mediaType)}
		}
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(data)) > maxBytes {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("body exceeds %d bytes", maxBytes)}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: req.URL, Err: errors.New("empty body")}
	}

	return data, nil
}
