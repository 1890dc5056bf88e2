package retrieval

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Strategy turns an image reference into a concrete endpoint. A strategy
// without a Base fetches the reference directly; otherwise the reference is
// percent-encoded and wrapped as Base + ref + Suffix.
type Strategy struct {
	Name    string
	Base    string
	Suffix  string
	Hosts   []string // host suffixes this strategy applies to; empty means all
	Header  http.Header
	Timeout time.Duration
}

// DefaultStrategies mirrors the order that worked best for the common
// sheet-music hosts: direct first, then the wsrv.nl image cache, then a
// generic CORS relay.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "direct"},
		{Name: "wsrv", Base: "https://wsrv.nl/?url=", Suffix: "&output=jpg"},
		{Name: "corsproxy", Base: "https://corsproxy.io/?"},
	}
}

// IsDirect reports whether the strategy fetches the reference itself
func (s Strategy) IsDirect() bool {
	return s.Base == ""
}

// Applies reports whether the strategy should be tried for the given host
func (s Strategy) Applies(host string) bool {
	if len(s.Hosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, h := range s.Hosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Endpoint builds the URL to request for imageRef
func (s Strategy) Endpoint(imageRef string) string {
	if s.IsDirect() {
		return imageRef
	}
	return s.Base + encodeURIComponent(imageRef) + s.Suffix
}

// Validate checks that the relay base is an absolute http(s) URL
func (s Strategy) Validate() error {
	if s.Name == "" {
		return errors.New("strategy name is required")
	}
	if s.IsDirect() {
		return nil
	}
	u, err := url.Parse(s.Base)
	if err != nil {
		return fmt.Errorf("strategy %s: invalid base: %w", s.Name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("strategy %s: base must be an absolute http(s) URL", s.Name)
	}
	return nil
}

// encodeURIComponent percent-encodes everything except the unreserved set
// and the marks browsers leave alone (!'()*)
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, mark := range []string{"!", "'", "(", ")", "*"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(mark), mark)
	}
	return escaped
}

// parseRef validates that imageRef is an absolute http(s) URL and returns it
func parseRef(imageRef string) (*url.URL, error) {
	if strings.TrimSpace(imageRef) == "" {
		return nil, errors.New("empty image reference")
	}
	u, err := url.Parse(imageRef)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("image reference must be an absolute http(s) URL: %q", imageRef)
	}
	return u, nil
}
