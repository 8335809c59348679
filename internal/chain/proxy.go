package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidProxy = errors.New("invalid proxy")

var proxyPattern = regexp.MustCompile(`^([^:@]+):([^:@]+)@([\w.-]+):(\d+)$`)

// ParseProxy accepts "login:password@host:port" or a full proxy URL. An empty
// string means no proxy. Errors never echo the credentials.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: malformed proxy url", ErrInvalidProxy)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
		}
		return u, nil
	}
	m := proxyPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("%w: expected login:password@host:port", ErrInvalidProxy)
	}
	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(m[1], m[2]),
		Host:   m[3] + ":" + m[4],
	}, nil
}

// Redact drops the credentials from a proxy URL for logging.
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

const DefaultProxyCheckURL = "https://httpbin.org/ip"

// CheckProxy performs one GET through the proxy and expects a 200.
func CheckProxy(ctx context.Context, proxy *url.URL, checkURL string, timeout time.Duration) error {
	if proxy == nil {
		return nil
	}
	if checkURL == "" {
		checkURL = DefaultProxyCheckURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = http.ProxyURL(proxy)
	defer tr.CloseIdleConnections()
	client := &http.Client{Transport: tr, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy %s unreachable: %w", Redact(proxy), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy %s check returned %s", Redact(proxy), resp.Status)
	}
	return nil
}
