// Package httpclient builds the HTTP transport used to talk to the upstream
// gateway. Compression is disabled on the transport so response bodies arrive
// with their original Content-Encoding intact; the shim decides per response
// whether it needs to decode.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gemini-shim/internal/types"

	"github.com/sirupsen/logrus"
)

// NewTransport creates the upstream transport from the relay configuration.
func NewTransport(cfg types.UpstreamConfig) *http.Transport {
	maxConnsPerHost := cfg.MaxIdleConnsPerHost * 2
	if maxConnsPerHost < 10 {
		maxConnsPerHost = 10
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.ConnectTimeout) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       time.Duration(cfg.IdleConnTimeout) * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.ResponseHeaderTimeout) * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
	}
	transport.Proxy = proxyFunc(cfg.ProxyURL)
	return transport
}

// NewClient wraps rt in a client with the configured overall request timeout.
// Streaming responses keep flowing past the timeout only if it is zero.
func NewClient(rt http.RoundTripper, cfg types.UpstreamConfig) *http.Client {
	return &http.Client{
		Transport: rt,
		Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// proxyFunc resolves the proxy selection for the transport. An explicit
// proxy URL wins; otherwise the standard environment variables apply.
func proxyFunc(rawURL string) func(*http.Request) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return http.ProxyFromEnvironment
	}

	proxyURL, err := url.Parse(trimmed)
	if err != nil {
		logrus.Warnf("Invalid proxy URL '%s', falling back to environment settings: %v", trimmed, err)
		return http.ProxyFromEnvironment
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" && proxyURL.Scheme != "socks5" {
		logrus.Warnf("Unsupported proxy scheme '%s', falling back to environment settings", proxyURL.Scheme)
		return http.ProxyFromEnvironment
	}

	logrus.Debugf("Upstream client configured with proxy: %s", sanitizeProxyURL(proxyURL))
	go testProxyConnectivity(proxyURL)
	return http.ProxyURL(proxyURL)
}

// testProxyConnectivity runs a TCP reachability probe so misconfigured
// proxies surface in logs before the first relayed request fails.
func testProxyConnectivity(proxyURL *url.URL) {
	dialer := &net.Dialer{Timeout: 3 * time.Second}

	conn, err := dialer.Dial("tcp", proxyURL.Host)
	if err != nil {
		logrus.Warnf("Proxy connectivity test failed for '%s': %v", sanitizeProxyURL(proxyURL), err)
		return
	}
	conn.Close()
	logrus.Debugf("Proxy at %s is reachable", proxyURL.Host)
}

func sanitizeProxyURL(proxyURL *url.URL) string {
	if proxyURL.User == nil {
		return proxyURL.String()
	}
	clone := *proxyURL
	clone.User = url.User("***")
	return clone.String()
}
