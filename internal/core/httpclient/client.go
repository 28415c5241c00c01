// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

type Options struct {
	Timeout time.Duration
	// InsecureSkipVerify accepts self-signed certificates on remote map servers.
	InsecureSkipVerify bool
}

// NewOutbound creates a new outbound http client
func NewOutbound(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// #nosec G402 -- remote WMS deployments commonly run on self-signed certificates
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify, MinVersion: tls.VersionTLS12},
	}
	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
}
