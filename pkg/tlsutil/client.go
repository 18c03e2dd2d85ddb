// Package tlsutil builds HTTP clients for talking to UniFi controllers,
// which commonly present self-signed certificates.
package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// CreateHTTPClient creates an HTTP client with appropriate TLS configuration.
func CreateHTTPClient(verifySSL bool) *http.Client {
	return CreateHTTPClientWithTimeouts(verifySSL, 10*time.Second, 30*time.Second)
}

// CreateHTTPClientWithTimeouts creates an HTTP client with a bounded TCP
// connect timeout and a total request timeout.
func CreateHTTPClientWithTimeouts(verifySSL bool, connectTimeout, requestTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	// else: default secure mode with system CA verification

	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}
}
