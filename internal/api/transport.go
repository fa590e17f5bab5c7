package api

import (
	nethttp "net/http"
	"time"
)

// newPooledClient creates an HTTP client tuned for many concurrent
// small requests against one host: a deep idle pool so in-flight
// dispatch goroutines reuse connections, and HTTP/2 for multiplexing.
func newPooledClient() *nethttp.Client {
	tr := &nethttp.Transport{
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // concurrency is bounded by the admission buckets, not the pool
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &nethttp.Client{
		Transport: tr,
		Timeout:   0, // no per-call deadline; cancellation comes from the run context
	}
}
