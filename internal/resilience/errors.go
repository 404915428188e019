// Package resilience provides retry with exponential backoff for outbound
// provider calls.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/prospexs-ab/prospexs-api/pkg/leadsearch"
	"github.com/prospexs-ab/prospexs-api/pkg/proxycurl"
	"github.com/prospexs-ab/prospexs-api/pkg/scrapeapi"
)

// IsTransient reports whether an error is safe to retry: a provider API
// error with a retryable status, a network timeout, or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if code, ok := providerStatus(err); ok {
		return retryableStatus(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped transport errors from HTTP clients only surface as text.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// providerStatus extracts the HTTP status from any of the provider clients'
// API errors.
func providerStatus(err error) (int, bool) {
	var scrapeErr *scrapeapi.APIError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.StatusCode, true
	}
	var enrichErr *proxycurl.APIError
	if errors.As(err, &enrichErr) {
		return enrichErr.StatusCode, true
	}
	var searchErr *leadsearch.APIError
	if errors.As(err, &searchErr) {
		return searchErr.StatusCode, true
	}
	return 0, false
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
