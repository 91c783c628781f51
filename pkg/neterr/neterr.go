// Package neterr recognises transient transport failures from outbound HTTP
// clients and database drivers.
package neterr

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

var transientMessages = []string{
	"fetch failed",
	"terminated",
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"eof",
	"no such host",
	"temporary failure in name resolution",
	"tls handshake",
}

// IsTransient reports whether err looks like a network-level failure worth
// retrying on the next tick rather than failing the work item.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range transientMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
