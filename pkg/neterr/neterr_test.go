package neterr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "fetch failed message", err: errors.New("fetch failed"), want: true},
		{name: "wrapped reset", err: fmt.Errorf("submit: %w", syscall.ECONNRESET), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "api.example.com"}, want: true},
		{name: "url error", err: &url.Error{Op: "Post", URL: "https://x", Err: errors.New("boom")}, want: true},
		{name: "business rule", err: errors.New("templates_missing"), want: false},
		{name: "provider rejection", err: errors.New("music provider returned 400: invalid style"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
