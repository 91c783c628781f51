package main

import (
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/stretchr/testify/assert"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"ID", "Status"}, [][]string{{"42"}}, []columnAlignment{alignRight})
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "42")
	assert.Equal(t, "", renderTable(nil, nil, nil))
}

func TestChannelRow(t *testing.T) {
	row := channelRow("email", delivery.ChannelResult{ScheduledRetry: true, RetryIn: 2 * time.Minute, Reason: "email_send_failed"})
	assert.Equal(t, []string{"email", "false", "false", "2m0s", "email_send_failed"}, row)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	got := truncate(strings.Repeat("x", 10), 5)
	assert.Equal(t, 5, len([]rune(got)))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "orders"} {
		assert.True(t, names[want], want)
	}
}
