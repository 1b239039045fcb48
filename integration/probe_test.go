//go:build integration

package integration

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thibaut1304/Wake-on-lan/internal/services/probe"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func requirePing(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ping"); err != nil {
		t.Skip("ping not found in PATH")
	}
}

func TestExecProbe_Loopback_Integration(t *testing.T) {
	requirePing(t)

	svc := probe.NewExec(testLogger(), 2*time.Second)

	result, err := svc.Probe(context.Background(), "127.0.0.1")

	require.NoError(t, err)
	assert.True(t, result.Reachable)
	assert.Nil(t, result.Error)
}

func TestExecProbe_Unreachable_Integration(t *testing.T) {
	requirePing(t)

	svc := probe.NewExec(testLogger(), time.Second)

	start := time.Now()
	// TEST-NET-1, never routed.
	result, err := svc.Probe(context.Background(), "192.0.2.1")

	require.NoError(t, err)
	assert.False(t, result.Reachable)
	assert.Less(t, time.Since(start), 5*time.Second, "probe must be time-boxed")
}

func TestICMPProbe_Loopback_Integration(t *testing.T) {
	svc := probe.NewICMP(testLogger(), 2*time.Second)

	result, err := svc.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)

	if result.Error != nil && strings.Contains(result.Error.Error(), "ICMP socket") {
		t.Skipf("unprivileged ICMP not permitted: %v", result.Error)
	}

	assert.True(t, result.Reachable)
	assert.Nil(t, result.Error)
}

func TestICMPProbe_Unreachable_Integration(t *testing.T) {
	svc := probe.NewICMP(testLogger(), 500*time.Millisecond)

	result, err := svc.Probe(context.Background(), "192.0.2.1")
	require.NoError(t, err)

	assert.False(t, result.Reachable)
	assert.NotNil(t, result.Error)
}
