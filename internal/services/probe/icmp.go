package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protocolICMP = 1

// ICMPImpl probes with an echo request over an unprivileged ICMP datagram
// socket (net.ipv4.ping_group_range must include the process group).
type ICMPImpl struct {
	timeout time.Duration
	logger  zerolog.Logger
	seq     atomic.Uint32
}

// NewICMP creates a probe that speaks ICMP directly.
func NewICMP(logger zerolog.Logger, timeout time.Duration) *ICMPImpl {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ICMPImpl{
		timeout: timeout,
		logger:  logger,
	}
}

// Probe sends one echo request and waits for the matching reply until the timeout.
func (s *ICMPImpl) Probe(ctx context.Context, address string) (*models.ProbeResult, error) {
	result := &models.ProbeResult{Address: address}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", address)
	if err != nil {
		result.Error = fmt.Errorf("failed to resolve %s: %w", address, err)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}
	if len(ips) == 0 {
		result.Error = fmt.Errorf("no IPv4 address for %s", address)
		return result, nil
	}
	ip := ips[0]

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		result.Error = fmt.Errorf("failed to open ICMP socket: %w", err)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}
	defer func() { _ = conn.Close() }()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		result.Error = fmt.Errorf("failed to set deadline: %w", err)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	seq := int(s.seq.Add(1) & 0xffff)
	request, err := echoRequest(seq)
	if err != nil {
		result.Error = err
		return result, nil
	}

	start := time.Now()
	if _, err := conn.WriteTo(request, &net.UDPAddr{IP: ip}); err != nil {
		result.Error = fmt.Errorf("failed to send echo request to %s: %w", ip, err)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			result.Error = fmt.Errorf("no echo reply from %s: %w", ip, err)
			return result, nil //nolint:nilerr // error is stored in result struct by design
		}
		if udp, ok := peer.(*net.UDPAddr); ok && !udp.IP.Equal(ip) {
			continue
		}
		if !isEchoReply(buf[:n], seq) {
			continue
		}

		result.Reachable = true
		result.Latency = time.Since(start)
		s.logger.Debug().
			Str("address", address).
			Dur("latency", result.Latency).
			Msg("echo reply received")
		return result, nil
	}
}

func echoRequest(seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: []byte("wakebridge"),
		},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("marshal echo request: %w", err)
	}
	return b, nil
}

// isEchoReply matches on sequence only; the kernel rewrites the identifier
// of datagram-socket echoes.
func isEchoReply(b []byte, seq int) bool {
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	return ok && echo.Seq == seq
}
