// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address via addr (ip:port).
func (c *DefaultClient) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		logger:    logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, wolClient Client) *Impl {
	return &Impl{
		wolClient: wolClient,
		logger:    logger,
	}
}

// Wake sends a single WOL packet. It never retries; failures are reported in the result.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}

	mac, err := ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = err
		return result, nil
	}
	result.Target = mac.String()

	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		result.Error = fmt.Errorf("invalid broadcast IP: %s", cfg.BroadcastIP)
		return result, nil
	}
	port := cfg.Port
	if port == 0 {
		port = 9
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	s.logger.Info().
		Str("mac", result.Target).
		Str("addr", addr).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(addr, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.PacketSent = true
	s.logger.Info().Str("mac", result.Target).Msg("WOL packet sent successfully")

	return result, nil
}

// ParseMAC parses s and rejects anything but a 6-byte hardware address.
func ParseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("invalid MAC address %q: must be 6 bytes, got %d", s, len(mac))
	}
	return mac, nil
}

// MagicPacket returns the payload broadcast for mac: six 0xFF bytes followed
// by the address repeated sixteen times.
func MagicPacket(mac net.HardwareAddr) ([]byte, error) {
	p := &wol.MagicPacket{Target: mac}
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal magic packet: %w", err)
	}
	return b, nil
}
