// Package resolver maps an address to the name the host goes by.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/ssh"
)

// Resolver methods.
const (
	MethodDNS = "dns"
	MethodSSH = "ssh"
)

// Service resolves an address to a host name. Callers treat any error as
// models.UnknownIdentity.
type Service interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// New returns the resolver selected by cfg.Method.
func New(logger zerolog.Logger, cfg models.ResolverConfig) (Service, error) {
	switch cfg.Method {
	case MethodDNS, "":
		return NewDNS(logger, cfg.Server, cfg.Timeout), nil
	case MethodSSH:
		if cfg.SSH == nil {
			return nil, fmt.Errorf("ssh resolver requires ssh settings")
		}
		return NewSSH(logger, ssh.New(logger, cfg.Timeout), *cfg.SSH, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown resolver method %q", cfg.Method)
	}
}

// Lookuper is the subset of net.Resolver used for reverse lookups.
type Lookuper interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DNSImpl resolves names with a PTR lookup.
type DNSImpl struct {
	lookup  Lookuper
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDNS creates a DNS resolver. When server (host:port) is set every query
// goes to it instead of the system resolver.
func NewDNS(logger zerolog.Logger, server string, timeout time.Duration) *DNSImpl {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	r := &net.Resolver{PreferGo: true}
	if server != "" {
		r.Dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, server)
		}
	}

	return NewDNSWithLookuper(logger, r, timeout)
}

// NewDNSWithLookuper creates a DNS resolver with a custom lookuper (for testing).
func NewDNSWithLookuper(logger zerolog.Logger, lookup Lookuper, timeout time.Duration) *DNSImpl {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSImpl{
		lookup:  lookup,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the first PTR name for address. Host names are resolved
// forward first.
func (s *DNSImpl) Resolve(ctx context.Context, address string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ip := address
	if net.ParseIP(address) == nil {
		addrs, err := s.lookup.LookupHost(ctx, address)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", address, err)
		}
		if len(addrs) == 0 {
			return "", fmt.Errorf("no address for %s", address)
		}
		ip = addrs[0]
	}

	names, err := s.lookup.LookupAddr(ctx, ip)
	if err != nil {
		return "", fmt.Errorf("reverse lookup of %s failed: %w", ip, err)
	}
	for _, name := range names {
		if name = strings.TrimSuffix(name, "."); name != "" {
			s.logger.Debug().Str("address", ip).Str("name", name).Msg("reverse lookup")
			return name, nil
		}
	}

	return "", fmt.Errorf("no PTR record for %s", ip)
}

// SSHImpl asks the host itself for its name.
type SSHImpl struct {
	ssh     ssh.Service
	cfg     models.SSHConfig
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSSH creates a resolver that runs `hostname` on the target.
func NewSSH(logger zerolog.Logger, svc ssh.Service, cfg models.SSHConfig, timeout time.Duration) *SSHImpl {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SSHImpl{
		ssh:     svc,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the output of `hostname` on address.
func (s *SSHImpl) Resolve(ctx context.Context, address string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.ssh.Hostname(ctx, address, s.cfg)
	if err != nil {
		return "", fmt.Errorf("ssh hostname query failed: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("ssh hostname query failed: %w", result.Error)
	}

	return result.Output, nil
}

// Normalize strips a trailing dot and then the given suffixes until none
// applies, so Normalize(Normalize(x)) == Normalize(x). A suffix is never
// stripped when nothing would remain.
func Normalize(name string, suffixes []string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")

	for {
		stripped := false
		for _, suffix := range suffixes {
			if suffix == "" || len(name) <= len(suffix) {
				continue
			}
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				stripped = true
			}
		}
		if !stripped {
			return name
		}
	}
}
