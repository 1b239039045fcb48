// Package probe checks whether a host answers on the network.
package probe

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

// Probe methods.
const (
	MethodExec = "exec"
	MethodICMP = "icmp"
)

// Service defines the interface for reachability probes. Probe errors and
// timeouts are reported in the result as unreachable, never as a failure of
// the call itself.
type Service interface {
	Probe(ctx context.Context, address string) (*models.ProbeResult, error)
}

// New returns the probe selected by cfg.Method.
func New(logger zerolog.Logger, cfg models.ProbeConfig) (Service, error) {
	switch cfg.Method {
	case MethodExec, "":
		return NewExec(logger, cfg.Timeout), nil
	case MethodICMP:
		return NewICMP(logger, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.Method)
	}
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExecImpl probes by running the system ping command once.
type ExecImpl struct {
	executor CommandExecutor
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewExec creates a probe backed by the ping binary.
func NewExec(logger zerolog.Logger, timeout time.Duration) *ExecImpl {
	return NewExecWithExecutor(logger, timeout, &DefaultExecutor{})
}

// NewExecWithExecutor creates a ping probe with a custom executor (for testing).
func NewExecWithExecutor(logger zerolog.Logger, timeout time.Duration, executor CommandExecutor) *ExecImpl {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ExecImpl{
		executor: executor,
		timeout:  timeout,
		logger:   logger,
	}
}

// Probe sends one echo request with ping. Any non-zero exit means unreachable.
func (s *ExecImpl) Probe(ctx context.Context, address string) (*models.ProbeResult, error) {
	result := &models.ProbeResult{Address: address}

	// ping gets its own deadline; the context is a backstop in case it hangs on name resolution.
	ctx, cancel := context.WithTimeout(ctx, s.timeout+time.Second)
	defer cancel()

	args := s.buildArgs(address)
	s.logger.Debug().Strs("args", args).Msg("running ping")

	start := time.Now()
	output, err := s.executor.Execute(ctx, "ping", args...)
	if err != nil {
		result.Error = fmt.Errorf("failed to ping %s: %w: %s", address, err, string(output))
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.Reachable = true
	result.Latency = time.Since(start)
	return result, nil
}

func (s *ExecImpl) buildArgs(address string) []string {
	wait := int(math.Ceil(s.timeout.Seconds()))
	if wait < 1 {
		wait = 1
	}
	return []string{"-c", "1", "-W", strconv.Itoa(wait), address}
}
