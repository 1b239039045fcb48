// Package monitor decides whether a target is on and publishes the result.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/narrator"
	"github.com/thibaut1304/Wake-on-lan/internal/services/probe"
	"github.com/thibaut1304/Wake-on-lan/internal/services/resolver"
)

// Service defines the interface for presence evaluation.
type Service interface {
	EvaluateAndPublish(ctx context.Context, target models.Target) models.Presence
	Reachable(ctx context.Context, target models.Target) bool
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Impl implements the monitor Service interface.
type Impl struct {
	probe     probe.Service
	resolver  resolver.Service
	publisher Publisher
	narrator  *narrator.Narrator
	suffixes  []string
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a new presence monitor. suffixes are stripped from resolved
// names before they are compared with the expected identity.
func New(
	logger zerolog.Logger,
	probeSvc probe.Service,
	resolverSvc resolver.Service,
	publisher Publisher,
	narr *narrator.Narrator,
	suffixes []string,
) *Impl {
	return &Impl{
		probe:     probeSvc,
		resolver:  resolverSvc,
		publisher: publisher,
		narrator:  narr,
		suffixes:  suffixes,
		logger:    logger,
		now:       time.Now,
	}
}

// EvaluateAndPublish probes the target, resolves its name when it answers and
// publishes "on" only for a reachable host whose name matches. Every other
// outcome, failures included, publishes "off". Exactly one status message is
// published per call.
func (s *Impl) EvaluateAndPublish(ctx context.Context, target models.Target) models.Presence {
	presence := models.Presence{
		Target:    target.Name,
		Identity:  models.UnknownIdentity,
		State:     models.StateOff,
		CheckedAt: s.now(),
	}

	if s.Reachable(ctx, target) {
		presence.Reachable = true

		name, err := s.resolver.Resolve(ctx, target.Address)
		if err != nil {
			s.narrator.Warnf(ctx, "Error resolving %s: %v", target.Address, err)
		} else {
			presence.Identity = name
			presence.Normalized = resolver.Normalize(name, s.suffixes)
		}

		s.narrator.Infof(ctx, "ONLINE: %s", presence.Identity)

		if err == nil && presence.Normalized == target.Identity {
			presence.State = models.StateOn
		} else {
			s.narrator.Infof(ctx, "%s answers as %q, expected %q", target.Address, presence.Identity, target.Identity)
		}
	}

	if presence.State == models.StateOff {
		s.narrator.Infof(ctx, "OFFLINE: %s", target.Name)
	}

	s.publish(ctx, target.StatusTopic, presence.State)

	s.logger.Debug().
		Str("target", target.Name).
		Bool("reachable", presence.Reachable).
		Str("identity", presence.Identity).
		Str("state", presence.State).
		Msg("presence evaluated")

	return presence
}

// Reachable probes the target. Probe errors count as unreachable.
func (s *Impl) Reachable(ctx context.Context, target models.Target) bool {
	result, err := s.probe.Probe(ctx, target.Address)
	if err != nil {
		s.narrator.Warnf(ctx, "Failed to ping %s: %v", target.Address, err)
		return false
	}
	if result.Error != nil {
		s.logger.Debug().Err(result.Error).Str("address", target.Address).Msg("probe failed")
		return false
	}
	return result.Reachable
}

func (s *Impl) publish(ctx context.Context, topic, payload string) {
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn().
			Err(err).
			Str("topic", topic).
			Str("payload", payload).
			Msg("status publish failed")
	}
}
