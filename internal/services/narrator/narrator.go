// Package narrator writes operational narration to the log and, when
// enabled, mirrors it to the MQTT debug topic.
package narrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Narrator never influences control flow: a failed debug publish is only logged.
type Narrator struct {
	publisher Publisher
	topic     string
	enabled   bool
	logger    zerolog.Logger
}

// New creates a Narrator. publisher may be nil, in which case nothing is published.
func New(logger zerolog.Logger, publisher Publisher, cfg models.DebugConfig) *Narrator {
	return &Narrator{
		publisher: publisher,
		topic:     cfg.Topic,
		enabled:   cfg.Enabled && cfg.Topic != "" && publisher != nil,
		logger:    logger,
	}
}

// Infof narrates at info level.
func (n *Narrator) Infof(ctx context.Context, format string, args ...any) {
	n.say(ctx, zerolog.InfoLevel, fmt.Sprintf(format, args...))
}

// Warnf narrates at warn level.
func (n *Narrator) Warnf(ctx context.Context, format string, args ...any) {
	n.say(ctx, zerolog.WarnLevel, fmt.Sprintf(format, args...))
}

// Enabled reports whether narration is published to the debug topic.
func (n *Narrator) Enabled() bool {
	return n.enabled
}

func (n *Narrator) say(ctx context.Context, level zerolog.Level, msg string) {
	n.logger.WithLevel(level).Msg(msg)

	if !n.enabled {
		return
	}
	if err := n.publisher.Publish(ctx, n.topic, msg); err != nil {
		n.logger.Debug().Err(err).Str("topic", n.topic).Msg("debug publish failed")
	}
}
