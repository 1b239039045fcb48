// Package router dispatches inbound bus messages to the wake and status paths.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/cooldown"
	"github.com/thibaut1304/Wake-on-lan/internal/services/monitor"
	"github.com/thibaut1304/Wake-on-lan/internal/services/narrator"
	"github.com/thibaut1304/Wake-on-lan/internal/services/telegram"
	"github.com/thibaut1304/Wake-on-lan/internal/services/wol"
)

// Service defines the interface for inbound message routing.
type Service interface {
	OnMessage(ctx context.Context, topic string, payload []byte)
}

// Options carries the collaborators of the router.
type Options struct {
	Targets        []models.Target
	WOL            models.WOLSettings
	DebugTopic     string
	Gates          map[string]*cooldown.Gate
	Monitor        monitor.Service
	Waker          wol.Service
	Narrator       *narrator.Narrator
	Telegram       telegram.Service
	TelegramConfig *models.TelegramConfig
}

// Impl implements the router Service interface.
type Impl struct {
	byCommand   map[string]models.Target
	byStatus    map[string]models.Target
	wolSettings models.WOLSettings
	debugTopic  string
	gates       map[string]*cooldown.Gate
	monitor     monitor.Service
	waker       wol.Service
	narrator    *narrator.Narrator
	telegram    telegram.Service
	telegramCfg *models.TelegramConfig
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a new router. Targets without a gate in opts.Gates get a fresh
// one built from opts.WOL.Cooldown.
func New(logger zerolog.Logger, opts Options) *Impl {
	s := &Impl{
		byCommand:   make(map[string]models.Target, len(opts.Targets)),
		byStatus:    make(map[string]models.Target, len(opts.Targets)),
		wolSettings: opts.WOL,
		debugTopic:  opts.DebugTopic,
		gates:       make(map[string]*cooldown.Gate, len(opts.Targets)),
		monitor:     opts.Monitor,
		waker:       opts.Waker,
		narrator:    opts.Narrator,
		telegram:    opts.Telegram,
		telegramCfg: opts.TelegramConfig,
		logger:      logger,
		now:         time.Now,
	}

	for _, t := range opts.Targets {
		s.byCommand[t.CommandTopic] = t
		s.byStatus[t.StatusTopic] = t

		gate, ok := opts.Gates[t.Name]
		if !ok {
			gate = cooldown.New(opts.WOL.Cooldown)
		}
		s.gates[t.Name] = gate
	}

	return s
}

// OnMessage handles one inbound message. "off" on a command topic is never
// acted upon, since the status path may echo it back.
func (s *Impl) OnMessage(ctx context.Context, topic string, payload []byte) {
	command := strings.ToLower(strings.TrimSpace(string(payload)))

	target, ok := s.byCommand[topic]
	if !ok {
		s.observe(topic, command)
		return
	}

	switch command {
	case models.StateOff:
		s.logger.Debug().
			Str("target", target.Name).
			Msg("ignoring off command")
	case models.StateOn:
		s.handleDirectCommand(ctx, target)
	default:
		s.logger.Debug().
			Str("target", target.Name).
			Str("command", command).
			Msg("re-checking status")
		s.monitor.EvaluateAndPublish(ctx, target)
	}
}

func (s *Impl) observe(topic, payload string) {
	switch {
	case topic == s.debugTopic && topic != "":
		// Never narrate here: narration is published to this topic.
		s.logger.Trace().Str("payload", payload).Msg("debug message")
	case s.isStatusTopic(topic):
		s.logger.Debug().
			Str("target", s.byStatus[topic].Name).
			Str("state", payload).
			Msg("status observed")
	default:
		s.logger.Debug().Str("topic", topic).Msg("ignoring message on unknown topic")
	}
}

func (s *Impl) isStatusTopic(topic string) bool {
	_, ok := s.byStatus[topic]
	return ok
}

func (s *Impl) handleDirectCommand(ctx context.Context, target models.Target) {
	if s.monitor.Reachable(ctx, target) {
		s.narrator.Infof(ctx, "%s is already online, skipping WOL.", target.Name)
		return
	}

	allowed, remaining := s.gates[target.Name].TryConsume()
	if !allowed {
		s.narrator.Infof(ctx, "WOL skipped: cooldown active (%ds left)", int(remaining/time.Second))
		return
	}

	s.narrator.Infof(ctx, "%s is offline, sending WOL...", target.Name)
	s.wake(ctx, target)
}

func (s *Impl) wake(ctx context.Context, target models.Target) {
	s.narrator.Infof(ctx, "Sending Wake-on-LAN packet to %s", target.MACAddress)

	var sendErr error
	result, err := s.waker.Wake(ctx, target.WOLConfig(s.wolSettings))
	switch {
	case err != nil:
		sendErr = err
	case result.Error != nil:
		sendErr = result.Error
	}

	if sendErr != nil {
		s.narrator.Warnf(ctx, "Error sending WOL packet: %v", sendErr)
	} else {
		s.narrator.Infof(ctx, "WOL packet sent successfully.")
	}

	s.notify(ctx, target, sendErr)
}

func (s *Impl) notify(ctx context.Context, target models.Target, sendErr error) {
	if s.telegram == nil || s.telegramCfg == nil {
		return
	}

	msg := models.TelegramMessage{
		Target:     target.Name,
		Address:    target.Address,
		MACAddress: target.MACAddress,
		SentAt:     s.now(),
	}
	if sendErr != nil {
		msg.ErrorMessage = sendErr.Error()
	}

	result, err := s.telegram.SendNotification(ctx, *s.telegramCfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}
