// Package bridge wires the presence monitor, command router, scheduler and
// broker session together and runs them.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/cooldown"
	"github.com/thibaut1304/Wake-on-lan/internal/services/monitor"
	"github.com/thibaut1304/Wake-on-lan/internal/services/mqtt"
	"github.com/thibaut1304/Wake-on-lan/internal/services/narrator"
	"github.com/thibaut1304/Wake-on-lan/internal/services/probe"
	"github.com/thibaut1304/Wake-on-lan/internal/services/resolver"
	"github.com/thibaut1304/Wake-on-lan/internal/services/router"
	"github.com/thibaut1304/Wake-on-lan/internal/services/scheduler"
	"github.com/thibaut1304/Wake-on-lan/internal/services/telegram"
	"github.com/thibaut1304/Wake-on-lan/internal/services/wol"
)

const stopTimeout = 5 * time.Second

// Service defines the interface for the bridge.
type Service interface {
	Run(ctx context.Context, cfg models.Config) error
}

// BusFactory creates the broker session.
type BusFactory func(logger zerolog.Logger, cfg models.MQTTConfig, opts mqtt.Options) mqtt.Service

// DefaultBusFactory creates an autopaho-backed session.
func DefaultBusFactory(logger zerolog.Logger, cfg models.MQTTConfig, opts mqtt.Options) mqtt.Service {
	return mqtt.New(logger, cfg, opts)
}

// Impl implements the bridge Service interface.
type Impl struct {
	probeSvc    probe.Service
	resolverSvc resolver.Service
	wolSvc      wol.Service
	telegramSvc telegram.Service
	newBus      BusFactory
	logger      zerolog.Logger
}

// New creates a new bridge. Probe and resolver are built from the
// configuration passed to Run.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolSvc:      wol.New(logger),
		telegramSvc: telegram.New(logger),
		newBus:      DefaultBusFactory,
		logger:      logger,
	}
}

// NewWithServices creates a new bridge with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	probeSvc probe.Service,
	resolverSvc resolver.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
	newBus BusFactory,
) *Impl {
	return &Impl{
		probeSvc:    probeSvc,
		resolverSvc: resolverSvc,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		newBus:      newBus,
		logger:      logger,
	}
}

// Run connects to the broker and polls every target until ctx is cancelled.
// Only setup errors are returned; once running, failures are logged.
func (s *Impl) Run(ctx context.Context, cfg models.Config) error {
	probeSvc := s.probeSvc
	if probeSvc == nil {
		var err error
		if probeSvc, err = probe.New(s.logger, cfg.Probe); err != nil {
			return fmt.Errorf("creating probe: %w", err)
		}
	}

	resolverSvc := s.resolverSvc
	if resolverSvc == nil {
		var err error
		if resolverSvc, err = resolver.New(s.logger, cfg.Resolver); err != nil {
			return fmt.Errorf("creating resolver: %w", err)
		}
	}

	var (
		narr *narrator.Narrator
		rt   router.Service
	)

	bus := s.newBus(s.logger, cfg.MQTT, mqtt.Options{
		Topics: Topics(cfg),
		Handler: func(ctx context.Context, topic string, payload []byte) {
			rt.OnMessage(ctx, topic, payload)
		},
		OnConnected: func(ctx context.Context) {
			narr.Infof(ctx, "Connected to MQTT Broker!")
		},
	})

	narr = narrator.New(s.logger, bus, cfg.Debug)

	gates := make(map[string]*cooldown.Gate, len(cfg.Targets))
	for _, t := range cfg.Targets {
		gates[t.Name] = cooldown.New(cfg.WOL.Cooldown)
	}

	mon := monitor.New(s.logger, probeSvc, resolverSvc, bus, narr, cfg.Resolver.StripSuffixes)

	routerOpts := router.Options{
		Targets:    cfg.Targets,
		WOL:        cfg.WOL,
		DebugTopic: cfg.Debug.Topic,
		Gates:      gates,
		Monitor:    mon,
		Waker:      s.wolSvc,
		Narrator:   narr,
	}
	if cfg.Telegram != nil {
		routerOpts.Telegram = s.telegramSvc
		routerOpts.TelegramConfig = cfg.Telegram
	}
	rt = router.New(s.logger, routerOpts)

	sched := scheduler.New(s.logger, mon, narr, cfg.Targets, cfg.PollInterval)

	s.logger.Info().
		Int("targets", len(cfg.Targets)).
		Str("probe", cfg.Probe.Method).
		Str("resolver", cfg.Resolver.Method).
		Bool("debug_topic", narr.Enabled()).
		Dur("cooldown", cfg.WOL.Cooldown).
		Msg("starting wake bridge")

	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting MQTT session: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := bus.Stop(stopCtx); err != nil {
			s.logger.Warn().Err(err).Msg("mqtt shutdown failed")
		}
	}()

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("polling: %w", err)
	}

	s.logger.Info().Msg("wake bridge stopped")
	return nil
}

// Topics lists what the session subscribes to: every command and status
// topic, then the debug topic.
func Topics(cfg models.Config) []string {
	topics := make([]string, 0, 2*len(cfg.Targets)+1)
	for _, t := range cfg.Targets {
		topics = append(topics, t.CommandTopic, t.StatusTopic)
	}
	if cfg.Debug.Topic != "" {
		topics = append(topics, cfg.Debug.Topic)
	}
	return topics
}
