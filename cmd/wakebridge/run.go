package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/thibaut1304/Wake-on-lan/internal/config"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/bridge"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the presence and wake bridge",
	Long: `Connect to the MQTT broker and run until interrupted:
1. Evaluate every target immediately, then once per poll interval
2. Publish "on" or "off" to each target's status topic
3. On "on" from a command topic, wake the target if it is offline
   and the cooldown allows it
4. Ignore "off" on command topics
5. Re-check status for any other command payload`,
	RunE: runBridge,
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil || cfg == nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("broker", cfg.MQTT.Broker).
		Int("targets", len(cfg.Targets)).
		Dur("poll_interval", cfg.PollInterval).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	bridgeSvc := bridge.New(log.Logger)
	if err := bridgeSvc.Run(ctx, *cfg); err != nil {
		log.Error().Err(err).Msg("bridge failed")
		return err
	}

	return nil
}

// loadConfig loads and validates the config file. It returns a nil config
// and nil error after printing help when no file was given.
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return nil, cmd.Help()
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}
