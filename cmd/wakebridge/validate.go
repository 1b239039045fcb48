package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/thibaut1304/Wake-on-lan/internal/services/mqtt"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without connecting to the broker or the network.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		// Check if file exists
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil || cfg == nil {
		return err
	}

	brokerURL, err := mqtt.BrokerURL(cfg.MQTT.Broker)
	if err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("MQTT:")
	fmt.Printf("  Broker: %s\n", brokerURL.Redacted())
	fmt.Printf("  Client ID: %s\n", cfg.MQTT.ClientID)
	fmt.Printf("  Keep alive: %s\n", cfg.MQTT.KeepAlive)
	if cfg.MQTT.AvailabilityTopic != "" {
		fmt.Printf("  Availability topic: %s\n", cfg.MQTT.AvailabilityTopic)
	}
	fmt.Printf("  Debug topic: %s (enabled: %v)\n", cfg.Debug.Topic, cfg.Debug.Enabled)
	fmt.Println()
	fmt.Println("Polling:")
	fmt.Printf("  Interval: %s\n", cfg.PollInterval)
	fmt.Printf("  Probe: %s (timeout %s)\n", cfg.Probe.Method, cfg.Probe.Timeout)
	fmt.Printf("  Resolver: %s (timeout %s)\n", cfg.Resolver.Method, cfg.Resolver.Timeout)
	if cfg.Resolver.Server != "" {
		fmt.Printf("  DNS server: %s\n", cfg.Resolver.Server)
	}
	fmt.Printf("  Strip suffixes: %v\n", cfg.Resolver.StripSuffixes)
	fmt.Println()
	fmt.Println("Wake-on-LAN:")
	fmt.Printf("  Broadcast: %s:%d\n", cfg.WOL.BroadcastIP, cfg.WOL.Port)
	fmt.Printf("  Cooldown: %s\n", cfg.WOL.Cooldown)

	for _, t := range cfg.Targets {
		fmt.Println()
		fmt.Printf("Target %s:\n", t.Name)
		fmt.Printf("  Address: %s\n", t.Address)
		fmt.Printf("  Identity: %s\n", t.Identity)
		fmt.Printf("  MAC Address: %s\n", t.MACAddress)
		fmt.Printf("  Command topic: %s\n", t.CommandTopic)
		fmt.Printf("  Status topic: %s\n", t.StatusTopic)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
