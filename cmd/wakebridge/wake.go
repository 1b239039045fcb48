package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/thibaut1304/Wake-on-lan/internal/config"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
	"github.com/thibaut1304/Wake-on-lan/internal/services/wol"
)

var (
	wakeMAC       string
	wakeBroadcast string
	wakePort      int
)

var wakeCmd = &cobra.Command{
	Use:   "wake [target]",
	Short: "Send a single Wake-on-LAN packet",
	Long: `Send one magic packet right away, without MQTT and without the cooldown.

Either name a target from the config file:
  wakebridge wake desktop -c config.yaml

or give the MAC address directly:
  wakebridge wake --mac AA:BB:CC:DD:EE:FF --broadcast 192.168.1.255`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWake,
}

func init() {
	wakeCmd.Flags().StringVar(&wakeMAC, "mac", "", "MAC address to wake")
	wakeCmd.Flags().StringVar(&wakeBroadcast, "broadcast", "255.255.255.255", "broadcast IP address")
	wakeCmd.Flags().IntVar(&wakePort, "port", 9, "UDP port")
}

func runWake(cmd *cobra.Command, args []string) error {
	wolCfg, err := wakeTarget(args)
	if err != nil {
		log.Error().Err(err).Msg("cannot determine wake target")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := wol.New(log.Logger).Wake(ctx, wolCfg)
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("Error sending WOL packet")
		return result.Error
	}

	fmt.Printf("Magic packet sent to %s via %s:%d\n", result.Target, wolCfg.BroadcastIP, wolCfg.Port)
	return nil
}

func wakeTarget(args []string) (models.WOLConfig, error) {
	if wakeMAC != "" {
		return models.WOLConfig{MACAddress: wakeMAC, BroadcastIP: wakeBroadcast, Port: wakePort}, nil
	}

	if len(args) == 0 {
		return models.WOLConfig{}, fmt.Errorf("either a target name or --mac is required")
	}
	if configFile == "" {
		return models.WOLConfig{}, fmt.Errorf("config file is required to wake target %q", args[0])
	}

	cfg, err := config.NewParser().LoadFile(configFile)
	if err != nil {
		return models.WOLConfig{}, err
	}

	for _, t := range cfg.Targets {
		if t.Name == args[0] {
			return t.WOLConfig(cfg.WOL), nil
		}
	}
	return models.WOLConfig{}, fmt.Errorf("target %q not found in %s", args[0], configFile)
}
