// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/thibaut1304/Wake-on-lan/internal/models"
)

// Probe and resolver method names.
const (
	ProbeExec   = "exec"
	ProbeICMP   = "icmp"
	ResolverDNS = "dns"
	ResolverSSH = "ssh"
)

// DisableDebugEnv turns off debug-topic publication when set to "true".
const DisableDebugEnv = "DISABLE_MQTT_DEBUG"

// DefaultStripSuffixes are removed from resolved host names before matching.
var DefaultStripSuffixes = []string{".home", "-1"}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	_ = v.BindEnv("debug.disabled", DisableDebugEnv)
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. The format follows the
// file extension (yaml, json, ini, toml) and falls back to yaml.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		p.v.SetConfigType(ext)
	}

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

type rawTarget struct {
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	Identity     string `mapstructure:"identity"`
	MACAddress   string `mapstructure:"mac_address"`
	CommandTopic string `mapstructure:"command_topic"`
	StatusTopic  string `mapstructure:"status_topic"`
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	// Parse MQTT config (required).
	cfg.MQTT = models.MQTTConfig{
		Broker:            p.expandEnv(p.v.GetString("mqtt.broker")),
		Username:          p.expandEnv(p.v.GetString("mqtt.username")),
		Password:          p.expandEnv(p.v.GetString("mqtt.password")),
		ClientID:          p.v.GetString("mqtt.client_id"),
		KeepAlive:         p.duration("mqtt.keep_alive"),
		ConnectTimeout:    p.duration("mqtt.connect_timeout"),
		PublishTimeout:    p.duration("mqtt.publish_timeout"),
		AvailabilityTopic: p.v.GetString("mqtt.availability_topic"),
	}

	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "wakebridge-" + uuid.NewString()[:8]
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = 30 * time.Second
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = 30 * time.Second
	}
	if cfg.MQTT.PublishTimeout == 0 {
		cfg.MQTT.PublishTimeout = 5 * time.Second
	}

	// Parse debug narration settings.
	cfg.Debug = models.DebugConfig{
		Topic:   p.v.GetString("debug.topic"),
		Enabled: true,
	}
	if p.v.IsSet("debug.enabled") {
		cfg.Debug.Enabled = p.v.GetBool("debug.enabled")
	}
	if p.v.GetBool("debug.disabled") || cfg.Debug.Topic == "" {
		cfg.Debug.Enabled = false
	}

	cfg.PollInterval = p.duration("poll_interval")
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Minute
	}

	// Parse probe settings.
	cfg.Probe = models.ProbeConfig{
		Method:  strings.ToLower(p.v.GetString("probe.method")),
		Timeout: p.duration("probe.timeout"),
	}
	if cfg.Probe.Method == "" {
		cfg.Probe.Method = ProbeExec
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 2 * time.Second
	}

	// Parse resolver settings.
	cfg.Resolver = models.ResolverConfig{
		Method:        strings.ToLower(p.v.GetString("resolver.method")),
		Server:        p.v.GetString("resolver.server"),
		Timeout:       p.duration("resolver.timeout"),
		StripSuffixes: p.v.GetStringSlice("resolver.strip_suffixes"),
	}
	if cfg.Resolver.Method == "" {
		cfg.Resolver.Method = ResolverDNS
	}
	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = 2 * time.Second
	}
	if !p.v.IsSet("resolver.strip_suffixes") {
		cfg.Resolver.StripSuffixes = append([]string(nil), DefaultStripSuffixes...)
	}
	if cfg.Resolver.Server != "" {
		if _, _, err := net.SplitHostPort(cfg.Resolver.Server); err != nil {
			cfg.Resolver.Server = net.JoinHostPort(cfg.Resolver.Server, "53")
		}
	}
	if p.v.IsSet("resolver.ssh") {
		cfg.Resolver.SSH = &models.SSHConfig{
			Port:     p.v.GetInt("resolver.ssh.port"),
			Username: p.v.GetString("resolver.ssh.username"),
			KeyPath:  p.expandEnv(p.v.GetString("resolver.ssh.key_path")),
		}
		if cfg.Resolver.SSH.Port == 0 {
			cfg.Resolver.SSH.Port = 22
		}
	}
	if cfg.Resolver.Method == ResolverSSH && cfg.Resolver.SSH == nil {
		return nil, fmt.Errorf("resolver.ssh is required when resolver.method is ssh")
	}

	// Parse WOL settings.
	cfg.WOL = models.WOLSettings{
		BroadcastIP: p.v.GetString("wol.broadcast_ip"),
		Port:        p.v.GetInt("wol.port"),
		Cooldown:    p.duration("wol.cooldown"),
	}
	if cfg.WOL.BroadcastIP == "" {
		cfg.WOL.BroadcastIP = "255.255.255.255"
	}
	if cfg.WOL.Port == 0 {
		cfg.WOL.Port = 9
	}
	if cfg.WOL.Cooldown == 0 {
		cfg.WOL.Cooldown = 3 * time.Minute
	}

	// Parse targets: a "targets" list, or a single "target" section.
	var raws []rawTarget
	if p.v.IsSet("targets") {
		if err := p.v.UnmarshalKey("targets", &raws); err != nil {
			return nil, fmt.Errorf("parsing targets: %w", err)
		}
	} else if p.v.IsSet("target") {
		raws = append(raws, rawTarget{
			Name:         p.v.GetString("target.name"),
			Address:      p.v.GetString("target.address"),
			Identity:     p.v.GetString("target.identity"),
			MACAddress:   p.v.GetString("target.mac_address"),
			CommandTopic: p.v.GetString("target.command_topic"),
			StatusTopic:  p.v.GetString("target.status_topic"),
		})
	}

	if len(raws) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}

	for i, r := range raws {
		t := models.Target(r)
		if t.Address == "" {
			return nil, fmt.Errorf("targets[%d].address is required", i)
		}
		if t.Name == "" {
			t.Name = t.Address
		}
		cfg.Targets = append(cfg.Targets, t)
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// duration reads a duration. Bare integers are seconds, so "300" and "5m" agree.
func (p *Parser) duration(key string) time.Duration {
	raw := strings.TrimSpace(p.v.GetString(key))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return p.v.GetDuration(key)
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	switch cfg.Probe.Method {
	case ProbeExec, ProbeICMP:
	default:
		return fmt.Errorf("probe.method must be one of: exec, icmp")
	}

	switch cfg.Resolver.Method {
	case ResolverDNS:
	case ResolverSSH:
		if cfg.Resolver.SSH == nil || cfg.Resolver.SSH.Username == "" || cfg.Resolver.SSH.KeyPath == "" {
			return fmt.Errorf("resolver.ssh.username and resolver.ssh.key_path are required when resolver.method is ssh")
		}
	default:
		return fmt.Errorf("resolver.method must be one of: dns, ssh")
	}

	if cfg.WOL.Cooldown < 0 {
		return fmt.Errorf("wol.cooldown must not be negative")
	}

	if net.ParseIP(cfg.WOL.BroadcastIP) == nil {
		return fmt.Errorf("wol.broadcast_ip %q is not an IP address", cfg.WOL.BroadcastIP)
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}

	commandTopics := make(map[string]string, len(cfg.Targets))
	names := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		// Each target owns one cooldown gate, keyed by name.
		if names[t.Name] {
			return fmt.Errorf("target name %q is used more than once", t.Name)
		}
		names[t.Name] = true

		if t.Address == "" {
			return fmt.Errorf("target %s: address is required", t.Name)
		}
		if t.Identity == "" {
			return fmt.Errorf("target %s: identity is required", t.Name)
		}
		if t.CommandTopic == "" {
			return fmt.Errorf("target %s: command_topic is required", t.Name)
		}
		if t.StatusTopic == "" {
			return fmt.Errorf("target %s: status_topic is required", t.Name)
		}
		if t.CommandTopic == t.StatusTopic {
			return fmt.Errorf("target %s: command_topic and status_topic must differ", t.Name)
		}
		if err := ValidateMAC(t.MACAddress); err != nil {
			return fmt.Errorf("target %s: %w", t.Name, err)
		}
		if other, ok := commandTopics[t.CommandTopic]; ok {
			return fmt.Errorf("targets %s and %s share command_topic %q", other, t.Name, t.CommandTopic)
		}
		commandTopics[t.CommandTopic] = t.Name
	}

	return nil
}

// ValidateMAC accepts only 6-byte (EUI-48) hardware addresses.
func ValidateMAC(s string) error {
	if s == "" {
		return fmt.Errorf("mac_address is required")
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		return fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(mac) != 6 {
		return fmt.Errorf("invalid MAC address %q: must be 6 bytes, got %d", s, len(mac))
	}
	return nil
}
