// Package models contains the data structures used throughout wakebridge.
package models

import "time"

// Config holds the complete configuration for a wakebridge process.
type Config struct {
	MQTT         MQTTConfig
	Debug        DebugConfig
	PollInterval time.Duration
	Probe        ProbeConfig
	Resolver     ResolverConfig
	WOL          WOLSettings
	Targets      []Target
	Telegram     *TelegramConfig // nil if not configured
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker            string // URL, e.g. ws://192.168.1.10:9001 or mqtt://broker:1883
	Username          string
	Password          string
	ClientID          string
	KeepAlive         time.Duration
	ConnectTimeout    time.Duration // how long to wait for the first connection before logging it as failed
	PublishTimeout    time.Duration
	AvailabilityTopic string // optional, receives "online"/"offline"
}

// DebugConfig controls the narration published to the debug topic.
type DebugConfig struct {
	Topic   string
	Enabled bool
}

// ProbeConfig selects and tunes the reachability probe.
type ProbeConfig struct {
	Method  string // "exec" (default) or "icmp"
	Timeout time.Duration
}

// ResolverConfig selects and tunes identity resolution.
type ResolverConfig struct {
	Method        string // "dns" (default) or "ssh"
	Server        string // dns: resolver address, empty for the system resolver
	Timeout       time.Duration
	StripSuffixes []string
	SSH           *SSHConfig // required when Method is "ssh"
}

// WOLSettings holds the process-wide wake parameters. The MAC comes from each Target.
type WOLSettings struct {
	BroadcastIP string
	Port        int
	Cooldown    time.Duration
}

// Target describes one monitored host.
type Target struct {
	Name         string
	Address      string
	Identity     string // expected name after normalization
	MACAddress   string
	CommandTopic string
	StatusTopic  string
}

// WOLConfig builds the wake configuration for this target.
func (t Target) WOLConfig(s WOLSettings) WOLConfig {
	return WOLConfig{
		MACAddress:  t.MACAddress,
		BroadcastIP: s.BroadcastIP,
		Port:        s.Port,
	}
}
