package models

import "time"

// Status payloads published to a target's status topic and accepted on its command topic.
const (
	StateOn  = "on"
	StateOff = "off"
)

// UnknownIdentity is reported when a reachable host's name cannot be resolved.
const UnknownIdentity = "unknown"

// Presence is the outcome of one evaluation of a target.
type Presence struct {
	Target     string
	Reachable  bool
	Identity   string // as resolved, or UnknownIdentity
	Normalized string
	State      string // StateOn or StateOff
	CheckedAt  time.Time
}

// ProbeResult holds the result of a reachability probe.
type ProbeResult struct {
	Address   string
	Reachable bool
	Latency   time.Duration
	Error     error
}
