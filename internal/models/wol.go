package models

// WOLConfig holds the parameters of a single Wake-on-LAN transmission.
type WOLConfig struct {
	MACAddress  string
	BroadcastIP string
	Port        int
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent bool
	Target     string // normalized MAC address
	Error      error
}
