package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a wake notification.
type TelegramMessage struct {
	Target     string
	Address    string
	MACAddress string
	SentAt     time.Time

	// Error info (if the packet could not be sent).
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
