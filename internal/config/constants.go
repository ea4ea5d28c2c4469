package config

import "time"

// Theme defaults
const (
	DefaultPrimaryColor   = "#2563eb"
	DefaultSecondaryColor = "#f97316"
)

// Label defaults
const (
	DefaultPlaceholder = "Type your message..."
	DefaultSendButton  = "Send"
)

// Rating defaults
const DefaultRating = 5

// Mock backend server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 10 * time.Second
)

// Storage ping timeout at startup
const StoragePingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute
