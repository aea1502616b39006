package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Websocket relay tuning
const (
	RelayWriteWait      = 10 * time.Second
	RelayPongWait       = 60 * time.Second
	RelayPingPeriod     = 50 * time.Second
	RelayMaxMessageSize = 64 * 1024
	RelaySendBuffer     = 64
)
