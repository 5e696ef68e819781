package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the top-level configuration for the EscrowLane service.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Auth       *Auth
	Log        *Log
	Thresholds *Thresholds
}

// Server holds transport configuration.
type Server struct {
	Http *ServerHTTP
}

// ServerHTTP holds HTTP server configuration.
type ServerHTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Database *Database
	Redis    *Redis
	Nats     *Nats
	Transfer *Transfer
}

// Database holds MySQL configuration.
type Database struct {
	Driver string
	Source string
}

// Redis holds Redis configuration.
type Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Nats holds event bus configuration. An empty URL disables publication.
type Nats struct {
	Url     string
	Subject string
}

// Transfer holds the asset-transfer collaborator endpoint. An empty URL
// selects the logging no-op implementation.
type Transfer struct {
	Url     string
	Timeout *durationpb.Duration
}

// Auth holds authentication configuration.
type Auth struct {
	Encryption *Encryption
}

// Encryption holds the key used to encrypt signer secrets at rest.
type Encryption struct {
	Key string
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	OutputFile string
}

// Thresholds holds the default circuit-breaker configuration applied when no
// threshold config has been stored yet. Runtime reconfiguration goes through
// the ConfigureThresholds operation and is persisted.
type Thresholds struct {
	FailureRateThreshold   uint32
	OutflowVolumeThreshold int64
	MaxSinglePayout        int64
	TimeWindowSecs         uint64
	CooldownPeriodSecs     uint64
	CooldownMultiplier     uint32
}
