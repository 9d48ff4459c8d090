// Package config loads the node's table-oriented configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ID                        string                 `koanf:"id"`
	MaxRouteWeight            int                    `koanf:"maxrouteweight"`
	LogLevel                  string                 `koanf:"loglevel"`
	TicketExpirationMs        int64                  `koanf:"ticketexpiration_ms"`
	BroadcastExpirationMs     int64                  `koanf:"broadcastexpiration_ms"`
	BacklogPeriodMs           int64                  `koanf:"backlog_period_ms"`
	AdvertisePeriodMs         int64                  `koanf:"advertise_period_ms"`
	RouteAgePeriodMs          int64                  `koanf:"route_age_period_ms"`
	PollBacklogPeriodMs       int64                  `koanf:"poll_backlog_period_ms"`
	BroadcastHistoryPeriodMs  int64                  `koanf:"broadcast_history_period_ms"`
	CompressionThresholdBytes int                    `koanf:"compression_threshold_bytes"`
	PublicHTTP                PublicHTTPConfig       `koanf:"public_http"`
	PrivateHTTP               PrivateHTTPConfig      `koanf:"private_http"`
	Peer                      map[string]PeerConfig  `koanf:"peer"`
	Ping                      map[string]PingConfig  `koanf:"ping"`
	Trace                     map[string]TraceConfig `koanf:"trace"`
}

type PublicHTTPConfig struct {
	Secret           string `koanf:"secret"`
	Tracing          bool   `koanf:"tracing"`
	LegacyDigestMode bool   `koanf:"legacy_digest_mode"`
	Host             string `koanf:"host"`
	Port             int    `koanf:"port"`
	Endpoint         string `koanf:"endpoint"`
}

type PrivateHTTPConfig struct {
	Tracing             bool   `koanf:"tracing"`
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"`
	TicketSyncEndpoint  string `koanf:"ticket_sync_endpoint"`
	TicketAsyncEndpoint string `koanf:"ticket_async_endpoint"`
}

// PeerConfig is a static peer table row as read from configuration.
// The row carries no id, so Validate rejects a row with an empty URL.
type PeerConfig struct {
	URL     string `koanf:"url"`
	Polling bool   `koanf:"polling"`
}

type PingConfig struct {
	DestinationID string `koanf:"destination_id"`
	DelayMs       int    `koanf:"delay_ms"`
}

type TraceConfig struct {
	DestinationID string `koanf:"destination_id"`
	DelayMs       int    `koanf:"delay_ms"`
	RequestID     string `koanf:"request_id"`
}

// Load reads the TOML configuration at path, overlays environment
// variables prefixed MESHD_, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: MESHD_PUBLIC_HTTP__SECRET -> public_http.secret
	if err := k.Load(env.Provider("MESHD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "MESHD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		MaxRouteWeight:            16,
		LogLevel:                  "info",
		TicketExpirationMs:        5000,
		BroadcastExpirationMs:     60000,
		BacklogPeriodMs:           10,
		AdvertisePeriodMs:         5000,
		RouteAgePeriodMs:          30000,
		PollBacklogPeriodMs:       2000,
		BroadcastHistoryPeriodMs:  60000,
		CompressionThresholdBytes: 4096,
		PublicHTTP: PublicHTTPConfig{
			Host:     "0.0.0.0",
			Port:     7000,
			Endpoint: "/mesh",
		},
		PrivateHTTP: PrivateHTTPConfig{
			Host:                "127.0.0.1",
			Port:                7001,
			TicketSyncEndpoint:  "/ticket/sync",
			TicketAsyncEndpoint: "/ticket/async",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("config: id is required")
	}
	if c.MaxRouteWeight < 0 {
		return fmt.Errorf("config: maxrouteweight must be >= 0 (got %d)", c.MaxRouteWeight)
	}
	if c.TicketExpirationMs <= 0 {
		return fmt.Errorf("config: ticketexpiration_ms must be > 0 (got %d)", c.TicketExpirationMs)
	}
	if c.BroadcastExpirationMs <= 0 {
		return fmt.Errorf("config: broadcastexpiration_ms must be > 0 (got %d)", c.BroadcastExpirationMs)
	}
	if c.BacklogPeriodMs <= 0 {
		return fmt.Errorf("config: backlog_period_ms must be > 0 (got %d)", c.BacklogPeriodMs)
	}
	if c.AdvertisePeriodMs <= 0 {
		return fmt.Errorf("config: advertise_period_ms must be > 0 (got %d)", c.AdvertisePeriodMs)
	}
	if c.RouteAgePeriodMs <= 0 {
		return fmt.Errorf("config: route_age_period_ms must be > 0 (got %d)", c.RouteAgePeriodMs)
	}
	if c.PollBacklogPeriodMs <= 0 {
		return fmt.Errorf("config: poll_backlog_period_ms must be > 0 (got %d)", c.PollBacklogPeriodMs)
	}
	if c.BroadcastHistoryPeriodMs <= 0 {
		return fmt.Errorf("config: broadcast_history_period_ms must be > 0 (got %d)", c.BroadcastHistoryPeriodMs)
	}
	if c.CompressionThresholdBytes <= 0 {
		return fmt.Errorf("config: compression_threshold_bytes must be > 0 (got %d)", c.CompressionThresholdBytes)
	}
	if c.PublicHTTP.Secret == "" {
		return fmt.Errorf("config: public_http.secret is required")
	}
	if c.PublicHTTP.Endpoint == "" {
		return fmt.Errorf("config: public_http.endpoint is required")
	}
	for name, p := range c.Peer {
		if p.URL == "" {
			return fmt.Errorf("config: peer.%s has no url; peers discovered only by id are not configured statically", name)
		}
	}
	for name, p := range c.Ping {
		if p.DestinationID == "" {
			return fmt.Errorf("config: ping.%s.destination_id is required", name)
		}
	}
	for name, tcfg := range c.Trace {
		if tcfg.DestinationID == "" {
			return fmt.Errorf("config: trace.%s.destination_id is required", name)
		}
	}
	return nil
}

// TicketExpiration returns the configured ticket wait cap as a Duration.
func (c *Config) TicketExpiration() time.Duration {
	return time.Duration(c.TicketExpirationMs) * time.Millisecond
}

// BroadcastExpiration returns the configured broadcast-history age cap.
func (c *Config) BroadcastExpiration() time.Duration {
	return time.Duration(c.BroadcastExpirationMs) * time.Millisecond
}

// BacklogPeriod returns the configured backlog processing cadence.
func (c *Config) BacklogPeriod() time.Duration {
	return time.Duration(c.BacklogPeriodMs) * time.Millisecond
}

// AdvertisePeriod returns the configured route-advertisement cadence.
func (c *Config) AdvertisePeriod() time.Duration {
	return time.Duration(c.AdvertisePeriodMs) * time.Millisecond
}

// RouteAgePeriod returns the configured route table aging cadence.
func (c *Config) RouteAgePeriod() time.Duration {
	return time.Duration(c.RouteAgePeriodMs) * time.Millisecond
}

// PollBacklogPeriod returns the configured backlog-polling cadence.
func (c *Config) PollBacklogPeriod() time.Duration {
	return time.Duration(c.PollBacklogPeriodMs) * time.Millisecond
}

// BroadcastHistoryPeriod returns the configured broadcast-history aging cadence.
func (c *Config) BroadcastHistoryPeriod() time.Duration {
	return time.Duration(c.BroadcastHistoryPeriodMs) * time.Millisecond
}
