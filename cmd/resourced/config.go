package main

import "time"

// Config is the top-level configuration for the resourced gateway,
// loaded by pkg/config from a YAML file and overridable with
// RESOURCED_-prefixed environment variables.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Auth      AuthConfig      `yaml:"auth"`
	NATS      NATSConfig      `yaml:"nats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// HTTPConfig configures the fasthttp REST listener.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// WebSocketConfig configures the net/http transition-stream listener.
type WebSocketConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig configures bearer-token authentication for the REST API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// NATSConfig configures the dispatch.NatsDispatcher connection.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// TelemetryConfig configures the Prometheus/sqlite snapshot sink.
type TelemetryConfig struct {
	SnapshotDB       string        `yaml:"snapshot_db"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// DefaultConfig returns the gateway's defaults, overridden by whatever
// Load finds on disk and then by environment.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Addr: ":8081",
		},
		Auth: AuthConfig{
			Issuer: "resourcefsm",
		},
		NATS: NATSConfig{
			URL: "nats://127.0.0.1:4222",
		},
		Telemetry: TelemetryConfig{
			SnapshotDB:       "resourcefsm_snapshots.db",
			SnapshotInterval: 10 * time.Second,
		},
	}
}
