package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Config is the top-level manifest (steeze.toml or steeze.yaml).
type Config struct {
	Server    Server    `toml:"server" yaml:"server"`
	Script    Script    `toml:"script" yaml:"script"`
	WebSocket WebSocket `toml:"websocket" yaml:"websocket"`
	Log       Log       `toml:"log" yaml:"log"`
	Metrics   Metrics   `toml:"metrics" yaml:"metrics"`
	Auth      Auth      `toml:"auth" yaml:"auth"`
}

// Default returns the manifest used when no file is present. Decoding a file
// on top of it keeps defaults for every key the file leaves out.
func Default() Config {
	return Config{
		Server: Server{
			Port:                  3000,
			ReadTimeoutMS:         15000,
			IdleTimeoutMS:         60000,
			UnterminatedTimeoutMS: 30000,
			MaxBodyBytes:          8 << 20,
			BodyChunkBytes:        16 << 10,
		},
		Script: Script{
			Path:          "app.lua",
			Module:        "steeze",
			CallStackSize: 256,
			RegistrySize:  5120,
		},
		WebSocket: WebSocket{
			ReadBuffer:      1024,
			WriteBuffer:     1024,
			ReadLimit:       1 << 20,
			SendQueue:       256,
			PongWaitMS:      60000,
			CloseGraceMS:    5000,
			AllowAllOrigins: true,
		},
		Log: Log{
			Dir:        "log",
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Console:    true,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
		Auth: Auth{
			Cookie:        "assert",
			LeewaySeconds: 60,
		},
	}
}

// Validate normalizes the manifest in place and rejects impossible values.
func (c *Config) Validate() error {
	c.normalize()

	s := c.Server
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Port)
	}
	if s.ReadTimeoutMS < 0 || s.IdleTimeoutMS < 0 || s.UnterminatedTimeoutMS < 0 {
		return errors.New("server timeouts must be >= 0")
	}
	if s.BodyChunkBytes <= 0 {
		return errors.New("server.body_chunk_bytes must be > 0")
	}
	if s.MaxBodyBytes < 0 {
		return errors.New("server.max_body_bytes must be >= 0")
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}

	if c.Script.Module == "" {
		return errors.New("script.module is required")
	}
	if c.Script.CallStackSize < 0 || c.Script.RegistrySize < 0 {
		return errors.New("script sizes must be >= 0")
	}

	w := c.WebSocket
	if w.SendQueue <= 0 {
		return errors.New("websocket.send_queue must be > 0")
	}
	if w.ReadLimit < 0 || w.PingIntervalMS < 0 || w.PongWaitMS < 0 || w.CloseGraceMS < 0 {
		return errors.New("websocket limits must be >= 0")
	}
	if w.PingIntervalMS > 0 && w.PingIntervalMS >= w.PongWaitMS {
		return errors.New("websocket.ping_interval_ms must be < pong_wait_ms")
	}
	if w.MaxMessagesPerSecond < 0 || w.Burst < 0 {
		return errors.New("websocket rate limit values must be >= 0")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q invalid", c.Log.Level)
	}

	if c.Auth.Enabled && c.Auth.HMACSecret == "" && c.Auth.PublicKeyFile == "" {
		return errors.New("auth.enabled requires hmac_secret or public_key_file")
	}
	return nil
}

func (c *Config) normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Server.HeartbeatPath = cleanPath(c.Server.HeartbeatPath)
	c.Script.Module = strings.TrimSpace(c.Script.Module)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Metrics.Path = cleanPath(c.Metrics.Path)
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.WebSocket.Burst == 0 {
		c.WebSocket.Burst = c.WebSocket.MaxMessagesPerSecond
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Millis converts a manifest millisecond value.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Addr is the host:port the engine binds for port.
func (s Server) Addr(port int) string { return fmt.Sprintf("%s:%d", s.Host, port) }
