package manifest

// Server configures the native HTTP engine.
type Server struct {
	Host                  string `toml:"host" yaml:"host"`
	Port                  int    `toml:"port" yaml:"port"` // used when listen() is called without a port
	ReadTimeoutMS         int    `toml:"read_timeout_ms" yaml:"read_timeout_ms"`
	IdleTimeoutMS         int    `toml:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	UnterminatedTimeoutMS int    `toml:"unterminated_timeout_ms" yaml:"unterminated_timeout_ms"`
	MaxBodyBytes          int64  `toml:"max_body_bytes" yaml:"max_body_bytes"`
	BodyChunkBytes        int    `toml:"body_chunk_bytes" yaml:"body_chunk_bytes"`
	HeartbeatPath         string `toml:"heartbeat_path" yaml:"heartbeat_path"` // empty disables
	TLSCert               string `toml:"tls_cert" yaml:"tls_cert"`
	TLSKey                string `toml:"tls_key" yaml:"tls_key"`
}

// Script configures the embedded Lua interpreter.
type Script struct {
	Path          string `toml:"path" yaml:"path"`
	Module        string `toml:"module" yaml:"module"` // require() name of the bridge module
	CallStackSize int    `toml:"call_stack_size" yaml:"call_stack_size"`
	RegistrySize  int    `toml:"registry_size" yaml:"registry_size"`
}

// WebSocket configures the native WebSocket engine.
type WebSocket struct {
	ReadBuffer           int   `toml:"read_buffer" yaml:"read_buffer"`
	WriteBuffer          int   `toml:"write_buffer" yaml:"write_buffer"`
	ReadLimit            int64 `toml:"read_limit" yaml:"read_limit"`
	SendQueue            int   `toml:"send_queue" yaml:"send_queue"`
	PingIntervalMS       int   `toml:"ping_interval_ms" yaml:"ping_interval_ms"` // 0 disables keepalive
	PongWaitMS           int   `toml:"pong_wait_ms" yaml:"pong_wait_ms"`
	CloseGraceMS         int   `toml:"close_grace_ms" yaml:"close_grace_ms"`
	MaxMessagesPerSecond int   `toml:"max_messages_per_second" yaml:"max_messages_per_second"` // 0 disables
	Burst                int   `toml:"burst" yaml:"burst"`
	AllowAllOrigins      bool  `toml:"allow_all_origins" yaml:"allow_all_origins"`
	Compression          bool  `toml:"compression" yaml:"compression"`
}

// Log configures the rotating zap loggers.
type Log struct {
	Dir        string `toml:"dir" yaml:"dir"`
	Level      string `toml:"level" yaml:"level"` // debug | info | warn | error
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Console    bool   `toml:"console" yaml:"console"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Auth configures assertion (JWT) authentication on the native side.
type Auth struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	Cookie        string `toml:"cookie" yaml:"cookie"`
	HMACSecret    string `toml:"hmac_secret" yaml:"hmac_secret"`
	PublicKeyFile string `toml:"public_key_file" yaml:"public_key_file"` // RS256 PEM
	Issuer        string `toml:"issuer" yaml:"issuer"`
	Audience      string `toml:"audience" yaml:"audience"`
	LeewaySeconds int    `toml:"leeway_seconds" yaml:"leeway_seconds"`
}
