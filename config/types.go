package config

// Storage selects and tunes the state database.
type Storage struct {
	Backend       string `toml:"Backend"` // "leveldb" or "memory"
	CacheMB       int    `toml:"CacheMB"`
	OpenFiles     int    `toml:"OpenFiles"`
	WriteBufferMB int    `toml:"WriteBufferMB"`
	NoSyncWrites  bool   `toml:"NoSyncWrites"`
}

// Rent overrides the reserve schedule applied to every account.
type Rent struct {
	LamportsPerByteYear uint64 `toml:"LamportsPerByteYear"`
	ExemptionYears      uint64 `toml:"ExemptionYears"`
}

// RPC configures the HTTP API.
type RPC struct {
	JWTSecretEnv       string   `toml:"JWTSecretEnv"`
	RequireAuth        bool     `toml:"RequireAuth"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	ReadHeaderTimeout  int      `toml:"ReadHeaderTimeout"` // seconds
	ReadTimeout        int      `toml:"ReadTimeout"`
	WriteTimeout       int      `toml:"WriteTimeout"`
	IdleTimeout        int      `toml:"IdleTimeout"`
	CORSOrigins        []string `toml:"CORSOrigins"`
}

// Index configures the optional SQL event index.
type Index struct {
	Driver string `toml:"Driver"` // "", "sqlite" or "postgres"
	DSN    string `toml:"DSN"`
}

// Logging configures structured logging output.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Traces      bool   `toml:"Traces"`
	Metrics     bool   `toml:"Metrics"`
	Environment string `toml:"Environment"`
}

// Webhook forwards committed events to an HTTP endpoint.
type Webhook struct {
	Endpoint    string `toml:"Endpoint"`
	SecretEnv   string `toml:"SecretEnv"`
	MaxAttempts int    `toml:"MaxAttempts"`
}
