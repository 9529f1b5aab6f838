package store

import (
	"time"

	"hma/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 20 with capped exponential backoff
	PingTimeout    time.Duration // default 3s
}

// CHConfig configures clickhouse connectivity
// clickhouse only receives the optional lookup audit stream
type CHConfig struct {
	Enabled    bool
	URL        string
	ClientRole string
	ClientTag  string
}

// ConfigFromEnv reads SERVICE_PGSQL_* and SERVICE_CH_* for the given process role
func ConfigFromEnv(root config.Conf, role string) Config {
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CH_")

	cfg := Config{
		AppName: "hma-" + role,
		PG: PGConfig{
			Enabled:        pgCfg.MayBool("ENABLED", true),
			URL:            pgCfg.MayString("URL", ""),
			MaxConns:       int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs:    pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:         pgCfg.MayBool("LOG_SQL", false),
			ConnectRetries: pgCfg.MayInt("CONNECT_RETRIES", 20),
			PingTimeout:    pgCfg.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
		CH: CHConfig{
			Enabled:    chCfg.MayBool("ENABLED", false),
			URL:        chCfg.MayString("URL", ""),
			ClientRole: role,
			ClientTag:  chCfg.MayString("CLIENT_TAG", "dev"),
		},
	}
	if cfg.PG.Enabled && cfg.PG.URL == "" {
		cfg.PG.URL = pgCfg.MustString("URL")
	}
	return cfg
}
