// Package config provides application configuration structures and helpers.
package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ServerConfig holds the configuration settings for the counter service.
type ServerConfig struct {
	Addr          string // HTTP server address
	Logger        *zap.SugaredLogger
	DatabasePath  string // Path to the SQLite database file
	DatabaseDsn   string // Data Source Name for PostgreSQL; overrides SQLite when set
	TrustedSubnet string // CIDR allowed to POST updates; empty means no restriction
	PortalBaseURL string // Plugin portal base URL
	FetchTimeout  int    // Outbound fetch timeout (in seconds)

	ThrottleHours        int // Minimum spacing between accepted updates per plugin (in hours)
	DefaultSparklineDays int // Lookback window when ?days is absent

	SparklineWidth  int
	SparklineHeight int
	SparklineColor  string
	BadgeLabel      string
	BadgeColor      string
}

// TrackerConfig holds the configuration settings for the tracker.
type TrackerConfig struct {
	ServerAddr    string // Counter service address (must include http(s)://)
	Logger        *zap.SugaredLogger
	PluginIDs     []string // Plugin IDs to keep updated
	PollInterval  int      // Interval between update rounds (in seconds)
	ClientTimeout int      // HTTP client timeout (in seconds)
}

// NewServerConfig creates and returns a new ServerConfig by parsing flags,
// an optional JSON config file, and environment variables.
func NewServerConfig() *ServerConfig {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout"}

	logger := zap.Must(logCfg.Build())

	cfg := &ServerConfig{}
	var configPath string
	flag.StringVar(&cfg.Addr, "a", "localhost:8080", "HTTP server address")
	flag.StringVar(&cfg.DatabasePath, "f", "downloads.db", "path to SQLite database file")
	flag.StringVar(&cfg.DatabaseDsn, "d", "", "DB connection string")
	flag.StringVar(&cfg.TrustedSubnet, "t", "", "CIDR allowed to POST updates")
	flag.StringVar(&cfg.PortalBaseURL, "p", "https://plugins.netbeans.apache.org", "plugin portal base URL")
	flag.IntVar(&cfg.FetchTimeout, "timeout", 10, "portal fetch timeout in seconds")
	flag.IntVar(&cfg.ThrottleHours, "throttle", 24, "update throttle window in hours")
	flag.IntVar(&cfg.DefaultSparklineDays, "days", 30, "default sparkline lookback in days")
	flag.StringVar(&configPath, "c", "", "path to JSON config file")
	flag.Parse()

	cfg.SparklineWidth = 200
	cfg.SparklineHeight = 50
	cfg.SparklineColor = "#007ec6"
	cfg.BadgeLabel = "downloads"
	cfg.BadgeColor = "#007ec6"

	cfg.Logger = logger.Sugar()

	if configPath == "" {
		configPath = os.Getenv("CONFIG")
	}
	if configPath != "" {
		if err := applyServerJSON(cfg, configPath); err != nil {
			log.Printf("failed to load config file %s: %v", configPath, err)
		}
	}

	readServerEnvironment(cfg)

	return cfg
}

func readServerEnvironment(cfg *ServerConfig) {
	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.Addr = addr
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if dbDsn := os.Getenv("DATABASE_DSN"); dbDsn != "" {
		cfg.DatabaseDsn = dbDsn
	}

	if subnet := os.Getenv("TRUSTED_SUBNET"); subnet != "" {
		cfg.TrustedSubnet = subnet
	}

	if base := os.Getenv("PORTAL_BASE_URL"); base != "" {
		cfg.PortalBaseURL = base
	}

	throttleEnv := os.Getenv("THROTTLE_HOURS")
	if throttleEnv != "" {
		v, err := strconv.Atoi(throttleEnv)
		if err == nil {
			cfg.ThrottleHours = v
		} else {
			log.Printf("invalid THROTTLE_HOURS env var: %v", err)
		}
	}

	daysEnv := os.Getenv("SPARKLINE_DAYS")
	if daysEnv != "" {
		v, err := strconv.Atoi(daysEnv)
		if err == nil {
			cfg.DefaultSparklineDays = v
		} else {
			log.Printf("invalid SPARKLINE_DAYS env var: %v", err)
		}
	}

	if label := os.Getenv("BADGE_LABEL"); label != "" {
		cfg.BadgeLabel = label
	}

	if color := os.Getenv("BADGE_COLOR"); color != "" {
		cfg.BadgeColor = color
	}
}

// NewTrackerConfig creates and returns a new TrackerConfig by parsing flags
// and environment variables.
func NewTrackerConfig() *TrackerConfig {
	logger := zap.Must(zap.NewProduction())

	cfg := &TrackerConfig{}
	var plugins string
	flag.StringVar(&cfg.ServerAddr, "a", "http://localhost:8080", "counter service address (must include http(s)://)")
	flag.StringVar(&plugins, "plugins", "", "comma-separated plugin IDs to track")
	flag.IntVar(&cfg.PollInterval, "p", 3600, "poll interval in seconds")
	flag.IntVar(&cfg.ClientTimeout, "t", 10, "client timeout in seconds")
	flag.Parse()

	cfg.Logger = logger.Sugar()

	readTrackerEnvironment(cfg, &plugins)

	if plugins != "" {
		cfg.PluginIDs = splitList(plugins)
	}

	if !strings.HasPrefix(cfg.ServerAddr, "http://") && !strings.HasPrefix(cfg.ServerAddr, "https://") {
		cfg.ServerAddr = "http://" + cfg.ServerAddr
	}

	return cfg
}

func readTrackerEnvironment(cfg *TrackerConfig, plugins *string) {
	if addr := os.Getenv("ADDRESS"); addr != "" {
		cfg.ServerAddr = addr
	}

	if p := os.Getenv("PLUGINS"); p != "" {
		*plugins = p
	}

	pollEnv := os.Getenv("POLL_INTERVAL")
	if pollEnv != "" {
		v, err := strconv.Atoi(pollEnv)
		if err == nil {
			cfg.PollInterval = v
		} else {
			log.Printf("invalid POLL_INTERVAL env var: %v", err)
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
