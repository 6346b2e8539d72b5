package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	Analysis analysis.Options

	LogLevel  string // debug|info|warn|error
	LogFormat string // text|json

	MaxUploadBytes int64
}

// CORSOrigins returns the allow-list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// Load reads .env files when present and then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	opts := analysis.DefaultOptions()
	opts.Cluster.K = envInt("CLUSTER_K", opts.Cluster.K)
	opts.Cluster.Seed = int64(envInt("CLUSTER_SEED", int(opts.Cluster.Seed)))
	opts.Cluster.MaxIter = envInt("CLUSTER_MAX_ITER", opts.Cluster.MaxIter)
	opts.Cluster.NInit = envInt("CLUSTER_N_INIT", opts.Cluster.NInit)
	opts.Report.TopN = envInt("REPORT_TOP_N", opts.Report.TopN)

	return Config{
		Mode:               mode,
		HTTPAddr:           addr,
		PublicURL:          os.Getenv("PUBLIC_URL"),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		BlobBasePath:       envOr("BLOB_BASE_PATH", "./data"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", envOr("CORS_ORIGINS", "")),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", envOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		RedisEnabled:       envBool("REDIS_ENABLED", false),
		RedisAddr:          envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		CacheTTL:           envDuration("CACHE_TTL", 24*time.Hour),
		Analysis:           opts,
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "text"),
		MaxUploadBytes:     int64(envInt("MAX_UPLOAD_MB", 10)) << 20,
	}
}

// LoadOptionsFile overlays analysis options from a YAML file onto base.
// Keys absent from the file keep their base value.
func LoadOptionsFile(path string, base analysis.Options) (analysis.Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("options file: %w", err)
	}
	out := base
	if err := yaml.Unmarshal(b, &out); err != nil {
		return base, fmt.Errorf("options file %s: %w", path, err)
	}
	return out, nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
