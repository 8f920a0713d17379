// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every service setting. Values come from defaults, then an
// optional .env file, then CRANK_* environment variables; command-line flags
// override on top.
type Config struct {
	// Model and match setup
	WorldModel string // bundle directory; empty runs a seeded random model
	P0Agent    string
	P1Agent    string
	Stage      int
	P0Char     int
	P1Char     int
	MaxFrames  int
	NoEarlyKO  bool
	RandomSeed uint64

	// Serving
	Addr      string
	FPS       int
	Loop      bool
	LoopPause time.Duration
	JWTSecret string // empty disables viewer tokens

	// Persistence and fan-out
	ArchiveDriver string // "sqlite", "postgres" or "" (disabled)
	ArchiveDSN    string
	RedisURL      string // empty disables the redis publisher
	RedisChannel  string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		P0Agent:       "random",
		P1Agent:       "random",
		Stage:         32,
		P0Char:        2,
		P1Char:        2,
		MaxFrames:     600,
		RandomSeed:    1,
		Addr:          ":8765",
		FPS:           60,
		LoopPause:     time.Second,
		ArchiveDriver: "sqlite",
		ArchiveDSN:    "matches.db",
		RedisChannel:  "crank:frames",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads .env (when present) and the CRANK_* environment on top of the
// defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv applies variables looked up through getenv to the defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var errs []string
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	str("CRANK_WORLD_MODEL", &c.WorldModel)
	str("CRANK_P0", &c.P0Agent)
	str("CRANK_P1", &c.P1Agent)
	integer("CRANK_STAGE", &c.Stage)
	integer("CRANK_P0_CHAR", &c.P0Char)
	integer("CRANK_P1_CHAR", &c.P1Char)
	integer("CRANK_MAX_FRAMES", &c.MaxFrames)
	boolean("CRANK_NO_EARLY_KO", &c.NoEarlyKO)
	if v := strings.TrimSpace(getenv("CRANK_SEED")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("CRANK_SEED=%q: not an unsigned integer", v))
		} else {
			c.RandomSeed = n
		}
	}

	str("CRANK_ADDR", &c.Addr)
	integer("CRANK_FPS", &c.FPS)
	boolean("CRANK_LOOP", &c.Loop)
	if v := strings.TrimSpace(getenv("CRANK_LOOP_PAUSE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("CRANK_LOOP_PAUSE=%q: %v", v, err))
		} else {
			c.LoopPause = d
		}
	}
	str("CRANK_JWT_SECRET", &c.JWTSecret)

	str("CRANK_ARCHIVE_DRIVER", &c.ArchiveDriver)
	str("CRANK_ARCHIVE_DSN", &c.ArchiveDSN)
	str("CRANK_REDIS_URL", &c.RedisURL)
	str("CRANK_REDIS_CHANNEL", &c.RedisChannel)

	str("CRANK_LOG_LEVEL", &c.LogLevel)
	str("CRANK_LOG_FORMAT", &c.LogFormat)

	if len(errs) > 0 {
		return c, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return c, c.Validate()
}

// Validate reports settings no component can run with.
func (c Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("config: fps %d must be positive", c.FPS)
	}
	if c.MaxFrames < 0 {
		return fmt.Errorf("config: max frames %d must not be negative", c.MaxFrames)
	}
	switch c.ArchiveDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown archive driver %q", c.ArchiveDriver)
	}
	return nil
}

// FrameInterval is the target wall time per streamed frame.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// NewLogger builds the root logger from the log settings.
func (c Config) NewLogger() (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log.SetLevel(level)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return log, nil
}
