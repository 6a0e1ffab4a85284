package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Log struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // console|json
}

type Rooms struct {
	Grace      string        `yaml:"evictGrace"` // duration, "0" evicts immediately
	MaxRooms   int           `yaml:"maxRooms"`
	EvictGrace time.Duration `yaml:"-"`
}

type Host struct {
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Key  string `yaml:"key"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Export struct {
	File string `yaml:"file"`
}

type Config struct {
	Port   string `yaml:"port"`
	Log    Log    `yaml:"log"`
	Rooms  Rooms  `yaml:"rooms"`
	Host   Host   `yaml:"host"`
	CORS   CORS   `yaml:"cors"`
	NATS   NATS   `yaml:"nats"`
	Export Export `yaml:"export"`
}

const (
	defaultEvictGrace = 30 * time.Second
	defaultMaxRooms   = 10000
)

// Load reads CONFIG_PATH (optional), then lets the environment override it.
func Load() (Config, error) {
	var c Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Port = getenv("PORT", c.Port)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("LOG_FORMAT", c.Log.Format)
	c.Host.User = getenv("HOST_USER", c.Host.User)
	c.Host.Pass = getenv("HOST_PASS", c.Host.Pass)
	c.Host.Key = getenv("HOST_KEY", c.Host.Key)
	c.NATS.URL = getenv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getenv("NATS_SUBJECT", c.NATS.Subject)
	c.Export.File = getenv("EXPORT_FILE", c.Export.File)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}
	c.Rooms.Grace = getenv("EVICT_GRACE", c.Rooms.Grace)
	c.Rooms.MaxRooms = getenvInt("MAX_ROOMS", c.Rooms.MaxRooms)
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if strings.TrimSpace(c.Rooms.Grace) == "" {
		c.Rooms.EvictGrace = defaultEvictGrace
	}
	if c.Rooms.MaxRooms == 0 {
		c.Rooms.MaxRooms = defaultMaxRooms
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "buzzer.rooms"
	}
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}
	if g := strings.TrimSpace(c.Rooms.Grace); g != "" {
		d, err := time.ParseDuration(g)
		if err != nil {
			return fmt.Errorf("rooms.evictGrace: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("rooms.evictGrace must not be negative, got %s", d)
		}
		c.Rooms.EvictGrace = d
	}
	if c.Rooms.MaxRooms < 0 {
		return errors.New("rooms.maxRooms must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if (c.Host.User == "") != (c.Host.Pass == "") {
		return errors.New("host.user and host.pass must be set together")
	}
	return nil
}

// HostAuth reports whether the host API is behind basic auth.
func (c Config) HostAuth() bool {
	return c.Host.User != "" && c.Host.Pass != ""
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
