// Package config loads the roomba node configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-roomba/pkg/messaging"
	"github.com/teslashibe/go-roomba/pkg/motion"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Environment overrides.
const (
	EnvMQTTBroker = "ROOMBA_MQTT_BROKER"
	EnvWebPort    = "ROOMBA_WEB_PORT"
	EnvRedisAddr  = "ROOMBA_REDIS_ADDR"
	EnvLogLevel   = "ROOMBA_LOG_LEVEL"
)

// Config is the top-level node configuration.
type Config struct {
	LoopHz   float64 `yaml:"loop_hz"`
	LogLevel string  `yaml:"log_level"`

	Robots    []RobotConfig    `yaml:"robots"`
	Web       WebConfig        `yaml:"web"`
	Messaging messaging.Config `yaml:"messaging"`
	Redis     RedisConfig      `yaml:"redis"`
	Journal   JournalConfig    `yaml:"journal"`
	Arena     ArenaConfig      `yaml:"arena"`
}

// RobotConfig is the immutable configuration of one robot.
type RobotConfig struct {
	Type   string  `yaml:"type"`
	ID     int     `yaml:"id"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Z      float64 `yaml:"z"`
	Yaw    float64 `yaml:"yaw"`
	Model  string  `yaml:"model"`
	Active bool    `yaml:"active"`
}

// WebConfig defines the HTTP server settings.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// RedisConfig defines the snapshot store.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// JournalConfig defines the SQLite event journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ArenaConfig defines the shared pose registry.
type ArenaConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Defaults returns a Config with sane defaults: one inactive ground robot,
// web on :8080, no bus, no Redis, journal on.
func Defaults() *Config {
	return &Config{
		LoopHz:   robot.LoopRate,
		LogLevel: "info",
		Robots: []RobotConfig{
			{Type: string(robot.Ground), ID: 0, Model: string(motion.Kinematic)},
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Messaging: messaging.DefaultConfig(),
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  10 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "roomba.db",
		},
		Arena: ArenaConfig{
			StaleAfter: 2 * time.Second,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
// Environment overrides are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies ROOMBA_* environment overrides.
func (c *Config) ApplyEnv() error {
	if broker := os.Getenv(EnvMQTTBroker); broker != "" {
		c.Messaging.Backend = messaging.BackendMQTT
		c.Messaging.MQTT.Broker = broker
	}
	if port := os.Getenv(EnvWebPort); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, EnvWebPort, port)
		}
		c.Web.Port = p
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = addr
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if !(c.LoopHz > 0) || math.IsInf(c.LoopHz, 0) {
		return fmt.Errorf("%w: loop_hz must be positive, got %v", ErrInvalidConfig, c.LoopHz)
	}
	if len(c.Robots) == 0 {
		return fmt.Errorf("%w: at least one robot is required", ErrInvalidConfig)
	}
	seen := make(map[robot.Identity]bool, len(c.Robots))
	for i, rc := range c.Robots {
		id, err := rc.Identity()
		if err != nil {
			return fmt.Errorf("%w: robots[%d]: %v", ErrInvalidConfig, i, err)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate robot %s", ErrInvalidConfig, id.Namespace())
		}
		seen[id] = true
		if !rc.Pose().Valid() {
			return fmt.Errorf("%w: robots[%d]: initial pose must be finite", ErrInvalidConfig, i)
		}
		if _, err := motion.ParseOption(rc.Model); err != nil {
			return fmt.Errorf("%w: robots[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("%w: web port out of range: %d", ErrInvalidConfig, c.Web.Port)
	}
	if err := c.Messaging.Validate(); err != nil {
		return fmt.Errorf("%w: messaging: %v", ErrInvalidConfig, err)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis addr is required", ErrInvalidConfig)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("%w: journal path is required", ErrInvalidConfig)
	}
	if c.Arena.StaleAfter < 0 {
		return fmt.Errorf("%w: arena stale_after must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Period returns the control loop period.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.LoopHz)
}

// WebAddr returns host:port for the HTTP server.
func (c *Config) WebAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// Identity returns the robot identity.
func (rc RobotConfig) Identity() (robot.Identity, error) {
	t, err := robot.ParseRobotType(rc.Type)
	if err != nil {
		return robot.Identity{}, err
	}
	if rc.ID < 0 {
		return robot.Identity{}, fmt.Errorf("robot id must not be negative, got %d", rc.ID)
	}
	return robot.Identity{Type: t, ID: rc.ID}, nil
}

// Pose returns the initial pose.
func (rc RobotConfig) Pose() robot.Pose {
	return robot.Pose{Position: robot.Vec3{X: rc.X, Y: rc.Y, Z: rc.Z}, Yaw: rc.Yaw}
}
