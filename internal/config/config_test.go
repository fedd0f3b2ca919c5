package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-roomba/pkg/messaging"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Period())
	assert.Equal(t, "0.0.0.0:8080", cfg.WebAddr())
	assert.False(t, cfg.Robots[0].Active, "robots start inactive by default")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().LoopHz, cfg.LoopHz)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomba.yaml")
	yml := `
loop_hz: 20
robots:
  - type: ground
    id: 0
    x: 1.5
    yaw: 0.5
    active: true
  - type: obstacle
    id: 1
    model: damped
messaging:
  backend: mqtt
  prefix: arena
  mqtt:
    broker: broker.local
    port: 1884
arena:
  stale_after: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50*time.Millisecond, cfg.Period())
	require.Len(t, cfg.Robots, 2)
	assert.True(t, cfg.Robots[0].Active)
	assert.Equal(t, 1.5, cfg.Robots[0].Pose().Position.X)

	id, err := cfg.Robots[1].Identity()
	require.NoError(t, err)
	assert.Equal(t, robot.Identity{Type: robot.Obstacle, ID: 1}, id)

	assert.Equal(t, messaging.BackendMQTT, cfg.Messaging.Backend)
	assert.Equal(t, "broker.local", cfg.Messaging.MQTT.Broker)
	assert.Equal(t, "roomba-node", cfg.Messaging.ClientID, "unset fields keep their defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Arena.StaleAfter)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("robots: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvMQTTBroker, "mqtt.example")
	t.Setenv(EnvWebPort, "9090")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, messaging.BackendMQTT, cfg.Messaging.Backend)
	assert.Equal(t, "mqtt.example", cfg.Messaging.MQTT.Broker)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnv_BadPort(t *testing.T) {
	t.Setenv(EnvWebPort, "eighty")

	_, err := Load("")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero loop rate", func(c *Config) { c.LoopHz = 0 }},
		{"NaN loop rate", func(c *Config) { c.LoopHz = math.NaN() }},
		{"no robots", func(c *Config) { c.Robots = nil }},
		{"unknown type", func(c *Config) { c.Robots[0].Type = "quad" }},
		{"negative id", func(c *Config) { c.Robots[0].ID = -1 }},
		{"duplicate robot", func(c *Config) { c.Robots = append(c.Robots, c.Robots[0]) }},
		{"infinite pose", func(c *Config) { c.Robots[0].X = math.Inf(1) }},
		{"unknown model", func(c *Config) { c.Robots[0].Model = "rigid" }},
		{"bad web port", func(c *Config) { c.Web.Port = 70000 }},
		{"bad messaging", func(c *Config) { c.Messaging.Backend = "amqp" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"journal without path", func(c *Config) { c.Journal.Path = "" }},
		{"negative staleness", func(c *Config) { c.Arena.StaleAfter = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "error should wrap ErrInvalidConfig: %v", err)
		})
	}
}
