// Package config loads server configuration: built-in defaults overlaid by
// an optional YAML file. Absent keys keep their defaults, so a config file
// only needs the values it changes.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/apexsim/apexsim/internal/core/observability/log"
)

// Config is the full server configuration tree.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Sim    SimConfig    `yaml:"sim"`
	Race   RaceConfig   `yaml:"race"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the network-facing settings of the gateway.
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxClients     int           `yaml:"max_clients"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
	// BroadcastHz caps the snapshot fan-out rate; the simulation itself
	// always ticks at the fixed step.
	BroadcastHz int `yaml:"broadcast_hz"`
}

// SimConfig tunes the fixed-timestep scheduler.
type SimConfig struct {
	TickRateHz    int     `yaml:"tick_rate_hz"`
	MaxFrameDelta float64 `yaml:"max_frame_delta"` // seconds
	TimeScale     float64 `yaml:"time_scale"`
}

// RaceConfig describes the race to host.
type RaceConfig struct {
	TrackFile        string  `yaml:"track_file"`     // empty means the built-in circuit
	ArchetypeFile    string  `yaml:"archetype_file"` // empty means the built-in street car
	CountdownSeconds float64 `yaml:"countdown_seconds"`
	TotalLaps        int     `yaml:"total_laps"` // 0 means the track's own lap count
}

// LogConfig selects logging verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8080",
			MaxClients:     32,
			WriteTimeout:   5 * time.Second,
			ReadLimitBytes: 4 * 1024,
			BroadcastHz:    30,
		},
		Sim: SimConfig{
			TickRateHz:    60,
			MaxFrameDelta: 0.1,
			TimeScale:     1.0,
		},
		Race: RaceConfig{
			CountdownSeconds: 3.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config file %s", path)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config file %s", path)
	}
	if err = cfg.validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr must not be empty")
	}
	if c.Server.MaxClients <= 0 {
		return errors.New("server.max_clients must be positive")
	}
	if c.Sim.TickRateHz <= 0 {
		return errors.New("sim.tick_rate_hz must be positive")
	}
	if c.Sim.MaxFrameDelta <= 0 {
		return errors.New("sim.max_frame_delta must be positive")
	}
	if c.Sim.TimeScale < 0 {
		return errors.New("sim.time_scale must not be negative")
	}
	if c.Race.CountdownSeconds < 0 {
		return errors.New("race.countdown_seconds must not be negative")
	}
	if c.Race.TotalLaps < 0 {
		return errors.New("race.total_laps must not be negative")
	}
	return nil
}

// LogLevel parses the configured level; unknown strings fall back to info.
func (c Config) LogLevel() log.Level {
	return log.ParseLevel(c.Log.Level)
}

// FixedStep converts the tick rate to a step duration in seconds.
func (c SimConfig) FixedStep() float64 {
	return 1.0 / float64(c.TickRateHz)
}
