// Package config loads the attitude server configuration: defaults, then an
// optional YAML file, then ATTITUDE_* environment overrides. Command-line
// flags are applied last by the binaries themselves.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/device-attitude/core"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Attitude AttitudeConfig `yaml:"attitude"`
	Journal  JournalConfig  `yaml:"journal"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	GRPCAddr        string   `yaml:"grpcAddr"`
	MetricsAddr     string   `yaml:"metricsAddr"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// AttitudeConfig tunes the pipeline.
type AttitudeConfig struct {
	// TiltSequence is the axis order the tilt angles are composed in, e.g. "2-1-3".
	TiltSequence string `yaml:"tiltSequence"`
	// ApplyDeclination removes the dipole declination from compass headings
	// unless a request says otherwise.
	ApplyDeclination bool `yaml:"applyDeclination"`
	// FlipElevationDeg is the top-edge elevation below which the north angle
	// is measured with the device turned over.
	FlipElevationDeg float64 `yaml:"flipElevationDeg"`
}

// JournalConfig enables the SQLite result journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig sizes the per-consumer result buffer.
type WatchConfig struct {
	Buffer int `yaml:"buffer"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Duration is a time.Duration written as "5s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config.Duration: failed to parse %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:        ":50061",
			MetricsAddr:     ":9100",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Attitude: AttitudeConfig{
			TiltSequence:     core.DefaultTiltSequence.String(),
			FlipElevationDeg: -45,
		},
		Watch: WatchConfig{Buffer: 64},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "attitude-grpc",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode reads YAML from r over cfg. Unknown keys are an error, so typos do
// not silently fall back to defaults.
func Decode(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg from ATTITUDE_* variables looked up with lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ATTITUDE_GRPC_ADDR"); ok {
		c.Server.GRPCAddr = v
	}
	if v, ok := lookup("ATTITUDE_METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}
	if v, ok := lookup("ATTITUDE_TILT_SEQUENCE"); ok {
		c.Attitude.TiltSequence = v
	}
	if v, ok := lookup("ATTITUDE_APPLY_DECLINATION"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ATTITUDE_APPLY_DECLINATION: %w", err)
		}
		c.Attitude.ApplyDeclination = b
	}
	if v, ok := lookup("ATTITUDE_JOURNAL_PATH"); ok {
		c.Journal.Path = v
	}
	if v, ok := lookup("ATTITUDE_WATCH_BUFFER"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ATTITUDE_WATCH_BUFFER: %w", err)
		}
		c.Watch.Buffer = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpcAddr must not be empty")
	}
	if _, err := core.ParseTiltSequence(c.Attitude.TiltSequence); err != nil {
		return fmt.Errorf("attitude.tiltSequence: %w", err)
	}
	if flip := c.Attitude.FlipElevationDeg; math.IsNaN(flip) || flip < -90 || flip > 0 {
		return fmt.Errorf("attitude.flipElevationDeg %v must be within [-90, 0]", c.Attitude.FlipElevationDeg)
	}
	if c.Watch.Buffer < 1 {
		return fmt.Errorf("watch.buffer %d must be positive", c.Watch.Buffer)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdownTimeout must not be negative")
	}
	if ratio := c.Tracing.SampleRatio; math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return fmt.Errorf("tracing.sampleRatio %v must be within [0, 1]", c.Tracing.SampleRatio)
	}
	return nil
}

// TiltSequence returns the parsed tilt sequence. Call Validate first.
func (c Config) TiltSequence() core.TiltSequence {
	seq, err := core.ParseTiltSequence(c.Attitude.TiltSequence)
	if err != nil {
		return core.DefaultTiltSequence
	}
	return seq
}

// FlipElevationRad returns the flip threshold in radians.
func (c Config) FlipElevationRad() float64 {
	return c.Attitude.FlipElevationDeg * math.Pi / 180
}
