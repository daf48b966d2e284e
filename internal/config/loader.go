package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate    = 48000
	DefaultChannels      = 2
	DefaultFPS           = 30
	DefaultTargetBuffer  = 500 * time.Millisecond
	DefaultIdleInterval  = 10 * time.Millisecond
	DefaultMonitorPath   = "/monitor"
	DefaultMonitorPeriod = 20 * time.Millisecond
	DefaultToneAmplitude = 0.5

	maxSampleRate = 384000
	maxChannels   = 8
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults, and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	p := &cfg.Playback
	if p.SampleRate == 0 {
		p.SampleRate = DefaultSampleRate
	}
	if p.Channels == 0 {
		p.Channels = DefaultChannels
	}
	if p.FPS == 0 {
		p.FPS = DefaultFPS
	}
	if p.TargetBuffer == 0 {
		p.TargetBuffer = DefaultTargetBuffer
	}
	if p.IdleInterval == 0 {
		p.IdleInterval = DefaultIdleInterval
	}

	cfg.Sandbox = cfg.Sandbox.WithDefaults()

	if cfg.Output.Device == "" {
		cfg.Output.Device = OutputNull
	}
	if cfg.Output.Monitor.Path == "" {
		cfg.Output.Monitor.Path = DefaultMonitorPath
	}
	if cfg.Output.Monitor.Period == 0 {
		cfg.Output.Monitor.Period = DefaultMonitorPeriod
	}

	for i := range cfg.Demo.Tones {
		t := &cfg.Demo.Tones[i]
		if t.Name == "" {
			t.Name = fmt.Sprintf("tone-%d", i)
		}
		if t.Amplitude == 0 {
			t.Amplitude = DefaultToneAmplitude
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Playback
	p := cfg.Playback
	if p.SampleRate == 0 || p.SampleRate > maxSampleRate {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d is out of range [1, %d]", p.SampleRate, maxSampleRate))
	}
	if p.Channels == 0 || p.Channels > maxChannels {
		errs = append(errs, fmt.Errorf("playback.channels %d is out of range [1, %d]", p.Channels, maxChannels))
	}
	if p.FPS <= 0 {
		errs = append(errs, fmt.Errorf("playback.fps %d must be positive", p.FPS))
	} else if p.SampleRate > 0 && int(p.SampleRate) < p.FPS {
		errs = append(errs, fmt.Errorf("playback.fps %d exceeds sample_rate %d", p.FPS, p.SampleRate))
	}
	if p.TargetBuffer < 0 {
		errs = append(errs, fmt.Errorf("playback.target_buffer %s must not be negative", p.TargetBuffer))
	}
	if p.IdleInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.idle_interval %s must not be negative", p.IdleInterval))
	}
	if p.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("playback.chunk_size %d must not be negative", p.ChunkSize))
	}

	// Sandbox
	if cfg.Sandbox.MaxStatements < 0 || cfg.Sandbox.MaxCallDepth < 0 || cfg.Sandbox.Timeout < 0 {
		errs = append(errs, errors.New("sandbox limits must not be negative"))
	}

	// Output
	if !cfg.Output.Device.IsValid() {
		errs = append(errs, fmt.Errorf("output.device %q is invalid; valid values: malgo, monitor, null", cfg.Output.Device))
	}
	if cfg.Output.Device == OutputMonitor {
		if cfg.Server.ListenAddr == "" {
			errs = append(errs, errors.New("output.device monitor requires server.listen_addr"))
		}
		if !strings.HasPrefix(cfg.Output.Monitor.Path, "/") {
			errs = append(errs, fmt.Errorf("output.monitor.path %q must start with /", cfg.Output.Monitor.Path))
		}
	}
	if cfg.Output.Monitor.Period < 0 {
		errs = append(errs, fmt.Errorf("output.monitor.period %s must not be negative", cfg.Output.Monitor.Period))
	}

	// Demo
	errs = append(errs, validateDemo(cfg.Demo, cfg.Sandbox)...)

	return errors.Join(errs...)
}

func validateDemo(demo DemoConfig, limits sandbox.Limits) []error {
	var errs []error
	if demo.Length < 0 {
		errs = append(errs, fmt.Errorf("demo.length %s must not be negative", demo.Length))
	}

	logics := interp.NewRegistry(limits)
	seen := make(map[string]int, len(demo.Tones))
	for i, t := range demo.Tones {
		prefix := fmt.Sprintf("demo.tones[%d]", i)
		if prev, ok := seen[t.Name]; ok && t.Name != "" {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of demo.tones[%d]", prefix, t.Name, prev))
		}
		seen[t.Name] = i

		if t.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("%s.frequency %.2f must be positive", prefix, t.Frequency))
		}
		if t.Amplitude < 0 || t.Amplitude > 1 {
			errs = append(errs, fmt.Errorf("%s.amplitude %.2f is out of range [0, 1]", prefix, t.Amplitude))
		}
		if t.Start < 0 {
			errs = append(errs, fmt.Errorf("%s.start %s must not be negative", prefix, t.Start))
		}
		if t.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s.duration %s must be positive", prefix, t.Duration))
		}
		if t.FadeIn < 0 || t.FadeOut < 0 {
			errs = append(errs, fmt.Errorf("%s: fade durations must not be negative", prefix))
		}
		if t.Duration > 0 && t.FadeIn+t.FadeOut > t.Duration {
			slog.Warn("tone fades overlap; envelopes will compose",
				"tone", t.Name,
				"fade_in", t.FadeIn,
				"fade_out", t.FadeOut,
				"duration", t.Duration,
			)
		}
		if t.Gain < 0 {
			errs = append(errs, fmt.Errorf("%s.gain %.2f must not be negative", prefix, t.Gain))
		}
		if len(t.GainKeyframes) > 0 {
			if _, err := logics.Track(t.GainKeyframes); err != nil {
				errs = append(errs, fmt.Errorf("%s.gain_keyframes: %w", prefix, err))
			}
			for j, k := range t.GainKeyframes {
				if k.Logic == nil || k.Logic.Identify != interp.DynamicExpressionID {
					continue
				}
				ev, err := sandbox.NewLua(k.Logic.Script, limits)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s.gain_keyframes[%d].logic.script: %w", prefix, j, err))
					continue
				}
				_ = ev.Close()
			}
		}
	}
	return errs
}
