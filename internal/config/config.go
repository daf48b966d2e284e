// Package config provides the configuration schema, loader, and output sink
// registry for the keyline player.
package config

import (
	"time"

	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

// LogLevel controls log verbosity for the keyline server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// OutputKind selects where played audio goes.
type OutputKind string

const (
	// OutputMalgo plays on the system's default device.
	OutputMalgo OutputKind = "malgo"

	// OutputMonitor streams to WebSocket listeners.
	OutputMonitor OutputKind = "monitor"

	// OutputNull discards audio at real-time pace.
	OutputNull OutputKind = "null"
)

// IsValid reports whether o is a recognised output kind.
func (o OutputKind) IsValid() bool {
	switch o {
	case OutputMalgo, OutputMonitor, OutputNull:
		return true
	}
	return false
}

// Config is the root configuration structure for keyline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Playback PlaybackConfig `yaml:"playback"`
	Sandbox  sandbox.Limits `yaml:"sandbox"`
	Output   OutputConfig   `yaml:"output"`
	Demo     DemoConfig     `yaml:"demo"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (health, metrics,
	// monitor). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// PlaybackConfig holds the session format and the streaming knobs of the
// player.
type PlaybackConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint8  `yaml:"channels"`

	// FPS is the video frame rate used by export.
	FPS int `yaml:"fps"`

	// TargetBuffer is how much audio the player keeps queued.
	TargetBuffer time.Duration `yaml:"target_buffer"`

	// IdleInterval is how long the player sleeps with a full queue.
	IdleInterval time.Duration `yaml:"idle_interval"`

	// ChunkSize is the sample-frame count per synthesis call. Zero means
	// one target buffer.
	ChunkSize int64 `yaml:"chunk_size"`
}

// OutputConfig selects and configures the output sink.
type OutputConfig struct {
	// Device is the registered sink name.
	Device OutputKind `yaml:"device"`

	Monitor MonitorConfig `yaml:"monitor"`
}

// MonitorConfig configures the WebSocket monitor sink.
type MonitorConfig struct {
	// Path is the HTTP route listeners connect to.
	Path string `yaml:"path"`

	// Period is the pacer interval.
	Period time.Duration `yaml:"period"`

	// OriginPatterns lists accepted cross-origin hosts.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// DemoConfig describes the composition played by `keyline play` and
// rendered by `keyline export`.
type DemoConfig struct {
	Name string `yaml:"name"`

	// Length bounds the project. Zero uses the end of the last tone.
	Length time.Duration `yaml:"length"`

	Tones []ToneConfig `yaml:"tones"`
}

// ToneConfig is one sine clip of the demo.
type ToneConfig struct {
	Name      string  `yaml:"name"`
	Frequency float64 `yaml:"frequency"`

	// Amplitude defaults to 0.5.
	Amplitude float64 `yaml:"amplitude"`

	Start    time.Duration `yaml:"start"`
	Duration time.Duration `yaml:"duration"`

	FadeIn  time.Duration `yaml:"fade_in"`
	FadeOut time.Duration `yaml:"fade_out"`

	// Gain is a static multiplier. Zero means unity; use Muted to silence.
	Gain float64 `yaml:"gain"`

	// GainKeyframes envelope the tone over clip-local sample frames. When
	// set, Gain is ignored.
	GainKeyframes []interp.KeyframeDoc `yaml:"gain_keyframes"`

	Muted bool `yaml:"muted"`
}
