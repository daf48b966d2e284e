package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/keyline/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: loud\n",
			want: []string{"server.log_level"},
		},
		{
			name: "tls half configured",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"server.tls"},
		},
		{
			name: "format out of range",
			yaml: "playback:\n  sample_rate: 1000000\n  channels: 9\n",
			want: []string{"playback.sample_rate", "playback.channels"},
		},
		{
			name: "fps above sample rate",
			yaml: "playback:\n  sample_rate: 10\n  fps: 30\n",
			want: []string{"exceeds sample_rate"},
		},
		{
			name: "negative timing",
			yaml: "playback:\n  target_buffer: -1s\n  idle_interval: -1ms\n  chunk_size: -5\n",
			want: []string{"playback.target_buffer", "playback.idle_interval", "playback.chunk_size"},
		},
		{
			name: "unknown device",
			yaml: "output:\n  device: alsa\n",
			want: []string{"output.device"},
		},
		{
			name: "monitor without server",
			yaml: "output:\n  device: monitor\n",
			want: []string{"requires server.listen_addr"},
		},
		{
			name: "monitor path",
			yaml: "server:\n  listen_addr: \":0\"\noutput:\n  device: monitor\n  monitor:\n    path: listen\n",
			want: []string{"output.monitor.path"},
		},
		{
			name: "tone fields",
			yaml: `
demo:
  tones:
    - name: bad
      frequency: 0
      amplitude: 2
      start: -1s
      duration: 0s
      gain: -1
`,
			want: []string{"frequency", "amplitude", "start", "duration", "gain"},
		},
		{
			name: "duplicate tones",
			yaml: `
demo:
  tones:
    - {name: a, frequency: 440, duration: 1s}
    - {name: a, frequency: 880, duration: 1s}
`,
			want: []string{"duplicate"},
		},
		{
			name: "unknown logic",
			yaml: `
demo:
  tones:
    - name: a
      frequency: 440
      duration: 1s
      gain_keyframes:
        - {frame: 0, value: 0, logic: {identify: bezier}}
`,
			want: []string{"gain_keyframes", "bezier"},
		},
		{
			name: "script does not compile",
			yaml: `
demo:
  tones:
    - name: a
      frequency: 440
      duration: 1s
      gain_keyframes:
        - frame: 0
          value: 0
          logic:
            identify: dynamic_expression
            script: "return ((("
        - {frame: 100, value: 1}
`,
			want: []string{"gain_keyframes[0].logic.script"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_OverlappingFadesAllowed(t *testing.T) {
	t.Parallel()
	yaml := `
demo:
  tones:
    - name: blip
      frequency: 1000
      duration: 100ms
      fade_in: 80ms
      fade_out: 80ms
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("overlapping fades should validate: %v", err)
	}
}

func TestApplyDefaults_ToneNames(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Demo: config.DemoConfig{Tones: []config.ToneConfig{
		{Frequency: 440},
		{Name: "kept", Frequency: 880, Amplitude: 0.25},
	}}}
	config.ApplyDefaults(cfg)

	if cfg.Demo.Tones[0].Name != "tone-0" || cfg.Demo.Tones[0].Amplitude != config.DefaultToneAmplitude {
		t.Errorf("tone 0 = %+v", cfg.Demo.Tones[0])
	}
	if cfg.Demo.Tones[1].Name != "kept" || cfg.Demo.Tones[1].Amplitude != 0.25 {
		t.Errorf("tone 1 = %+v", cfg.Demo.Tones[1])
	}
}
