package app

import (
	"fmt"
	"time"

	"github.com/MrWong99/keyline/internal/config"
	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/audio/effect"
	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/timeline"
)

// Format returns the session format configured in cfg.
func Format(cfg *config.Config) audio.Format {
	return audio.Format{SampleRate: cfg.Playback.SampleRate, Channels: cfg.Playback.Channels}
}

// BuildComposition assembles the demo project of cfg into a mixdown. Every
// tone becomes a sine clip running through a gain stage and a volume fade.
func BuildComposition(cfg *config.Config, effects *effect.Registry, logics *interp.Registry, opts ...timeline.Option) (*timeline.Mixdown, timeline.ProjectInfo, error) {
	mix := timeline.NewMixdown(opts...)
	var end time.Duration

	for i, t := range cfg.Demo.Tones {
		chain, err := toneChain(t, effects, logics)
		if err != nil {
			return nil, timeline.ProjectInfo{}, fmt.Errorf("app: demo.tones[%d] %q: %w", i, t.Name, err)
		}
		mix.Add(&timeline.Clip{
			Name:    t.Name,
			Source:  timeline.SineSource{Sine: audio.Sine{Frequency: t.Frequency, Amplitude: t.Amplitude}},
			Start:   t.Start,
			Length:  t.Duration,
			Effects: chain,
			Muted:   t.Muted,
		})
		end = max(end, t.Start+t.Duration)
	}

	info := timeline.ProjectInfo{
		Name:   cfg.Demo.Name,
		Format: Format(cfg),
		FPS:    cfg.Playback.FPS,
		Length: cfg.Demo.Length,
	}
	if info.Length == 0 {
		info.Length = end
	}
	return mix, info, nil
}

func toneChain(t config.ToneConfig, effects *effect.Registry, logics *interp.Registry) (effect.Chain, error) {
	var chain effect.Chain

	if t.Gain != 0 || len(t.GainKeyframes) > 0 {
		e, err := effects.New(effect.GainID)
		if err != nil {
			return nil, err
		}
		g := e.(*effect.Gain)
		if len(t.GainKeyframes) > 0 {
			track, err := logics.Track(t.GainKeyframes)
			if err != nil {
				return nil, err
			}
			g.Envelope = track
		} else {
			g.Gain = t.Gain
		}
		chain = append(chain, g)
	}

	if t.FadeIn > 0 || t.FadeOut > 0 {
		e, err := effects.New(effect.VolumeFadeID)
		if err != nil {
			return nil, err
		}
		f := e.(*effect.VolumeFade)
		f.In = float32(t.FadeIn.Seconds())
		f.Out = float32(t.FadeOut.Seconds())
		chain = append(chain, f)
	}
	return chain, nil
}
