package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DemoChanged is true if the demo name, length, or any tone changed. The
	// composition can be rebuilt and resumed without restarting.
	DemoChanged bool
	ToneChanges []ToneDiff

	// RestartRequired lists the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// ToneDiff describes what changed for a single tone between two configs.
type ToneDiff struct {
	Name     string
	Added    bool
	Removed  bool
	Modified bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Playback != new.Playback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}
	if old.Sandbox != new.Sandbox {
		d.RestartRequired = append(d.RestartRequired, "sandbox")
	}
	if !reflect.DeepEqual(old.Output, new.Output) {
		d.RestartRequired = append(d.RestartRequired, "output")
	}

	if old.Demo.Name != new.Demo.Name || old.Demo.Length != new.Demo.Length {
		d.DemoChanged = true
	}

	oldTones := make(map[string]*ToneConfig, len(old.Demo.Tones))
	for i := range old.Demo.Tones {
		oldTones[old.Demo.Tones[i].Name] = &old.Demo.Tones[i]
	}
	newTones := make(map[string]*ToneConfig, len(new.Demo.Tones))
	for i := range new.Demo.Tones {
		newTones[new.Demo.Tones[i].Name] = &new.Demo.Tones[i]
	}

	for _, t := range old.Demo.Tones {
		nt, exists := newTones[t.Name]
		switch {
		case !exists:
			d.ToneChanges = append(d.ToneChanges, ToneDiff{Name: t.Name, Removed: true})
		case !reflect.DeepEqual(t, *nt):
			d.ToneChanges = append(d.ToneChanges, ToneDiff{Name: t.Name, Modified: true})
		}
	}
	for _, t := range new.Demo.Tones {
		if _, exists := oldTones[t.Name]; !exists {
			d.ToneChanges = append(d.ToneChanges, ToneDiff{Name: t.Name, Added: true})
		}
	}
	if len(d.ToneChanges) > 0 {
		d.DemoChanged = true
	}

	return d
}
