package cmd

import (
	"testing"
)

func TestPresets_AllParseAndValidate(t *testing.T) {
	presets := Presets()
	if len(presets) < 4 {
		t.Fatalf("expected at least 4 presets, got %d", len(presets))
	}
	for _, p := range presets {
		t.Run(p.Name, func(t *testing.T) {
			if p.Description == "" {
				t.Error("preset has no description comment")
			}
			cfg, err := LoadPreset(p.Name)
			if err != nil {
				t.Fatal(err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("preset does not validate: %v", err)
			}
		})
	}
}

func TestPresets_SortedByName(t *testing.T) {
	presets := Presets()
	for i := 1; i < len(presets); i++ {
		if presets[i-1].Name >= presets[i].Name {
			t.Errorf("presets not sorted: %q before %q", presets[i-1].Name, presets[i].Name)
		}
	}
}

func TestLoadPreset_LayersOntoDefaults(t *testing.T) {
	// GIVEN a preset that only sets a pool and traffic
	cfg, err := LoadPreset("flash-crowd")
	if err != nil {
		t.Fatal(err)
	}

	// THEN the preset fields are applied and the rest keeps defaults
	if len(cfg.Pool) != 1 || cfg.Pool[0].Count != 3 {
		t.Errorf("pool = %+v, want 3 standard servers", cfg.Pool)
	}
	if cfg.Traffic.SpikeDuration != 12 {
		t.Errorf("spike_duration = %d, want 12", cfg.Traffic.SpikeDuration)
	}
	if cfg.SeriesWindow != 600 {
		t.Errorf("series_window = %d, want default 600", cfg.SeriesWindow)
	}
}

func TestLoadPreset_Unknown(t *testing.T) {
	if _, err := LoadPreset("black-friday"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestLeadingComment(t *testing.T) {
	if got := leadingComment("# hello world\nseed: 1\n"); got != "hello world" {
		t.Errorf("got %q", got)
	}
	if got := leadingComment("seed: 1\n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
