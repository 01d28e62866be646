package cmd

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/lb-sim/lb-sim/sim/cluster"
)

//go:embed presets/*.yaml
var presetFiles embed.FS

// Preset is a named scenario shipped with the binary.
type Preset struct {
	Name        string
	Description string
}

// Presets lists the built-in scenarios sorted by name.
// The description is the leading comment line of each file.
func Presets() []Preset {
	entries, err := presetFiles.ReadDir("presets")
	if err != nil {
		return nil
	}
	var out []Preset
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".yaml")
		data, err := presetFiles.ReadFile(path.Join("presets", e.Name()))
		if err != nil {
			continue
		}
		out = append(out, Preset{Name: name, Description: leadingComment(string(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadPreset parses a built-in scenario with the same strict rules as a config file.
func LoadPreset(name string) (cluster.Config, error) {
	data, err := presetFiles.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		names := make([]string, 0)
		for _, p := range Presets() {
			names = append(names, p.Name)
		}
		return cluster.Config{}, fmt.Errorf("unknown preset %q; valid: %s", name, strings.Join(names, ", "))
	}
	cfg, err := cluster.ParseConfig(data)
	if err != nil {
		return cluster.Config{}, fmt.Errorf("preset %s: %w", name, err)
	}
	return cfg, nil
}

func leadingComment(data string) string {
	line, _, _ := strings.Cut(data, "\n")
	if !strings.HasPrefix(line, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "#"))
}
