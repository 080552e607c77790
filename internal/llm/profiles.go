package llm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile defaults applied when a profile omits them.
const (
	DefaultTemperature     = 0.2
	DefaultMaxOutputTokens = 2048
)

// Profile is a named model configuration. Model uses the routing form
// "backend/model" (e.g. "openai/gpt-4o"); an unprefixed model goes to the
// client's default backend.
type Profile struct {
	Name            string   `yaml:"-"`
	Model           string   `yaml:"litellm_model"`
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	// Fallbacks are tried in order when Model fails.
	Fallbacks []string `yaml:"fallbacks"`
}

// EffectiveTemperature returns the configured temperature or the default.
func (p Profile) EffectiveTemperature() float64 {
	if p.Temperature == nil {
		return DefaultTemperature
	}
	return *p.Temperature
}

// EffectiveMaxOutputTokens returns the configured limit or the default.
func (p Profile) EffectiveMaxOutputTokens() int {
	if p.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return p.MaxOutputTokens
}

type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Profiles is an immutable set of named profiles.
type Profiles map[string]Profile

// LoadProfiles reads profiles from a YAML file of the form
//
//	profiles:
//	  planner:
//	    litellm_model: anthropic/claude-sonnet-4-5
//	    temperature: 0.1
//
// A missing file yields an empty set.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Profiles{}, nil
		}
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes the YAML profile document.
func ParseProfiles(data []byte) (Profiles, error) {
	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing profiles: %w", err)
	}
	out := make(Profiles, len(doc.Profiles))
	for name, p := range doc.Profiles {
		if p.Model == "" {
			return nil, fmt.Errorf("profile %q: litellm_model is required", name)
		}
		p.Name = name
		out[name] = p
	}
	return out, nil
}

// Get returns the named profile or ErrUnknownProfile.
func (ps Profiles) Get(name string) (Profile, error) {
	p, ok := ps[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns the profile names, sorted.
func (ps Profiles) Names() []string {
	names := make([]string, 0, len(ps))
	for n := range ps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
