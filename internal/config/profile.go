package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maauso/reelcard-api/internal/render"
)

// LoadProfile returns the compiled-in render profile overlaid with the YAML
// file at path. An empty path yields the defaults. Unknown keys are rejected
// so typos do not silently fall back to a default.
func LoadProfile(path string) (render.Profile, error) {
	profile := render.DefaultProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return render.Profile{}, fmt.Errorf("config: read render profile: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return render.Profile{}, fmt.Errorf("config: parse render profile %s: %w", path, err)
	}

	if err := profile.Validate(); err != nil {
		return render.Profile{}, fmt.Errorf("config: render profile %s: %w", path, err)
	}
	return profile, nil
}
