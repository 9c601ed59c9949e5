// pkg/manifest/load.go
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a manifest from path, picking the decoder by extension
// (.yaml/.yml, otherwise TOML). A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return Config{}, err
	}
	if err := Decode(path, b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode unmarshals b onto cfg using the format implied by name.
func Decode(name string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("%s: yaml: %w", name, err)
		}
	default:
		if err := toml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("%s: toml: %w", name, err)
		}
	}
	return nil
}
