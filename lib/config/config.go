// Package config loads operator-tunable knobs that are otherwise fixed
// constants: the app-data directory, and the default region. A missing
// file is not an error; every field keeps its default value.
package config

import (
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk, operator-editable configuration file.
type Config struct {
	// DataDir overrides the app-data directory certs are persisted
	// under. Defaults to the OS user config dir + "teemoproxy".
	DataDir string `yaml:"data_dir"`

	// DefaultRegion seeds the fallback chat host before the config
	// proxy discovers the real one, when the launch command is given
	// no --region flag.
	DefaultRegion string `yaml:"default_region"`
}

// Default returns a Config with every field at its spec-mandated
// default value.
func Default() Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Config{
		DataDir:       filepath.Join(dir, "teemoproxy"),
		DefaultRegion: "na",
	}
}

// Load reads a YAML config file at path, overlaying it on Default().
// A missing file is not an error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, trace.Wrap(err, "reading config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, trace.Wrap(err, "parsing config file %s", path)
	}

	return cfg, nil
}
