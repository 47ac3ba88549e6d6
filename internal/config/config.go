// Package config holds the client settings and loads overrides from a
// YAML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL  = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Settings are the effective client settings after flags and the config
// file have been merged.
type Settings struct {
	APIURL     string
	SessionDir string
	Timeout    time.Duration
	Cache      bool
	Debug      bool
	Telemetry  bool
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		APIURL:  DefaultAPIURL,
		Timeout: DefaultTimeout,
		Cache:   true,
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	u, err := url.Parse(s.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api url %q: scheme must be http or https", s.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid api url %q: missing host", s.APIURL)
	}
	if s.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	return nil
}

// File is the on disk config format.
type File struct {
	APIURL     string        `yaml:"apiUrl" json:"apiUrl"`
	SessionDir string        `yaml:"sessionDir" json:"sessionDir"`
	Timeout    time.Duration `yaml:"timeout" json:"-"`
	Cache      *bool         `yaml:"cache" json:"cache"`
	Debug      bool          `yaml:"debug" json:"debug"`
	Telemetry  bool          `yaml:"telemetry" json:"telemetry"`

	// TimeoutText carries the JSON form of timeout, e.g. "45s".
	TimeoutText string `yaml:"-" json:"timeout"`
}

// Load reads a config file. Files ending in .json are parsed as JSON,
// everything else as YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		if f.TimeoutText != "" {
			f.Timeout, err = time.ParseDuration(f.TimeoutText)
			if err != nil {
				return nil, fmt.Errorf("failed to parse JSON config: invalid timeout: %w", err)
			}
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return &f, nil
}

// Apply overrides s with the values set in the file. The file takes
// precedence over flags.
func (f *File) Apply(s *Settings) {
	if f.APIURL != "" {
		s.APIURL = f.APIURL
	}
	if f.SessionDir != "" {
		s.SessionDir = f.SessionDir
	}
	if f.Timeout > 0 {
		s.Timeout = f.Timeout
	}
	if f.Cache != nil {
		s.Cache = *f.Cache
	}
	if f.Debug {
		s.Debug = true
	}
	if f.Telemetry {
		s.Telemetry = true
	}
}
