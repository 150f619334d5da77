// Package config handles the Jenkins CLI configuration using Viper.
//
// Configuration lives in ~/.jenkins.toml: a [config] block of global
// settings and one [[jenkins]] entry per service. A missing file is
// created from a commented template. Mutable state (history, update
// stamps) lives under the data directory ~/.jenkins-cli/.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
)

const (
	// FileName is the config file name under the home directory.
	FileName = ".jenkins.toml"
	// DataDirName is the data directory name under the home directory.
	DataDirName = ".jenkins-cli"
)

// defaultTemplate is written when no config file exists yet.
const defaultTemplate = `[config]
# locale = "en-US"
# enable_history = true
# check_update = true
# timeout = 30

[[jenkins]]
name = ""
url = ""
user = ""
token = ""
# includes = ["*"]
# excludes = []
`

// Global holds the [config] block.
type Global struct {
	Locale        string `mapstructure:"locale" toml:"locale,omitempty"`
	EnableHistory *bool  `mapstructure:"enable_history" toml:"enable_history,omitempty"`
	CheckUpdate   *bool  `mapstructure:"check_update" toml:"check_update,omitempty"`
	Timeout       int    `mapstructure:"timeout" toml:"timeout,omitempty"`
	LogLevel      string `mapstructure:"log_level" toml:"log_level,omitempty"`
}

// HistoryEnabled reports whether build history recording is on.
// Unset means enabled.
func (g Global) HistoryEnabled() bool {
	return g.EnableHistory == nil || *g.EnableHistory
}

// UpdateCheckEnabled reports whether the background release check is on.
// Unset means enabled.
func (g Global) UpdateCheckEnabled() bool {
	return g.CheckUpdate == nil || *g.CheckUpdate
}

// Service is one [[jenkins]] entry.
type Service struct {
	Name          string                 `mapstructure:"name" toml:"name"`
	URL           string                 `mapstructure:"url" toml:"url"`
	User          string                 `mapstructure:"user" toml:"user"`
	Token         string                 `mapstructure:"token" toml:"token"`
	Cookie        string                 `mapstructure:"cookie" toml:"cookie,omitempty"`
	Includes      []string               `mapstructure:"includes" toml:"includes,omitempty"`
	Excludes      []string               `mapstructure:"excludes" toml:"excludes,omitempty"`
	EnableHistory *bool                  `mapstructure:"enable_history" toml:"enable_history,omitempty"`
	CookieRefresh *jenkins.RefreshConfig `mapstructure:"cookie_refresh" toml:"cookie_refresh,omitempty"`
}

// Complete reports whether the entry carries everything needed to
// authenticate.
func (s Service) Complete() bool {
	return s.URL != "" && s.User != "" && s.Token != ""
}

// DisplayName returns the name shown in the service picker.
func (s Service) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.URL
}

// File is the parsed configuration file.
type File struct {
	Global   Global    `toml:"config,omitempty"`
	Services []Service `toml:"jenkins"`
}

// FindService returns the entry whose URL matches url, compared without
// scheme and trailing slash.
func (f *File) FindService(url string) *Service {
	want := simplifyURL(url)
	for i := range f.Services {
		if simplifyURL(f.Services[i].URL) == want {
			return &f.Services[i]
		}
	}
	return nil
}

// Path returns the config file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// DataDir returns the data directory, creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	dir := filepath.Join(home, DataDirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// Load reads the configuration from path. A missing file is created from
// the default template first; a file that fails to parse yields an empty
// configuration with a warning rather than an error, so a typo cannot lock
// the operator out of --url usage.
func Load(path string) (*File, error) {
	if err := MigrateLegacyYAML(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config migration failed: %v\n", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultTemplate), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		return &File{}, nil
	}

	v := viper.New()
	v.SetConfigType("toml")

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		return &File{}, nil
	}

	var f File
	if err := v.UnmarshalKey("config", &f.Global); err != nil {
		return nil, fmt.Errorf("failed to parse [config]: %w", err)
	}

	// Viper lowercases keys while decoding, which would corrupt the maps
	// inside cookie_refresh (cookie names such as JSESSIONID are
	// case-sensitive). The [[jenkins]] entries decode with go-toml, which
	// keeps key case intact.
	var services struct {
		Entries []Service `toml:"jenkins"`
	}
	if err := toml.Unmarshal(data, &services); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		return &File{}, nil
	}
	f.Services = services.Entries

	return &f, nil
}

// Save writes the configuration back to path.
func Save(path string, f *File) error {
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// CookiePersister returns a jenkins.PersistFunc that writes the refreshed
// cookie subset back into the [[jenkins]] entry matching serviceURL. It
// re-reads the file on every write so unrelated edits are not clobbered.
func CookiePersister(path, serviceURL string) jenkins.PersistFunc {
	return func(subset string) (bool, error) {
		f, err := Load(path)
		if err != nil {
			return false, err
		}

		svc := f.FindService(serviceURL)
		if svc == nil {
			return false, fmt.Errorf("no config entry for %s", serviceURL)
		}
		if svc.Cookie == subset {
			return false, nil
		}

		svc.Cookie = subset
		if err := Save(path, f); err != nil {
			return false, err
		}
		return true, nil
	}
}

// simplifyURL strips the scheme and any trailing slash so URLs compare by
// host and path only.
func simplifyURL(url string) string {
	s := url
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	return strings.TrimRight(s, "/")
}
