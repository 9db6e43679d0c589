// Package clientconfig loads terminal client profiles from an INI file.
//
// File location: ~/.config/drivepane/config (%APPDATA%\drivepane\config on
// Windows). Each section is a profile:
//
//	[default]
//	server_url = https://drive.example.com
//	download_dir = ~/Downloads
//	max_file_size = 10485760
//	page_size = 30
//	log_file = ~/.config/drivepane/drivepane.log
//	log_level = info
//
//	[work]
//	server_url = https://files.work.example
//	token_file = ~/.config/drivepane/work-token.json
package clientconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultProfile is the section used when no profile is named.
const DefaultProfile = "default"

const (
	defaultServerURL   = "http://localhost:8080"
	defaultMaxFileSize = 10 * 1024 * 1024
	defaultPageSize    = 30
)

// Profile is one resolved client configuration.
type Profile struct {
	Name        string
	ServerURL   string
	DownloadDir string
	TokenFile   string
	MaxFileSize int64
	PageSize    int
	LogFile     string
	LogLevel    string
}

var (
	ErrMissingServerURL = errors.New("server_url is required")
	ErrInvalidPageSize  = errors.New("page_size must be between 1 and 1000")
)

// Dir returns the directory holding the client's config, token and log.
func Dir() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "drivepane")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "drivepane")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config")
}

// Defaults returns the profile used when no file exists.
func Defaults(name string) *Profile {
	if name == "" {
		name = DefaultProfile
	}
	home, _ := os.UserHomeDir()
	return &Profile{
		Name:        name,
		ServerURL:   defaultServerURL,
		DownloadDir: filepath.Join(home, "Downloads"),
		MaxFileSize: defaultMaxFileSize,
		PageSize:    defaultPageSize,
		LogLevel:    "info",
	}
}

// Load reads profile name from path. A missing file yields the defaults; a
// missing non-default profile is an error. DRIVEPANE_SERVER overrides the
// server URL.
func Load(path, name string) (*Profile, error) {
	if path == "" {
		path = DefaultPath()
	}
	p := Defaults(name)

	if _, err := os.Stat(path); err == nil {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if !f.HasSection(p.Name) {
			if p.Name != DefaultProfile {
				return nil, fmt.Errorf("profile %q not found in %s", p.Name, path)
			}
		} else {
			apply(p, f.Section(p.Name))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if v := os.Getenv("DRIVEPANE_SERVER"); v != "" {
		p.ServerURL = v
	}
	p.DownloadDir = ExpandHome(p.DownloadDir)
	p.TokenFile = ExpandHome(p.TokenFile)
	p.LogFile = ExpandHome(p.LogFile)

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return p, nil
}

func apply(p *Profile, sec *ini.Section) {
	p.ServerURL = sec.Key("server_url").MustString(p.ServerURL)
	p.DownloadDir = sec.Key("download_dir").MustString(p.DownloadDir)
	p.TokenFile = sec.Key("token_file").MustString(p.TokenFile)
	p.MaxFileSize = sec.Key("max_file_size").MustInt64(p.MaxFileSize)
	p.PageSize = sec.Key("page_size").MustInt(p.PageSize)
	p.LogFile = sec.Key("log_file").MustString(p.LogFile)
	p.LogLevel = sec.Key("log_level").MustString(p.LogLevel)
}

// Validate checks the resolved values.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ServerURL) == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(p.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be an http(s) URL", p.ServerURL)
	}
	if p.PageSize < 1 || p.PageSize > 1000 {
		return ErrInvalidPageSize
	}
	if p.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", p.MaxFileSize)
	}
	return nil
}

// Save writes p as its own section in path, keeping other profiles.
func Save(path string, p *Profile) error {
	if path == "" {
		path = DefaultPath()
	}
	f := ini.Empty()
	if _, err := os.Stat(path); err == nil {
		if f, err = ini.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	name := p.Name
	if name == "" {
		name = DefaultProfile
	}
	sec := f.Section(name)
	sec.Key("server_url").SetValue(p.ServerURL)
	setIf(sec, "download_dir", p.DownloadDir)
	setIf(sec, "token_file", p.TokenFile)
	sec.Key("max_file_size").SetValue(fmt.Sprint(p.MaxFileSize))
	sec.Key("page_size").SetValue(fmt.Sprint(p.PageSize))
	setIf(sec, "log_file", p.LogFile)
	setIf(sec, "log_level", p.LogLevel)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return f.SaveTo(path)
}

func setIf(sec *ini.Section, key, value string) {
	if value != "" {
		sec.Key(key).SetValue(value)
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
