package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets can also come from the environment (see ApplyEnv).

// StoreConfig describes the record store and the two list views the board reads.
type StoreConfig struct {
	// BaseURL is the store's API host, e.g. "https://acme.my.salesforce.com".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIVersion is the REST API version without the leading "v".
	APIVersion string `yaml:"api_version" json:"api_version"`
	// Token is the bearer token. Prefer CONSULTBOARD_STORE_TOKEN over storing it here.
	Token string `yaml:"token,omitempty" json:"-"`

	ObjectAPIName    string `yaml:"object_api_name" json:"object_api_name"`
	ThisWeekListView string `yaml:"this_week_list_view" json:"this_week_list_view"`
	AllListView      string `yaml:"all_list_view" json:"all_list_view"`
	PageSize         int    `yaml:"page_size" json:"page_size"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CaptureConfig controls PNG snapshots of the rendered board.
type CaptureConfig struct {
	// Enabled captures a snapshot after every scheduled refresh.
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the board UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone whose calendar dates the board uses.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/5 * * * *")
	// used for periodic refetching of both list views.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds ETag-revalidated copies of list-view pages. Empty
	// disables the cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RecordPageBaseURL is the web host used when opening a record,
	// e.g. "https://acme.lightning.force.com".
	RecordPageBaseURL string `yaml:"record_page_base_url" json:"record_page_base_url"`

	Store   StoreConfig   `yaml:"store" json:"store"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
	Log     LogConfig     `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Defaults for the consult request list views.
const (
	DefaultObjectAPIName    = "Consult_Request__c"
	DefaultThisWeekListView = "CR_Phone_This_Week"
	DefaultAllListView      = "CR_Phone"
	DefaultPageSize         = 200
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "",
		RefreshCron: "*/5 * * * *",
		CacheDir:    "/var/lib/consultboard/cache",
		Store: StoreConfig{
			APIVersion:       "59.0",
			ObjectAPIName:    DefaultObjectAPIName,
			ThisWeekListView: DefaultThisWeekListView,
			AllListView:      DefaultAllListView,
			PageSize:         DefaultPageSize,
			TimeoutSeconds:   15,
		},
		Capture: CaptureConfig{
			Enabled:    false,
			OutputPath: "/var/lib/consultboard/preview.png",
			Width:      1280,
			Height:     800,
		},
		Log:       LogConfig{Level: "info"},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	c.Store.BaseURL = strings.TrimRight(c.Store.BaseURL, "/")
	if c.Store.APIVersion == "" {
		c.Store.APIVersion = def.Store.APIVersion
	}
	c.Store.APIVersion = strings.TrimPrefix(c.Store.APIVersion, "v")
	if c.Store.ObjectAPIName == "" {
		c.Store.ObjectAPIName = def.Store.ObjectAPIName
	}
	if c.Store.ThisWeekListView == "" {
		c.Store.ThisWeekListView = def.Store.ThisWeekListView
	}
	if c.Store.AllListView == "" {
		c.Store.AllListView = def.Store.AllListView
	}
	// The list-view service caps pages at 200 records.
	if c.Store.PageSize <= 0 || c.Store.PageSize > DefaultPageSize {
		c.Store.PageSize = DefaultPageSize
	}
	if c.Store.TimeoutSeconds <= 0 {
		c.Store.TimeoutSeconds = def.Store.TimeoutSeconds
	}
	if c.RecordPageBaseURL == "" {
		c.RecordPageBaseURL = lightningHost(c.Store.BaseURL)
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = def.Capture.OutputPath
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// lightningHost derives the record page host from the API host:
// https://acme.my.salesforce.com -> https://acme.lightning.force.com.
func lightningHost(apiBase string) string {
	const mySuffix = ".my.salesforce.com"
	if !strings.HasSuffix(apiBase, mySuffix) {
		return apiBase
	}
	return strings.TrimSuffix(apiBase, mySuffix) + ".lightning.force.com"
}

// Environment variables that override file values.
const (
	EnvStoreToken   = "CONSULTBOARD_STORE_TOKEN"
	EnvStoreBaseURL = "CONSULTBOARD_STORE_BASE_URL"
	EnvListen       = "CONSULTBOARD_LISTEN"
	EnvLogLevel     = "CONSULTBOARD_LOG_LEVEL"
	EnvTimezone     = "CONSULTBOARD_TIMEZONE"
)

// ApplyEnv loads dotenv files (missing files are fine) and overlays any set
// CONSULTBOARD_* variables onto c.
func (c *Config) ApplyEnv(dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	overlay := map[string]*string{
		EnvStoreToken:   &c.Store.Token,
		EnvStoreBaseURL: &c.Store.BaseURL,
		EnvListen:       &c.Listen,
		EnvLogLevel:     &c.Log.Level,
		EnvTimezone:     &c.Timezone,
	}
	for key, dst := range overlay {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".consultboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
