package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "dyget"
	EnvPrefix      = "DYGET"
)

// ConfigDir returns the standard config directory for dyget.
// Windows: %APPDATA%\dyget\
// macOS/Linux: ~/.config/dyget/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
// e.g., ~/.config/dyget/config.yml
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return ExpandPath(p), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// Language for client-facing messages ("en", "vi", "zh")
	Language string `yaml:"language,omitempty" split_words:"true"`

	// Directory where materialized artifacts are written and served from
	OutputDir string `yaml:"output_dir,omitempty" envconfig:"OUTPUT_DIR"`

	// LogLevel is a logrus level name ("debug", "info", "warn", ...)
	LogLevel string `yaml:"log_level,omitempty" envconfig:"LOG_LEVEL"`

	// Server configuration for `dyget serve`
	Server ServerConfig `yaml:"server,omitempty"`

	// Douyin platform access settings
	Douyin DouyinConfig `yaml:"douyin,omitempty"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser,omitempty"`
}

// ServerConfig holds HTTP server settings for `dyget serve`
type ServerConfig struct {
	// Port is the HTTP listen port (default: 3000)
	Port int `yaml:"port,omitempty" envconfig:"PORT"`

	// MaxConcurrent is the number of async download workers (default: 3)
	MaxConcurrent int `yaml:"max_concurrent,omitempty" envconfig:"MAX_CONCURRENT"`

	// APIKey for authentication (optional, if set API requests must include X-API-Key header)
	APIKey string `yaml:"api_key,omitempty" envconfig:"API_KEY"`

	// FileExpiry is how long a materialized artifact is kept before deletion
	FileExpiry time.Duration `yaml:"file_expiry,omitempty" envconfig:"FILE_EXPIRY"`

	// CleanupInterval is the period of the expired-artifact sweep
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" envconfig:"CLEANUP_INTERVAL"`
}

// DouyinConfig holds the operational constants used to talk to the platform
type DouyinConfig struct {
	UserAgent string `yaml:"user_agent,omitempty" split_words:"true"`

	// Cookie sent with direct API requests (a ttwid cookie is usually enough)
	Cookie string `yaml:"cookie,omitempty" split_words:"true"`

	// RequestTimeout bounds the redirect lookup and each direct API call
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" envconfig:"REQUEST_TIMEOUT"`

	// MaxRedirects caps redirect hops when resolving share links
	MaxRedirects int `yaml:"max_redirects,omitempty" envconfig:"MAX_REDIRECTS"`

	// RedirectCacheSize and RedirectCacheTTL bound the share-link cache
	RedirectCacheSize int           `yaml:"redirect_cache_size,omitempty" envconfig:"REDIRECT_CACHE_SIZE"`
	RedirectCacheTTL  time.Duration `yaml:"redirect_cache_ttl,omitempty" envconfig:"REDIRECT_CACHE_TTL"`

	// TLSFingerprint makes direct API calls with a Chrome TLS ClientHello
	TLSFingerprint bool `yaml:"tls_fingerprint" envconfig:"TLS_FINGERPRINT"`
}

// BrowserConfig selects and tunes the browser environment profile
type BrowserConfig struct {
	// Profile is "auto", "local" or "server"
	Profile string `yaml:"profile,omitempty" envconfig:"PROFILE"`

	// Bin is the browser executable. Empty lets rod download/find one.
	Bin string `yaml:"bin,omitempty" envconfig:"ROD_BROWSER"`

	// Visible shows the browser window (local debugging only)
	Visible bool `yaml:"visible,omitempty" split_words:"true"`

	// Overrides for the profile defaults; zero keeps the profile value
	NavigationTimeout time.Duration `yaml:"navigation_timeout,omitempty" envconfig:"NAVIGATION_TIMEOUT"`
	Deadline          time.Duration `yaml:"deadline,omitempty" split_words:"true"`
	Retries           *int          `yaml:"retries,omitempty" split_words:"true"`
}

// DefaultDownloadDir returns the default download directory
func DefaultDownloadDir() string {
	// Docker: use the default container path (users mount their volume here)
	if IsRunningInDocker() {
		return "/home/dyget/downloads"
	}
	return "./downloads"
}

// IsRunningInDocker detects if we're running inside a Docker container
func IsRunningInDocker() bool {
	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	// Check cgroup
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}
	// Check for kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	return false
}

// IsConstrainedHost reports whether the process runs on a managed host
// (Render, Docker, Kubernetes) where the server browser profile applies.
func IsConstrainedHost() bool {
	if os.Getenv("RENDER") != "" || os.Getenv("IS_RENDER_ENVIRONMENT") != "" {
		return true
	}
	return IsRunningInDocker()
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Language:  "en",
		OutputDir: DefaultDownloadDir(),
		LogLevel:  "info",
		Server: ServerConfig{
			Port:            3000,
			MaxConcurrent:   3,
			FileExpiry:      24 * time.Hour,
			CleanupInterval: 6 * time.Hour,
		},
		Douyin: DouyinConfig{
			UserAgent:         DefaultUserAgent,
			Cookie:            DefaultCookie,
			RequestTimeout:    10 * time.Second,
			MaxRedirects:      5,
			RedirectCacheSize: 4096,
			RedirectCacheTTL:  24 * time.Hour,
			TLSFingerprint:    true,
		},
		Browser: BrowserConfig{
			Profile: ProfileAuto,
		},
	}
}

// Exists checks if config file exists
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config from ~/.config/dyget/config.yml on top of the
// defaults, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := readFile()
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile parses the config file over the defaults. A missing file
// yields an error wrapping fs.ErrNotExist.
func readFile() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}
	cfg.OutputDir = ExpandPath(cfg.OutputDir)
	cfg.Browser.Bin = ExpandPath(cfg.Browser.Bin)
	if cfg.Browser.Bin == "" {
		// Name used by puppeteer-based deployments
		cfg.Browser.Bin = os.Getenv("PUPPETEER_EXECUTABLE_PATH")
	}
	return nil
}

// ExpandPath expands the tilde (~) in the path to the user's home directory.
// It handles both forward and backward slashes to ensure cross-platform compatibility
// for configuration files.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		// Only expand if it's explicitly "~", "~/", or "~\"
		if len(path) == 1 || path[1] == '/' || path[1] == '\\' {
			home, err := os.UserHomeDir()
			if err == nil {
				subPath := path[1:]
				if len(subPath) > 0 && (subPath[0] == '/' || subPath[0] == '\\') {
					subPath = subPath[1:]
				}
				return filepath.Join(home, subPath)
			}
		}
	}

	return path
}

// Save writes the config to ~/.config/dyget/config.yml
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# dyget configuration file\n# Run 'dyget init' to regenerate with defaults\n\n"
	content := header + string(data)

	return os.WriteFile(configPath, []byte(content), 0644)
}

// Init creates a new config.yml with default values
func Init() error {
	if Exists() {
		path, _ := ConfigPath()
		return fmt.Errorf("%s already exists", path)
	}
	return Save(DefaultConfig())
}

// LoadOrDefault loads config if it exists, otherwise returns defaults.
// Environment overrides apply in both cases. An unreadable file or an
// invalid override is logged and skipped.
func LoadOrDefault() *Config {
	cfg, err := readFile()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Warn("ignoring config file, using defaults")
		}
		cfg = DefaultConfig()
	}

	// envconfig stops at the first bad value with earlier fields already set
	base := *cfg
	if err := applyEnv(cfg); err != nil {
		log.WithError(err).Warn("ignoring environment overrides")
		*cfg = base
		cfg.OutputDir = ExpandPath(cfg.OutputDir)
		cfg.Browser.Bin = ExpandPath(cfg.Browser.Bin)
	}
	return cfg
}
