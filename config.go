package pyplusplus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = errors.New("configuration validation failed")

// CacheDirEnv overrides the cache directory discovered from the user profile.
const CacheDirEnv = "PYPLUSPLUS_CACHE_DIR"

// Config represents the pyplusplus configuration
type Config struct {
	Python      string        `yaml:"python"`
	Interceptor string        `yaml:"interceptor"`
	Cache       CacheConfig   `yaml:"cache"`
	Rewrite     RewriteConfig `yaml:"rewrite"`
}

// CacheConfig represents rewrite cache settings
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	Backend       string `yaml:"backend"`
	MemoryEntries int    `yaml:"memory_entries"`
}

// RewriteConfig represents rewriter settings
type RewriteConfig struct {
	// HostCheck validates lowered output against the Python grammar before it is
	// handed to the interpreter. The interpreter validates it anyway, so this is
	// off by default for run and always on for check.
	HostCheck  bool   `yaml:"host_check"`
	TempPrefix string `yaml:"temp_prefix"`
}

// Supported values
const (
	InterceptorAuto    = "auto"
	InterceptorPreload = "preload"
	InterceptorInject  = "inject"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var tempPrefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// Read .env files first. Their values feed the configuration only and
	// never reach the environment of the interpreter we launch.
	env, err := loadEnvFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	// Check if config file exists
	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		config := DefaultConfig()
		expandConfigEnvVars(config, env)
		applyEnvOverrides(config, env)

		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML with strict mode to detect unknown fields
	var config Config

	err = yaml.UnmarshalWithOptions(data, &config, yaml.Strict())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDefaults(&config)
	expandConfigEnvVars(&config, env)
	applyEnvOverrides(&config, env)

	return &config, nil
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	validInterceptors := map[string]bool{
		InterceptorAuto:    true,
		InterceptorPreload: true,
		InterceptorInject:  true,
	}
	if config.Interceptor != "" && !validInterceptors[config.Interceptor] {
		return fmt.Errorf("%w: invalid interceptor '%s': must be one of auto, preload, inject", ErrConfigValidation, config.Interceptor)
	}

	validBackends := map[string]bool{
		BackendFile:   true,
		BackendSQLite: true,
		BackendMemory: true,
	}
	if config.Cache.Backend != "" && !validBackends[config.Cache.Backend] {
		return fmt.Errorf("%w: invalid cache.backend '%s': must be one of file, sqlite, memory", ErrConfigValidation, config.Cache.Backend)
	}

	if config.Cache.MemoryEntries < 0 {
		return fmt.Errorf("%w: cache.memory_entries must be non-negative, got %d", ErrConfigValidation, config.Cache.MemoryEntries)
	}

	if config.Rewrite.TempPrefix != "" && !tempPrefixPattern.MatchString(config.Rewrite.TempPrefix) {
		return fmt.Errorf("%w: rewrite.temp_prefix '%s' is not a valid Python identifier", ErrConfigValidation, config.Rewrite.TempPrefix)
	}

	return nil
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Python:      defaultPython(),
		Interceptor: InterceptorAuto,
		Cache: CacheConfig{
			Dir:           defaultCacheDir(),
			Backend:       BackendFile,
			MemoryEntries: 512,
		},
		Rewrite: RewriteConfig{
			HostCheck:  false,
			TempPrefix: "_pp_",
		},
	}
}

// applyDefaults applies default values to missing configuration fields
func applyDefaults(config *Config) {
	if config.Python == "" {
		config.Python = defaultPython()
	}

	if config.Interceptor == "" {
		config.Interceptor = InterceptorAuto
	}

	if config.Cache.Dir == "" {
		config.Cache.Dir = defaultCacheDir()
	}

	if config.Cache.Backend == "" {
		config.Cache.Backend = BackendFile
	}

	if config.Cache.MemoryEntries == 0 {
		config.Cache.MemoryEntries = 512
	}

	if config.Rewrite.TempPrefix == "" {
		config.Rewrite.TempPrefix = "_pp_"
	}
}

// applyEnvOverrides applies environment variables that take precedence over the file
func applyEnvOverrides(config *Config, env dotEnv) {
	if dir := env.get(CacheDirEnv); dir != "" {
		config.Cache.Dir = dir
	}
}

func defaultPython() string {
	if filepath.Separator == '\\' {
		return "python"
	}

	return "python3"
}

// defaultCacheDir returns the user-scoped cache directory, or "" when the
// platform has none. An empty directory makes the cache memory-only.
func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "pyplusplus")
}

// dotEnv holds variables read from .env. The process environment wins over
// it, as it would with godotenv.Load.
type dotEnv map[string]string

func (e dotEnv) get(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return e[key]
}

// loadEnvFiles reads .env files if they exist
func loadEnvFiles() (dotEnv, error) {
	// Try to read .env file from current directory
	if !fileExists(".env") {
		return dotEnv{}, nil
	}

	env, err := godotenv.Read(".env")
	if err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return env, nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	plainEnvVar  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string, env dotEnv) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // Remove ${ and }
		return env.get(varName)
	})

	s = plainEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:] // Remove $
		return env.get(varName)
	})

	return s
}

// expandConfigEnvVars expands environment variables in path-like settings
func expandConfigEnvVars(config *Config, env dotEnv) {
	config.Python = expandEnvVars(config.Python, env)
	config.Cache.Dir = expandEnvVars(config.Cache.Dir, env)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
