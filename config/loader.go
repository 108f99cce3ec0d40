package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "TC_"
	// EnvNestSeparator separates nesting levels in environment variable
	// names: TC_SERVER__HTTP__READ_TIMEOUT sets server.http.read_timeout.
	EnvNestSeparator = "__"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
	// DefaultEnvFile is read when present and no env file is given.
	DefaultEnvFile = ".env"
)

// dotenvKeys maps the provider variables of a .env file to config keys.
var dotenvKeys = map[string]string{
	"OLLAMA_ENDPOINT":   "chat.providers.ollama.endpoint",
	"LMSTUDIO_ENDPOINT": "chat.providers.lmstudio.endpoint",
	"OPENAI_API_KEY":    "chat.providers.openai.api_key",
	"GROQ_API_KEY":      "chat.providers.groq.api_key",
	"DEFAULT_PROVIDER":  "chat.default_provider",
	"DEFAULT_MODEL":     "chat.default_model",
}

// Loader handles configuration loading from various sources.
type Loader struct {
	mu        sync.Mutex
	k         *koanf.Koanf
	envFile   string
	overrides map[string]interface{}
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvFile reads provider settings from the given .env file. A missing
// file is an error.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.envFile = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New(Delimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration from all sources with the following priority:
// 1. Command line overrides (highest)
// 2. Environment variables
// 3. The .env file
// 4. Configuration files
// 5. Defaults (lowest)
//
// A nil overrides map reuses the overrides of the previous call, so a
// reload keeps the command line settings.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.k = koanf.New(Delimiter)
	if overrides == nil {
		overrides = l.overrides
	}
	l.overrides = overrides

	// 1. Load defaults
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load from file if specified
	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		// Try to find config in standard locations
		l.loadDefaultFiles()
	}

	// 3. Load provider settings from .env
	if err := l.loadDotenv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// 4. Load from environment variables
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Apply command line overrides (merge, not replace)
	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads the default configuration as flat keys so later
// sources merge into it field by field.
func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(structToMap(DefaultConfig(), ""), Delimiter), nil)
}

// parserFor picks the koanf parser for a config file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return TOMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// loadFile loads configuration from a file.
func (l *Loader) loadFile(path string) error {
	parser, err := parserFor(path)
	if err != nil {
		return err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// loadDefaultFiles tries to load config from standard locations.
func (l *Loader) loadDefaultFiles() {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"config.toml",
		"config.json",
		"configs/config.yaml",
		"/etc/tc/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path) // Ignore error, try next
			return
		}
	}
}

// loadDotenv maps the provider variables of a .env file onto config keys.
// Placeholder values such as "sk-..." are ignored.
func (l *Loader) loadDotenv() error {
	path := l.envFile
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return err
	}

	values := make(map[string]interface{})
	for name, key := range dotenvKeys {
		v := strings.TrimSpace(vars[name])
		if isPlaceholder(v) {
			continue
		}
		values[key] = v
	}
	if len(values) == 0 {
		return nil
	}
	return l.k.Load(confmap.Provider(values, Delimiter), nil)
}

func isPlaceholder(v string) bool {
	return v == "" || strings.HasSuffix(v, "...")
}

// loadEnv loads configuration from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		// TC_SERVER__PORT -> server.port
		// TC_RAG__CHUNK_SIZE -> rag.chunk_size
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, EnvNestSeparator, Delimiter)
	}), nil)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Get(key)
}

// GetString returns a string configuration value.
func (l *Loader) GetString(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.String(key)
}

// structToMap recursively converts a struct to a flat map with dot-separated keys.
// This enables automatic default value extraction without manual field listing.
func structToMap(v interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	val := reflect.ValueOf(v)

	// Dereference pointer if needed
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	// Only process structs
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}

		fullKey := key
		if prefix != "" {
			fullKey = prefix + Delimiter + key
		}

		switch fieldVal.Kind() {
		case reflect.Ptr:
			if !fieldVal.IsNil() {
				for k, v := range structToMap(fieldVal.Elem().Interface(), fullKey) {
					result[k] = v
				}
			}
		case reflect.Struct:
			for k, v := range structToMap(fieldVal.Interface(), fullKey) {
				result[k] = v
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			result[fullKey] = fieldVal.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			result[fullKey] = fieldVal.Uint()
		case reflect.Float32, reflect.Float64:
			result[fullKey] = fieldVal.Float()
		case reflect.Bool:
			result[fullKey] = fieldVal.Bool()
		case reflect.String:
			result[fullKey] = fieldVal.String()
		case reflect.Slice:
			slice := make([]interface{}, fieldVal.Len())
			for j := range slice {
				slice[j] = fieldVal.Index(j).Interface()
			}
			result[fullKey] = slice
		case reflect.Map:
			// Empty maps stay unset so a file can provide them.
			if fieldVal.Len() > 0 {
				result[fullKey] = fieldVal.Interface()
			}
		default:
			result[fullKey] = fieldVal.Interface()
		}
	}

	return result
}

// Print prints the loaded configuration for debugging.
func (l *Loader) Print() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.k.Sprint()
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
