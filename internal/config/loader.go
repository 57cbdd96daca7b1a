package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment variables recognised on top of the config file.
const (
	EnvServerURL    = "PROTOCOL_V2_SERVER_URL"
	EnvPollInterval = "POLL_INTERVAL_SECONDS"
	EnvAuthToken    = "PROTOCOL_V2_AUTH_TOKEN"
	EnvS3Endpoint   = "S3_ENDPOINT"
	EnvS3AccessKey  = "ACCESS_KEY"
	EnvS3SecretKey  = "SECRET_KEY"
	EnvS3Bucket     = "S3_BUCKET"
	EnvLogLevel     = "MESH_LOG_LEVEL"
	EnvPluginDirs   = "MESH_PLUGIN_DIRS"
	EnvJournalPath  = "MESH_JOURNAL_PATH"
	EnvAPIListen    = "MESH_API_LISTEN"
	EnvAPIToken     = "MESH_API_TOKEN"
)

// Load builds the configuration from defaults, an optional YAML file and the
// process environment, in that order of precedence. An empty configPath skips
// the file.
func Load(configPath string) (*Config, error) {
	return load(configPath, os.LookupEnv)
}

func load(configPath string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}
		if err := loadFile(cfg, absPath, lookup); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	// An S3 endpoint in the environment selects the S3 store.
	if cfg.Metadata.Store == MetadataStoreNone {
		if _, ok := lookup(EnvS3Endpoint); ok {
			cfg.Metadata.Store = MetadataStoreS3
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg after ${VAR} interpolation.
func loadFile(cfg *Config, path string, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	interpolated := interpolateEnv(string(data), lookup)
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	setString(EnvServerURL, &cfg.Mesh.ServerURL)
	setString(EnvAuthToken, &cfg.Mesh.AuthToken)
	setString(EnvS3Endpoint, &cfg.Metadata.S3.Endpoint)
	setString(EnvS3AccessKey, &cfg.Metadata.S3.AccessKey)
	setString(EnvS3SecretKey, &cfg.Metadata.S3.SecretKey)
	setString(EnvS3Bucket, &cfg.Metadata.S3.Bucket)
	setString(EnvLogLevel, &cfg.Service.LogLevel)
	setString(EnvJournalPath, &cfg.Journal.Path)
	setString(EnvAPIToken, &cfg.API.Token)

	if v, ok := lookup(EnvAPIListen); ok && v != "" {
		cfg.API.Listen = v
		cfg.API.Enabled = true
	}

	if v, ok := lookup(EnvPluginDirs); ok && v != "" {
		cfg.Agents.PluginDirs = splitList(v)
	}

	if v, ok := lookup(EnvPollInterval); ok && v != "" {
		secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q: %w", EnvPollInterval, v, err)
		}
		cfg.Mesh.PollInterval = time.Duration(secs * float64(time.Second))
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unknown variables are left in place so validation can report them.
func interpolateEnv(input string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := lookup(varName); exists {
			return value
		}
		return match
	})
}

func splitList(v string) []string {
	parts := strings.Split(v, string(os.PathListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Mesh.ServerURL) == "" {
		return fmt.Errorf("mesh.server_url is required")
	}
	if !strings.HasPrefix(cfg.Mesh.ServerURL, "http://") && !strings.HasPrefix(cfg.Mesh.ServerURL, "https://") {
		return fmt.Errorf("mesh.server_url must be an http(s) URL (got %q)", cfg.Mesh.ServerURL)
	}
	if cfg.Mesh.PollInterval <= 0 {
		return fmt.Errorf("mesh.poll_interval must be positive")
	}
	if cfg.Mesh.SubmitTimeout < 0 {
		return fmt.Errorf("mesh.submit_timeout must not be negative")
	}
	if cfg.Mesh.PollErrorBackoff < 0 {
		return fmt.Errorf("mesh.poll_error_backoff must not be negative")
	}
	if envVarPattern.MatchString(cfg.Mesh.AuthToken) {
		matches := envVarPattern.FindStringSubmatch(cfg.Mesh.AuthToken)
		return fmt.Errorf("mesh.auth_token: environment variable ${%s} is not set", matches[1])
	}
	if cfg.Mesh.AgentType == "" {
		return fmt.Errorf("mesh.agent_type is required")
	}

	switch cfg.Metadata.Store {
	case MetadataStoreNone, "":
	case MetadataStoreFile:
		if cfg.Metadata.File.Path == "" {
			return fmt.Errorf("metadata.file.path is required for the file store")
		}
	case MetadataStoreS3:
		if cfg.Metadata.S3.Bucket == "" {
			return fmt.Errorf("metadata.s3.bucket is required for the s3 store")
		}
		if cfg.Metadata.S3.Key == "" {
			return fmt.Errorf("metadata.s3.key is required for the s3 store")
		}
	default:
		return fmt.Errorf("metadata.store must be one of: none, file, s3 (got %q)", cfg.Metadata.Store)
	}

	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the API is enabled")
	}
	if envVarPattern.MatchString(cfg.API.Token) {
		return fmt.Errorf("api.token: unresolved environment variable")
	}
	return nil
}
