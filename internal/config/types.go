package config

import "time"

// Config represents the complete meshmgr configuration.
// It is built once by Load and treated as read-only afterwards.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Mesh     MeshConfig     `yaml:"mesh"`
	Agents   AgentsConfig   `yaml:"agents"`
	Metadata MetadataConfig `yaml:"metadata"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api,omitempty"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LockPath  string `yaml:"lock_path"`
}

// MeshConfig defines how the manager talks to the dispatch server.
type MeshConfig struct {
	ServerURL string `yaml:"server_url"`
	AuthToken string `yaml:"auth_token"`
	AgentType string `yaml:"agent_type"`

	// PollInterval bounds a single poll request. An expired poll counts as
	// "no task" and the loop polls again straight away.
	PollInterval time.Duration `yaml:"poll_interval"`

	// SubmitTimeout bounds a single result submission. Zero means no bound
	// beyond the shutdown context.
	SubmitTimeout time.Duration `yaml:"submit_timeout,omitempty"`

	// PollErrorBackoff is slept after a failed poll. Zero keeps the loop
	// polling without delay.
	PollErrorBackoff time.Duration `yaml:"poll_error_backoff,omitempty"`
}

// AgentsConfig controls handler discovery.
type AgentsConfig struct {
	PluginDirs []string `yaml:"plugin_dirs,omitempty"`

	// MetadataDenylist names handlers that run but are never published to
	// the metadata store.
	MetadataDenylist []string `yaml:"metadata_denylist,omitempty"`

	// Disabled names handlers that are discovered but get no poll loop.
	Disabled []string `yaml:"disabled,omitempty"`

	// ExecTimeout bounds a single exec-agent invocation.
	ExecTimeout time.Duration `yaml:"exec_timeout,omitempty"`
}

// MetadataStoreKind selects where discovered handler metadata is published.
type MetadataStoreKind string

const (
	MetadataStoreNone MetadataStoreKind = "none"
	MetadataStoreFile MetadataStoreKind = "file"
	MetadataStoreS3   MetadataStoreKind = "s3"
)

// MetadataConfig defines the metadata synchronisation target.
type MetadataConfig struct {
	Store MetadataStoreKind `yaml:"store"`
	File  FileStoreConfig   `yaml:"file,omitempty"`
	S3    S3StoreConfig     `yaml:"s3,omitempty"`
}

// FileStoreConfig is a local metadata document, handy for development.
type FileStoreConfig struct {
	Path string `yaml:"path"`
}

// S3StoreConfig points at an S3-compatible bucket.
type S3StoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Key       string `yaml:"key"`
}

// JournalConfig defines the optional SQLite task journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the admin HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}

// Defaults returns a Config with the values the manager uses when nothing
// else is configured.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "meshmgr",
			LogLevel:  "info",
			LogFormat: "json",
			LockPath:  "./data/meshmgr.lock",
		},
		Mesh: MeshConfig{
			ServerURL:    "https://sequencer-v2.heurist.xyz",
			AuthToken:    "test_key",
			AgentType:    "AGENT",
			PollInterval: 2 * time.Second,
		},
		Agents: AgentsConfig{
			MetadataDenylist: []string{"EchoAgent"},
			ExecTimeout:      5 * time.Minute,
		},
		Metadata: MetadataConfig{
			Store: MetadataStoreNone,
			S3: S3StoreConfig{
				Bucket: "mesh",
				Region: "enam",
				Key:    "mesh_agents_metadata.json",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
	}
}
