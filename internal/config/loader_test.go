package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults only",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.ServerURL != "https://sequencer-v2.heurist.xyz" {
					t.Errorf("server_url default not applied: %q", cfg.Mesh.ServerURL)
				}
				if cfg.Mesh.PollInterval != 2*time.Second {
					t.Errorf("poll_interval default not applied: %v", cfg.Mesh.PollInterval)
				}
				if cfg.Mesh.AuthToken != "test_key" {
					t.Errorf("auth_token default not applied: %q", cfg.Mesh.AuthToken)
				}
				if cfg.Metadata.Store != MetadataStoreNone {
					t.Errorf("metadata store should default to none, got %q", cfg.Metadata.Store)
				}
				if len(cfg.Agents.MetadataDenylist) != 1 || cfg.Agents.MetadataDenylist[0] != "EchoAgent" {
					t.Errorf("denylist default not applied: %v", cfg.Agents.MetadataDenylist)
				}
			},
		},
		{
			name: "yaml file",
			yaml: `
service:
  log_level: debug
mesh:
  server_url: http://localhost:9000
  poll_interval: 500ms
  submit_timeout: 10s
agents:
  plugin_dirs: [./plugins]
  disabled: [SlowAgent]
journal:
  path: ./data/journal.db
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" {
					t.Error("log_level not parsed")
				}
				if cfg.Mesh.ServerURL != "http://localhost:9000" {
					t.Error("server_url not parsed")
				}
				if cfg.Mesh.PollInterval != 500*time.Millisecond {
					t.Error("poll_interval not parsed")
				}
				if cfg.Mesh.SubmitTimeout != 10*time.Second {
					t.Error("submit_timeout not parsed")
				}
				if len(cfg.Agents.PluginDirs) != 1 || cfg.Agents.Disabled[0] != "SlowAgent" {
					t.Error("agents section not parsed")
				}
				if cfg.Journal.Path != "./data/journal.db" {
					t.Error("journal.path not parsed")
				}
				// Untouched defaults survive the file.
				if cfg.Mesh.AgentType != "AGENT" {
					t.Error("agent_type default lost")
				}
			},
		},
		{
			name: "env var interpolation in file",
			yaml: `
mesh:
  auth_token: ${MY_TOKEN}
metadata:
  store: file
  file:
    path: ${META_PATH}
`,
			env: map[string]string{"MY_TOKEN": "secret123", "META_PATH": "/tmp/meta.json"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.AuthToken != "secret123" {
					t.Errorf("auth_token = %q", cfg.Mesh.AuthToken)
				}
				if cfg.Metadata.File.Path != "/tmp/meta.json" {
					t.Errorf("metadata.file.path = %q", cfg.Metadata.File.Path)
				}
			},
		},
		{
			name: "unresolved token fails",
			yaml: `
mesh:
  auth_token: ${MISSING_TOKEN}
`,
			wantErr: true,
		},
		{
			name: "environment overrides file",
			yaml: `
mesh:
  server_url: http://file-value
  poll_interval: 10s
`,
			env: map[string]string{
				EnvServerURL:    "http://env-value",
				EnvPollInterval: "0.25",
				EnvAuthToken:    "env-token",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Mesh.ServerURL != "http://env-value" {
					t.Errorf("server_url = %q", cfg.Mesh.ServerURL)
				}
				if cfg.Mesh.PollInterval != 250*time.Millisecond {
					t.Errorf("poll_interval = %v", cfg.Mesh.PollInterval)
				}
				if cfg.Mesh.AuthToken != "env-token" {
					t.Errorf("auth_token = %q", cfg.Mesh.AuthToken)
				}
			},
		},
		{
			name: "s3 endpoint env selects s3 store",
			env: map[string]string{
				EnvS3Endpoint:  "https://s3.example.com",
				EnvS3AccessKey: "ak",
				EnvS3SecretKey: "sk",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Metadata.Store != MetadataStoreS3 {
					t.Errorf("store = %q", cfg.Metadata.Store)
				}
				if cfg.Metadata.S3.Bucket != "mesh" || cfg.Metadata.S3.Region != "enam" {
					t.Errorf("s3 defaults lost: %+v", cfg.Metadata.S3)
				}
				if cfg.Metadata.S3.AccessKey != "ak" || cfg.Metadata.S3.SecretKey != "sk" {
					t.Errorf("s3 credentials not applied: %+v", cfg.Metadata.S3)
				}
			},
		},
		{
			name:    "bad poll interval env",
			env:     map[string]string{EnvPollInterval: "soon"},
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			env:     map[string]string{EnvPollInterval: "0"},
			wantErr: true,
		},
		{
			name: "api listen env enables api",
			env:  map[string]string{EnvAPIListen: "127.0.0.1:0", EnvAPIToken: "tok"},
			checkFn: func(t *testing.T, cfg *Config) {
				if !cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:0" || cfg.API.Token != "tok" {
					t.Errorf("api = %+v", cfg.API)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}
			cfg, err := load(path, envFrom(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectoryUsesConfigYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mesh:\n  agent_type: WORKER\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(dir, envFrom(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mesh.AgentType != "WORKER" {
		t.Errorf("agent_type = %q", cfg.Mesh.AgentType)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envFrom(nil)); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.Service.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.Service.LogFormat = "xml" }},
		{"empty server", func(c *Config) { c.Mesh.ServerURL = "" }},
		{"non http server", func(c *Config) { c.Mesh.ServerURL = "ftp://x" }},
		{"negative submit timeout", func(c *Config) { c.Mesh.SubmitTimeout = -time.Second }},
		{"file store without path", func(c *Config) { c.Metadata.Store = MetadataStoreFile }},
		{"s3 store without bucket", func(c *Config) {
			c.Metadata.Store = MetadataStoreS3
			c.Metadata.S3.Bucket = ""
		}},
		{"unknown store", func(c *Config) { c.Metadata.Store = "gcs" }},
		{"api without listen", func(c *Config) {
			c.API.Enabled = true
			c.API.Listen = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
