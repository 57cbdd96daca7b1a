// Package doctor reports configuration problems that Validate lets through
// but that usually mean a misconfigured deployment.
package doctor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/config"
)

const minPollInterval = 500 * time.Millisecond

// defaultAuthToken is the development token baked into the defaults.
const defaultAuthToken = "test_key"

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// TableSource builds the agent registration table.
type TableSource interface {
	Table() (*agent.Table, error)
}

// Doctor checks a loaded config against the agents it would run.
type Doctor struct {
	cfg    *config.Config
	agents TableSource
}

func New(cfg *config.Config, agents TableSource) *Doctor {
	return &Doctor{cfg: cfg, agents: agents}
}

// Validate runs all checks.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.checkMesh(r)
	d.checkAgents(r)
	d.checkMetadata(r)
	d.checkAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (r *Result) addError(category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (r *Result) addWarning(category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) checkMesh(r *Result) {
	m := d.cfg.Mesh
	u, err := url.Parse(m.ServerURL)
	switch {
	case err != nil || u.Host == "":
		r.addError("mesh", "mesh.server_url", fmt.Sprintf("%q is not a usable URL", m.ServerURL))
	case u.Scheme == "http" && !isLoopback(u.Hostname()):
		r.addWarning("mesh", "mesh.server_url", "auth token is sent in clear text over http")
	}
	if m.AuthToken == defaultAuthToken {
		r.addWarning("mesh", "mesh.auth_token", "using the default development token")
	}
	if m.PollInterval < minPollInterval {
		r.addWarning("mesh", "mesh.poll_interval",
			fmt.Sprintf("%s is very short; an idle server will see constant re-polls", m.PollInterval))
	}
}

func (d *Doctor) checkAgents(r *Result) {
	tbl, err := d.agents.Table()
	if err != nil {
		r.addError("agents", "agents.plugin_dirs", err.Error())
		return
	}
	ids := tbl.IDs()

	for _, id := range d.cfg.Agents.Disabled {
		if !slices.Contains(ids, id) {
			r.addWarning("agents", "agents.disabled", fmt.Sprintf("%q does not match any agent", id))
		}
	}
	for _, entry := range d.cfg.Agents.MetadataDenylist {
		if entry == "" {
			continue
		}
		matched := slices.ContainsFunc(ids, func(id string) bool { return strings.Contains(id, entry) })
		if !matched {
			r.addWarning("agents", "agents.metadata_denylist", fmt.Sprintf("%q does not match any agent", entry))
		}
	}

	runnable := 0
	for _, id := range ids {
		if !slices.Contains(d.cfg.Agents.Disabled, id) {
			runnable++
		}
	}
	if runnable == 0 {
		r.addError("agents", "", "no agents left to run")
	}
}

func (d *Doctor) checkMetadata(r *Result) {
	md := d.cfg.Metadata
	switch md.Store {
	case config.MetadataStoreS3:
		if md.S3.Endpoint == "" {
			r.addWarning("metadata", "metadata.s3.endpoint", "no endpoint set; AWS S3 will be used")
		}
		if md.S3.AccessKey == "" || md.S3.SecretKey == "" {
			r.addWarning("metadata", "metadata.s3", "no static credentials; the default AWS credential chain will be used")
		}
	case config.MetadataStoreFile:
		if md.File.Path != "" && !strings.HasSuffix(md.File.Path, ".json") {
			r.addWarning("metadata", "metadata.file.path", "metadata document is JSON; consider a .json extension")
		}
	}
}

func (d *Doctor) checkAPI(r *Result) {
	a := d.cfg.API
	if !a.Enabled {
		return
	}
	if a.Listen == "" {
		r.addError("api", "api.listen", "api.listen is required when the API is enabled")
	}
	if a.Token == "" {
		r.addWarning("api", "api.token", "API enabled without authentication")
	}
	if d.cfg.Journal.Path == "" {
		r.addWarning("api", "journal.path", "GET /tasks is unavailable without a task journal")
	}
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
