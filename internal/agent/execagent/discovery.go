// Package execagent runs task handlers implemented as external executables.
//
// Each handler lives in its own directory with a manifest.yaml describing
// the entrypoint, protocol version and handler metadata. Directories are
// scanned once at startup. Every invocation spawns the entrypoint, writes one
// JSON request on stdin and reads one JSON response from stdout.
//
// Timeout handling:
//   - Each invocation is bounded by the manifest timeout or the configured default
//   - When the bound expires (or the task context is cancelled) SIGTERM is sent
//   - After a 5 second grace period SIGKILL is sent if the process still runs
//
// Trust checks applied at discovery:
//   - entrypoint resolves under both the plugin root and the plugin directory
//   - entrypoint is executable
//   - plugin directory is not world-writable
package execagent

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/meshmgr/internal/log"
)

// Discover scans plugin roots for manifest.yaml files and validates them.
// Invalid plugins are logged and skipped; an unreadable root is an error.
// Roots are processed in input order; duplicate names keep the first plugin.
func Discover(pluginRoots []string, logger *slog.Logger) ([]*Plugin, error) {
	logger = log.OrDiscard(logger)

	absRoots := make([]string, 0, len(pluginRoots))
	seenRoots := make(map[string]struct{}, len(pluginRoots))
	for _, root := range pluginRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin root %q: %w", root, err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("plugin root does not exist: %s", absRoot)
			}
			return nil, fmt.Errorf("failed to stat plugin root %s: %w", absRoot, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("plugin root is not a directory: %s", absRoot)
		}
		if _, ok := seenRoots[absRoot]; ok {
			continue
		}
		seenRoots[absRoot] = struct{}{}
		absRoots = append(absRoots, absRoot)
	}

	var found []*Plugin
	byName := make(map[string]*Plugin)
	for _, root := range absRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || d.Name() != manifestFilename {
				return nil
			}

			pluginPath := filepath.Dir(path)
			p, err := loadPlugin(pluginPath, root)
			if err != nil {
				logger.Warn("failed to load exec agent", "root", root, "path", pluginPath, "error", err.Error())
				return nil
			}

			if existing, ok := byName[p.Name]; ok {
				logger.Warn("duplicate exec agent ignored (keeping first discovered)",
					"agent_id", p.Name,
					"ignored_path", p.Path,
					"kept_path", existing.Path,
				)
				return nil
			}
			byName[p.Name] = p
			found = append(found, p)

			logger.Info("loaded exec agent", "agent_id", p.Name, "path", p.Path, "version", p.Version)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan plugin root %s: %w", root, err)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// loadPlugin reads and validates a single plugin directory.
func loadPlugin(pluginPath, root string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(pluginPath, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	entrypointPath := filepath.Join(pluginPath, manifest.Entrypoint)
	if err := validateTrust(entrypointPath, pluginPath, root); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	meta := manifest.Metadata
	if meta.Name == "" {
		meta.Name = manifest.Name
	}
	if meta.Version == "" {
		meta.Version = manifest.Version
	}

	return &Plugin{
		Name:       manifest.Name,
		Path:       pluginPath,
		Entrypoint: entrypointPath,
		Version:    manifest.Version,
		Timeout:    manifest.Timeout,
		Metadata:   meta,
		Tools:      manifest.Tools,
	}, nil
}

// validateTrust enforces the filesystem constraints listed in the package doc.
func validateTrust(entrypointPath, pluginPath, root string) error {
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypointPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedPluginPath, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve plugin root symlink %s: %w", root, err)
	}

	sep := string(os.PathSeparator)
	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+sep) {
		return fmt.Errorf("entrypoint %s is not under plugin root %s", resolvedEntrypoint, resolvedRoot)
	}
	if !strings.HasPrefix(resolvedEntrypoint, resolvedPluginPath+sep) {
		return fmt.Errorf("entrypoint %s is not under plugin directory %s", resolvedEntrypoint, resolvedPluginPath)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	pluginInfo, err := os.Stat(resolvedPluginPath)
	if err != nil {
		return fmt.Errorf("plugin directory not found: %w", err)
	}
	if pluginInfo.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("plugin directory is world-writable: %s", resolvedPluginPath)
	}
	return nil
}
