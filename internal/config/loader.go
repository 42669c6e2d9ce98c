package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/watch"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// watchIDNamespace seeds ids derived for watches that do not set one.
var watchIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/mattjoyce/watchit/watch"))

var (
	ErrWatchNotFound  = errors.New("watch not found")
	ErrPresetNotFound = errors.New("preset not found")
)

// Load reads the config file at configPath plus everything it includes,
// applies defaults, resolves presets and validates the result.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyAllConfigHashes(cfg.Files); err != nil {
		return nil, err
	}

	if err := normalize(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolveFiles returns the root config file and every file it includes
// without verifying checksums or validating the result.
func ResolveFiles(configPath string) ([]string, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.Files, nil
}

// read decodes the root file and merges its includes over the defaults.
func read(configPath string) (*Config, error) {
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
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg := Defaults()
	if err := decodeFile(absPath, cfg); err != nil {
		return nil, err
	}
	cfg.Path = absPath

	visited := map[string]bool{absPath: true}
	files := []string{absPath}
	if len(cfg.Include) > 0 {
		included, err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited)
		if err != nil {
			return nil, err
		}
		files = append(files, included...)
	}
	cfg.Files = files
	return cfg, nil
}

// decodeFile interpolates ${VAR} references and decodes path into cfg.
// Fields absent from the file keep their current values.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return nil
}

// loadIncludes loads and merges included files depth first. visited tracks
// loaded files to detect cycles.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) ([]string, error) {
	var loaded []string
	for i, includePath := range includes {
		absPath, err := resolveInclude(includePath, baseDir)
		if err != nil {
			return nil, fmt.Errorf("include[%d]: %w", i, err)
		}
		if visited[absPath] {
			return nil, fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s\n"+
				"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
		}
		visited[absPath] = true
		loaded = append(loaded, absPath)

		var included Config
		if err := decodeFile(absPath, &included); err != nil {
			return nil, fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		mergeConfig(cfg, &included)

		if len(included.Include) > 0 {
			nested, err := loadIncludes(cfg, included.Include, filepath.Dir(absPath), visited)
			if err != nil {
				return nil, err
			}
			loaded = append(loaded, nested...)
		}
	}
	return loaded, nil
}

func resolveInclude(includePath, baseDir string) (string, error) {
	includePath = interpolateEnv(includePath)
	expanded, err := watch.ExpandHome(includePath)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(baseDir, expanded)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", includePath, err)
	}
	return absPath, nil
}

// mergeConfig merges src into dst. Non-zero scalars in src win; presets and
// watches are appended.
func mergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Service.Shell != "" {
		dst.Service.Shell = src.Service.Shell
	}
	if src.Service.Debounce != 0 {
		dst.Service.Debounce = src.Service.Debounce
	}
	if src.Service.MatchTimeout != 0 {
		dst.Service.MatchTimeout = src.Service.MatchTimeout
	}
	if len(src.Service.IgnoreDirs) > 0 {
		dst.Service.IgnoreDirs = src.Service.IgnoreDirs
	}
	if src.History.Path != "" {
		dst.History.Path = src.History.Path
	}
	if src.History.Retention != 0 {
		dst.History.Retention = src.History.Retention
	}
	if src.API.Enabled {
		dst.API.Enabled = true
	}
	if src.API.Listen != "" {
		dst.API.Listen = src.API.Listen
	}
	if len(src.API.CORSOrigins) > 0 {
		dst.API.CORSOrigins = src.API.CORSOrigins
	}
	dst.Presets = append(dst.Presets, src.Presets...)
	dst.Watches = append(dst.Watches, src.Watches...)
}

// normalize fills derived fields: merged presets, watch ids, preset values
// and expanded paths.
func normalize(cfg *Config) error {
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.Shell == "" {
		cfg.Service.Shell = defaultShell()
	}

	if cfg.History.Path != "" {
		p, err := watch.ExpandHome(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("history.path: %w", err)
		}
		cfg.History.Path = p
	}

	if err := checkDuplicatePresets(cfg.Presets); err != nil {
		return err
	}
	cfg.Presets = mergePresets(cfg.Presets)

	for i, w := range cfg.Watches {
		if w.ID == "" {
			w.ID = DeriveWatchID(w.Name, w.Directory)
		}
		if w.PresetID != "" {
			p, ok := cfg.Preset(w.PresetID)
			if !ok {
				return fmt.Errorf("watches[%d] (%s): %w: %q", i, w.Label(), ErrPresetNotFound, w.PresetID)
			}
			w = w.ApplyPreset(p)
		}
		cfg.Watches[i] = w
	}
	return nil
}

// DeriveWatchID returns a stable id for a watch without one, so reloading
// the same file keeps ids.
func DeriveWatchID(name, directory string) string {
	return uuid.NewSHA1(watchIDNamespace, []byte(name+"\x00"+directory)).String()
}

func checkDuplicatePresets(presets []watch.Preset) error {
	seen := make(map[string]bool, len(presets))
	for i, p := range presets {
		if p.ID == "" {
			return fmt.Errorf("presets[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("presets[%d]: duplicate preset id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// validate checks structural problems. Watch fields that fail validity
// checks (missing directory, bad glob or pattern) are not errors here: they
// are reported per watch by Check and skipped by the watcher.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.Debounce < 0 {
		return fmt.Errorf("service.debounce must not be negative")
	}
	if cfg.Service.MatchTimeout < 0 {
		return fmt.Errorf("service.match_timeout must not be negative")
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required when the API is enabled")
	}

	seen := make(map[string]int, len(cfg.Watches))
	for i, w := range cfg.Watches {
		if prev, ok := seen[w.ID]; ok {
			return fmt.Errorf("watches[%d]: duplicate watch id %q (also watches[%d])", i, w.ID, prev)
		}
		seen[w.ID] = i

		if m := envVarPattern.FindStringSubmatch(w.Command); m != nil {
			return fmt.Errorf("watches[%d] (%s): environment variable ${%s} is not set", i, w.Label(), m[1])
		}
		if m := envVarPattern.FindStringSubmatch(w.Directory); m != nil {
			return fmt.Errorf("watches[%d] (%s): environment variable ${%s} is not set", i, w.Label(), m[1])
		}
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

func verifyAllConfigHashes(paths []string) error {
	dirToFiles := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		dirToFiles[dir] = append(dirToFiles[dir], path)
	}

	for dir, files := range dirToFiles {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			// No manifest in this directory: nothing to verify.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}

		for _, path := range files {
			basename := filepath.Base(path)
			expectedHash, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: watchit config lock", basename, dir)
			}
			if err := VerifyFileHash(path, expectedHash); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: watchit config lock", path, err)
			}
			log.Debug("config file verified", "path", path)
		}
	}
	return nil
}
