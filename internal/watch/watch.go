// Package watch defines the watch and preset records shared by the config
// layer, the change watcher and the runner.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/watchit/internal/glob"
	"github.com/mattjoyce/watchit/internal/pattern"
)

// OutputFlags are the flags every output pattern is compiled with.
const OutputFlags = pattern.Multiline

// Named groups read from output pattern matches.
const (
	GroupPath    = "path"
	GroupLine    = "line"
	GroupColumn  = "column"
	GroupMessage = "message"
)

// Definition is one watch. Values are snapshots: holders never mutate a
// Definition they did not create.
type Definition struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Directory string `yaml:"directory" json:"directory"`
	Glob      string `yaml:"glob,omitempty" json:"glob"`
	Command   string `yaml:"command,omitempty" json:"command"`
	Pattern   string `yaml:"pattern,omitempty" json:"pattern"`
	PresetID  string `yaml:"preset,omitempty" json:"preset,omitempty"`
}

// Preset supplies default glob, command and pattern for a watch.
type Preset struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Glob    string `yaml:"glob" json:"glob"`
	Command string `yaml:"command" json:"command"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// Label returns the name, falling back to the id.
func (d Definition) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// EmptyPreset reports whether none of the preset-backed fields are set.
func (d Definition) EmptyPreset() bool {
	return d.Glob == "" && d.Command == "" && d.Pattern == ""
}

// ApplyPreset fills the empty preset-backed fields from p.
func (d Definition) ApplyPreset(p Preset) Definition {
	if d.Glob == "" {
		d.Glob = p.Glob
	}
	if d.Command == "" {
		d.Command = p.Command
	}
	if d.Pattern == "" {
		d.Pattern = p.Pattern
	}
	if d.PresetID == "" {
		d.PresetID = p.ID
	}
	return d
}

// Matches reports whether the preset's fields equal the watch's.
func (p Preset) Matches(d Definition) bool {
	return p.Glob == d.Glob && p.Command == d.Command && p.Pattern == d.Pattern
}

// PresetFor returns the first preset whose fields equal the watch's.
func PresetFor(d Definition, presets []Preset) (Preset, bool) {
	for _, p := range presets {
		if p.Matches(d) {
			return p, true
		}
	}
	return Preset{}, false
}

// Validity holds one flag per user-editable field.
type Validity struct {
	Directory bool `json:"directory"`
	Glob      bool `json:"glob"`
	Command   bool `json:"command"`
	Pattern   bool `json:"pattern"`
}

// OK reports whether the watch may run.
func (v Validity) OK() bool {
	return v.Directory && v.Glob && v.Command && v.Pattern
}

// Problems lists the invalid fields.
func (v Validity) Problems() []string {
	var out []string
	if !v.Directory {
		out = append(out, "directory")
	}
	if !v.Glob {
		out = append(out, "glob")
	}
	if !v.Command {
		out = append(out, "command")
	}
	if !v.Pattern {
		out = append(out, "pattern")
	}
	return out
}

// Validate checks every field of d. It touches the filesystem to resolve the
// directory.
func Validate(d Definition) Validity {
	_, dirErr := ResolveDirectory(d.Directory)
	return Validity{
		Directory: dirErr == nil,
		Glob:      glob.Valid(d.Glob),
		Command:   strings.TrimSpace(d.Command) != "",
		Pattern:   d.Pattern != "" && pattern.Valid(d.Pattern, OutputFlags),
	}
}

// ErrNotDirectory is returned by ResolveDirectory for a path that exists but
// is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// ResolveDirectory expands ~, makes dir absolute, follows symlinks and checks
// that the result is a directory.
func ResolveDirectory(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("directory is empty")
	}
	expanded, err := ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("absolute path for %q: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", resolved, ErrNotDirectory)
	}
	return resolved, nil
}

// ExpandHome replaces a leading ~ or ~/ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// AbbreviateHome replaces the user's home directory prefix with ~ for display.
func AbbreviateHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~/" + rest
	}
	return path
}
