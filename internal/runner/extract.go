package runner

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/watchit/internal/pattern"
	"github.com/mattjoyce/watchit/internal/watch"
)

// ExtractFailures matches output against p. Matches without a path group or
// an integer line group are skipped. Relative paths are joined to dir.
func ExtractFailures(p *pattern.Pattern, dir, output string) ([]Failure, error) {
	matches, err := p.FindAll(output)
	if err != nil {
		return nil, err
	}

	var failures []Failure
	for _, m := range matches {
		path, ok := m.Named(watch.GroupPath)
		if !ok || path == "" {
			continue
		}
		lineText, ok := m.Named(watch.GroupLine)
		if !ok {
			continue
		}
		line, err := strconv.Atoi(strings.TrimSpace(lineText))
		if err != nil {
			continue
		}

		f := Failure{Path: absPath(dir, path), Line: line}
		if msg, ok := m.Named(watch.GroupMessage); ok {
			f.Message = strings.TrimSpace(msg)
		}
		if colText, ok := m.Named(watch.GroupColumn); ok {
			if col, err := strconv.Atoi(strings.TrimSpace(colText)); err == nil {
				f.Column = col
			}
		}
		failures = append(failures, f)
	}
	return failures, nil
}

func absPath(dir, path string) string {
	path = strings.TrimSpace(path)
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
