package config

import "github.com/mattjoyce/watchit/internal/watch"

// BuiltinPresets are always available. A preset in the config file with the
// same id replaces the built-in one.
func BuiltinPresets() []watch.Preset {
	return []watch.Preset{
		{
			ID:      "go-test",
			Name:    "Go tests",
			Glob:    "**/*.go",
			Command: "go test ./...",
			Pattern: `(?:Location|Error Trace):\s+(?<path>[^:\s]+):(?<line>\d+)$\s+Error:\s+(?<message>[^\n]+)`,
		},
		{
			ID:      "go-build",
			Name:    "Go build",
			Glob:    "**/*.go",
			Command: "go build ./... && go vet ./...",
			Pattern: `^(?<path>[^\s:#][^:]*\.go):(?<line>\d+):(?:(?<column>\d+):)?\s+(?<message>.+)$`,
		},
		{
			ID:      "pytest",
			Name:    "Python pytest",
			Glob:    "**/*.py",
			Command: "pytest -q --tb=short",
			Pattern: `^(?<path>[^\s:]+\.py):(?<line>\d+):\s+(?<message>.+)$`,
		},
	}
}

// mergePresets returns the built-ins overlaid with user presets, built-ins
// first and user-only presets after them in file order.
func mergePresets(user []watch.Preset) []watch.Preset {
	out := BuiltinPresets()
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.ID] = i
	}
	for _, p := range user {
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}
