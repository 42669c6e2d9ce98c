package config

import "github.com/mattjoyce/watchit/internal/watch"

// WatchReport is the validity of one watch.
type WatchReport struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Validity watch.Validity `json:"validity"`
	Preset   string         `json:"preset,omitempty"`
}

// Report is the result of Check.
type Report struct {
	Path    string        `json:"path"`
	Files   []string      `json:"files"`
	Watches []WatchReport `json:"watches"`
}

// OK reports whether every watch is valid.
func (r Report) OK() bool {
	for _, w := range r.Watches {
		if !w.Validity.OK() {
			return false
		}
	}
	return true
}

// Check validates every watch in cfg. Presets are matched by content, so a
// watch that spells out a preset's fields is reported against it.
func Check(cfg *Config) Report {
	r := Report{Path: cfg.Path, Files: cfg.Files}
	for _, w := range cfg.Watches {
		wr := WatchReport{ID: w.ID, Name: w.Label(), Validity: watch.Validate(w)}
		if p, ok := watch.PresetFor(w, cfg.Presets); ok {
			wr.Preset = p.ID
		}
		r.Watches = append(r.Watches, wr)
	}
	return r
}
