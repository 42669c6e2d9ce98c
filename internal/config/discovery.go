package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfig names the environment variable that overrides discovery.
const EnvConfig = "WATCHIT_CONFIG"

// Discover finds the config file.
// Priority: $WATCHIT_CONFIG, ~/.config/watchit/config.yaml, ./watchit.yaml.
func Discover() (string, error) {
	candidates := DiscoveryPaths()
	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: %v)", candidates)
}

// DiscoveryPaths lists the locations Discover checks, in order.
func DiscoveryPaths() []string {
	var paths []string
	if p := os.Getenv(EnvConfig); p != "" {
		paths = append(paths, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "watchit", "config.yaml"))
	}
	return append(paths, "watchit.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
