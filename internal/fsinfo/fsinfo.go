// Package fsinfo reports which kind of filesystem holds a path.
package fsinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkTypes = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// Info describes the filesystem holding a path.
type Info struct {
	// Path is the existing ancestor that was inspected.
	Path string
	Type string
}

// Network reports whether Type is a network mount.
func (i Info) Network() bool {
	return networkTypes[strings.ToLower(strings.TrimSpace(i.Type))]
}

// Lookup inspects the filesystem holding path. Components of path that do
// not exist yet are allowed; the nearest existing ancestor is inspected.
func Lookup(path string) (Info, error) {
	return lookup(path, statfsType)
}

func lookup(path string, detect func(string) (string, error)) (Info, error) {
	if path == "" {
		return Info{}, errors.New("path is empty")
	}
	existing, err := nearestExisting(path)
	if err != nil {
		return Info{}, err
	}
	fsType, err := detect(existing)
	if err != nil {
		return Info{}, fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	return Info{Path: existing, Type: fsType}, nil
}

func nearestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing ancestor of %q", abs)
		}
		candidate = parent
	}
}
