package storage

import (
	"fmt"

	"github.com/mattjoyce/watchit/internal/fsinfo"
)

// ValidateLocalFilesystem rejects database paths on network mounts, where
// SQLite locking is unreliable.
func ValidateLocalFilesystem(path string) error {
	return checkLocal(path, fsinfo.Lookup)
}

func checkLocal(path string, lookup func(string) (fsinfo.Info, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	info, err := lookup(path)
	if err != nil {
		return fmt.Errorf("check database filesystem: %w", err)
	}
	if info.Network() {
		return fmt.Errorf("history database %q is on network filesystem %q; "+
			"set history.path to a local file or disable history", path, info.Type)
	}
	return nil
}
