//go:build !darwin && !linux

package fsinfo

// statfsType cannot tell on this platform.
func statfsType(string) (string, error) {
	return "unknown", nil
}
