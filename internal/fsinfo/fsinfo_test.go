package fsinfo

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLookupUsesNearestExistingAncestor(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "state", "watchit", "history.db")

	var inspected string
	info, err := lookup(missing, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if inspected != root || info.Path != root {
		t.Fatalf("inspected %q (info %q), want %q", inspected, info.Path, root)
	}
	if info.Network() {
		t.Error("ext4 reported as network")
	}
}

func TestLookupErrors(t *testing.T) {
	if _, err := lookup("", func(string) (string, error) { return "ext4", nil }); err == nil {
		t.Error("empty path accepted")
	}
	boom := errors.New("boom")
	_, err := lookup(t.TempDir(), func(string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped detector error", err)
	}
}

func TestLookupRealPath(t *testing.T) {
	info, err := Lookup(t.TempDir())
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if info.Type == "" {
		t.Error("empty filesystem type")
	}
}

func TestInfoNetwork(t *testing.T) {
	cases := map[string]bool{
		"nfs":    true,
		" cifs ": true,
		"SMBFS":  true,
		"webdav": true,
		"ext4":   false,
		"apfs":   false,
		"0xef53": false,
		"":       false,
	}
	for fsType, want := range cases {
		if got := (Info{Type: fsType}).Network(); got != want {
			t.Errorf("Info{Type: %q}.Network() = %v, want %v", fsType, got, want)
		}
	}
}
