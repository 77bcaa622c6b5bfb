package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	raw := `
slice:
  name: myslice
  statePath: /var/lib/slicenet/state.yaml
  defaultVLAN: "200"
  listenAddr: ":9090"
`
	path := filepath.Join(t.TempDir(), "slicenet.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slice.Name != "myslice" {
		t.Errorf("Name = %q", cfg.Slice.Name)
	}
	if cfg.Slice.DefaultVLAN != "200" {
		t.Errorf("DefaultVLAN = %q", cfg.Slice.DefaultVLAN)
	}
	if cfg.Slice.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.Slice.ListenAddr)
	}
}

func TestDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slicenet.yaml")
	if err := os.WriteFile(path, []byte("slice:\n  name: s\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Slice.DefaultVLAN != "100" {
		t.Errorf("DefaultVLAN = %q, want 100", cfg.Slice.DefaultVLAN)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}
