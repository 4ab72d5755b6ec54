package sessionconfig

import (
	"path/filepath"
	"testing"

	"github.com/pqfed/transfer/pkg/pqc/kem"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := Write(&Config{}, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Suite.PQCAlg != "ML-KEM-768" {
		t.Fatalf("expected default suite, got %q", cfg.Suite.PQCAlg)
	}
	if cfg.Stream.ChunkSizeBytes != 4*1024*1024 {
		t.Fatalf("expected default chunk size, got %d", cfg.Stream.ChunkSizeBytes)
	}
	if cfg.Keystore.Directory != "./keystore" {
		t.Fatalf("expected default keystore dir, got %q", cfg.Keystore.Directory)
	}
}

func TestLoadRejectsUnknownSuite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := Write(&Config{Suite: SuiteConfig{PQCAlg: "ML-KEM-2048"}}, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error loading config with unknown suite")
	}
}

func TestAlgResolvesEachSuite(t *testing.T) {
	cases := map[string]kem.Alg{
		"ML-KEM-512":  kem.K512,
		"ML-KEM-768":  kem.K768,
		"ML-KEM-1024": kem.K1024,
	}
	for name, want := range cases {
		cfg := &Config{Suite: SuiteConfig{PQCAlg: name}}
		got, err := cfg.Alg()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestWriteThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := Default()
	cfg.Suite.PQCAlg = "ML-KEM-1024"
	cfg.Stream.ChunkSizeBytes = 32 * 1024
	if err := Write(cfg, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Suite.PQCAlg != "ML-KEM-1024" || loaded.Stream.ChunkSizeBytes != 32*1024 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}
