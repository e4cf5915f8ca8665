package config

import (
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.ManifestFile = "/data/manifest.txt"
	cfg.Taxonomy.Classifier = "/data/classifier.qza"
	cfg.Concurrency = 3

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ManifestFile != cfg.ManifestFile {
		t.Errorf("manifest mismatch: got %q, want %q", loaded.ManifestFile, cfg.ManifestFile)
	}
	if loaded.Taxonomy.Classifier != cfg.Taxonomy.Classifier {
		t.Errorf("classifier mismatch: got %q, want %q", loaded.Taxonomy.Classifier, cfg.Taxonomy.Classifier)
	}
	if loaded.Concurrency != 3 {
		t.Errorf("concurrency mismatch: got %d, want 3", loaded.Concurrency)
	}
}
