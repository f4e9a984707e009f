package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeBundle(t *testing.T, dir, name, manifest string) {
	t.Helper()
	bundle := filepath.Join(dir, name)
	if err := os.MkdirAll(bundle, 0o755); err != nil {
		t.Fatalf("mkdir bundle: %v", err)
	}
	if manifest == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(bundle, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadDirCollectsValidManifests(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "bars", `{"id":"com.example.bars","name":"Bars","category":"analyzer"}`)
	writeBundle(t, dir, "scope", `{"id":"com.example.scope","name":"Scope","category":"scope"}`)
	writeBundle(t, dir, "empty", "") // bundle without a manifest
	// a stray file at the top level is ignored
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	manifests, err := LoadDir(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d: %+v", len(manifests), manifests)
	}
	for _, m := range manifests {
		if m.SourceFile == "" {
			t.Fatalf("expected source_file to be filled for %s", m.ID)
		}
	}
}

func TestLoadDirSkipsInvalidManifests(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "good", `{"id":"com.example.good","name":"Good"}`)
	writeBundle(t, dir, "no_dot_id", `{"id":"plainid","name":"Bad"}`)
	writeBundle(t, dir, "no_name", `{"id":"com.example.noname"}`)
	writeBundle(t, dir, "garbage", `{not json`)

	manifests, err := LoadDir(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(manifests) != 1 || manifests[0].ID != "com.example.good" {
		t.Fatalf("unexpected manifests: %+v", manifests)
	}
}

func TestLoadDirSkipsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "a", `{"id":"com.example.same","name":"A"}`)
	writeBundle(t, dir, "b", `{"id":"com.example.same","name":"B"}`)

	manifests, err := LoadDir(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected duplicate to be skipped, got %d", len(manifests))
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope"), zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
