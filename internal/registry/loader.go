package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"vizbridged/internal/common/fsutil"
	"vizbridged/pkg/types"
)

// LoadDir scans a plugins directory for bundle manifests without involving the
// runtime. Each immediate subdirectory holding a manifest.json contributes one
// manifest; the runtime's own scan stays authoritative, this prescan exists so
// the daemon can report installed plugins before (or without) a live runtime.
// Invalid manifests are skipped with a warning, never fatal.
func LoadDir(dir string, log zerolog.Logger) ([]types.Manifest, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var manifests []types.Manifest
	seen := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(abs, e.Name(), "manifest.json")
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Str("path", path).Err(err).Msg("unreadable manifest skipped")
			}
			continue
		}
		var m types.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("malformed manifest skipped")
			continue
		}
		if err := m.Validate(); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("invalid manifest skipped")
			continue
		}
		if _, dup := seen[m.ID]; dup {
			log.Warn().Str("id", m.ID).Str("path", path).Msg("duplicate manifest id skipped")
			continue
		}
		seen[m.ID] = struct{}{}
		if m.SourceFile == "" {
			m.SourceFile = path
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
