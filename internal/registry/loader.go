// Package registry discovers model weight files on disk and turns them
// into model configs ready for the config store.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heyross/InvokeAI/internal/common/fsutil"
	"github.com/heyross/InvokeAI/pkg/types"
)

// weight file extensions recognized by the scanner
var weightExts = map[string]string{
	".safetensors": "safetensors",
	".ckpt":        "checkpoint",
	".pt":          "checkpoint",
	".bin":         "checkpoint",
	".gguf":        "gguf",
}

// ScanDir scans a directory for known weight files and builds configs
// from filenames. The key is "<base>/<type>/<name>"; base and type
// default to "unknown" and "main" since filenames carry neither.
func ScanDir(dir string) (map[string]types.ModelConfig, error) {
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
	out := make(map[string]types.ModelConfig)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		format, ok := weightExts[strings.ToLower(filepath.Ext(name))]
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		key := "unknown/main/" + stem
		out[key] = types.ModelConfig{
			Path:        filepath.Join(abs, name),
			Name:        stem,
			BaseModel:   "unknown",
			ModelType:   "main",
			ModelFormat: format,
		}
	}
	return out, nil
}
