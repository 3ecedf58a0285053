package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mepclicker.app/internal/persistence/save"
)

// openStore picks the save backend. The close func is always non-nil.
func openStore(kind, dataDir string) (save.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		return save.FileStore{Dir: filepath.Join(dataDir, "saves")}, func() {}, nil
	case "zst", "zstd":
		return save.FileStore{Dir: filepath.Join(dataDir, "saves"), Compress: true}, func() {}, nil
	case "sqlite":
		s, err := save.OpenSQLite(filepath.Join(dataDir, "saves", "saves.sqlite"))
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported store: %s", kind)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
