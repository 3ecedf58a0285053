package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"mepclicker.app/internal/sim/catalogs"
	"mepclicker.app/internal/sim/tuning"
)

func main() {
	var (
		savePath   = flag.String("save", "", "path to a save file (.json or .json.zst)")
		sqlitePath = flag.String("sqlite", "", "path to a sqlite save store (instead of -save)")
		key        = flag.String("key", "", "save key for -sqlite (default: tuning save_key)")
		auditDir   = flag.String("audit", "", "audit dir containing audit-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tail       = flag.Int("tail", 10, "print the last N audit entries")
		archives   = flag.String("archives", "", "data dir whose rebirth archives to list (optional)")
	)
	flag.Parse()

	if *savePath == "" && *sqlitePath == "" && *auditDir == "" && *archives == "" {
		fmt.Fprintln(os.Stderr, "missing -save, -sqlite, -audit or -archives")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		tune = tuning.Defaults()
	}
	if *key == "" {
		*key = tune.SaveKey
	}

	if *savePath != "" || *sqlitePath != "" {
		blob, err := loadBlob(*savePath, *sqlitePath, *key)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read save:", err)
			os.Exit(1)
		}
		if err := summarizeSave(os.Stdout, blob, cats, tune); err != nil {
			fmt.Fprintln(os.Stderr, "decode save:", err)
			os.Exit(1)
		}
	}

	if *auditDir != "" {
		if err := summarizeAudit(os.Stdout, *auditDir, *tail); err != nil {
			fmt.Fprintln(os.Stderr, "read audit:", err)
			os.Exit(1)
		}
	}

	if *archives != "" {
		if err := summarizeArchives(os.Stdout, *archives); err != nil {
			fmt.Fprintln(os.Stderr, "list archives:", err)
			os.Exit(1)
		}
	}
}
