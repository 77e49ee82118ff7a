package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/pstuifzand/section-outliner/internal/cli"
	"github.com/pstuifzand/section-outliner/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if logFile, err := openLog(); err == nil {
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// openLog opens outliner.log next to the cache directory
func openLog() (*os.File, error) {
	dir := filepath.Dir(storage.DefaultCacheDir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "outliner.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
