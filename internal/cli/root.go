// Package cli is the outliner command line: document inspection,
// conversion and export, plus maintenance of the local autosave cache.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/config"
	"github.com/pstuifzand/section-outliner/internal/legacy"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/storage"
	"github.com/pstuifzand/section-outliner/internal/transport/httpapi"
)

type App struct {
	ConfigPath   string
	CacheDir     string
	CacheBackend string
	BackupDir    string
	BaseURL      string
	Token        string
	Overrides    []string

	cfg    *config.Config
	logger *log.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "outliner",
		Short:        "Inspect, convert and sync section outline documents",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Print the section tree of a document
  outliner show notes.json

  # Convert a legacy or indented text outline, keeping a backup of the target
  outliner convert old.json notes.json

  # Retry saves that were queued while offline
  outliner flush
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("OUTLINER_CONFIG", ""), "Path to config.toml (default: ~/.config/section-outliner/config.toml)")
	cmd.PersistentFlags().StringVar(&app.CacheDir, "cache-dir", envOr("OUTLINER_CACHE_DIR", ""), "Directory of the local autosave cache")
	cmd.PersistentFlags().StringVar(&app.CacheBackend, "cache-backend", "", "Cache backend (file|sqlite)")
	cmd.PersistentFlags().StringVar(&app.BackupDir, "backup-dir", envOr("OUTLINER_BACKUP_DIR", ""), "Directory for backups of overwritten documents")
	cmd.PersistentFlags().StringVar(&app.BaseURL, "remote", envOr("OUTLINER_REMOTE", ""), "Base URL of the document service")
	cmd.PersistentFlags().StringVar(&app.Token, "token", envOr("OUTLINER_TOKEN", ""), "Bearer token for the document service")
	cmd.PersistentFlags().StringArrayVar(&app.Overrides, "set", nil, "Override a setting for this run (key=value, repeatable)")

	cmd.AddCommand(newValidateCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newSnapshotCmd(app))
	cmd.AddCommand(newFindCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newConvertCmd(app))
	cmd.AddCommand(newOpCmd(app))
	cmd.AddCommand(newDiffCmd(app))
	cmd.AddCommand(newGenerateCmd(app))
	cmd.AddCommand(newDraftsCmd(app))
	cmd.AddCommand(newFlushCmd(app))
	cmd.AddCommand(newPullCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

func (app *App) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if app.ConfigPath != "" {
		cfg, err = config.LoadFromFile(app.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// flags win over the file
	if app.CacheBackend != "" {
		cfg.Cache.Backend = app.CacheBackend
	}
	if app.CacheDir != "" {
		cfg.Cache.Dir = app.CacheDir
	}
	if app.BaseURL != "" {
		cfg.Remote.BaseURL = app.BaseURL
	}
	if app.Token != "" {
		cfg.Remote.Token = app.Token
	}
	app.cfg = cfg
	if app.logger == nil {
		app.logger = log.Default()
	}
	return app.applySessionSettings()
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

// loadDocument reads a document file. Indented text outlines (.txt) and the
// legacy block layout are converted on the fly.
func loadDocument(path string) (*model.Document, error) {
	conv := legacy.NewConverter()
	if legacy.DetectFormat(path) == legacy.FormatIndented {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return conv.ParseIndented(string(data))
	}
	store := storage.NewJSONStore(path).WithConverter(conv)
	if !store.FileExists() {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return store.Load()
}

// saveDocument writes doc to path after backing up what was there
func (app *App) saveDocument(cmd *cobra.Command, path string, doc *model.Document) error {
	bm, err := storage.NewBackupManager(app.BackupDir)
	if err != nil {
		return err
	}
	backup, err := bm.BackupFile(path, storage.NewSessionID(), legacy.NewConverter())
	if err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	if backup != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Backup: %s\n", backup)
	}
	return storage.NewJSONStore(path).Save(doc)
}

func (app *App) openCache(ctx context.Context) (storage.Cache, error) {
	dir := app.cfg.Cache.Dir
	if dir == "" {
		dir = storage.DefaultCacheDir()
	}
	return storage.OpenCache(ctx, app.cfg.Cache.Backend, dir)
}

func (app *App) client() (*httpapi.Client, error) {
	if app.cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("no document service configured (set [remote] base_url or --remote)")
	}
	return httpapi.NewClient(app.cfg.Remote.BaseURL, app.cfg.Remote.Token), nil
}
