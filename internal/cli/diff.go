package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/diff"
	"github.com/pstuifzand/section-outliner/internal/dirty"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/storage"
)

func newDiffCmd(app *App) *cobra.Command {
	var (
		verbose bool
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "diff <file> [<file2>]",
		Short: "Show section changes between two documents or across a file's backups",
		Long: `Compares documents section by section.

Single-file mode: shows changes across all backups of that file, ending with
the current file.
Two-file mode: shows changes between two specific files.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 2 {
				return runTwoFileDiff(w, args[0], args[1], verbose, summary)
			}
			return app.runHistoryDiff(w, args[0], verbose, summary)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (show full details)")
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "Summary only (counts without section details)")
	return cmd
}

func runTwoFileDiff(w io.Writer, path1, path2 string, verbose, summary bool) error {
	doc1, err := loadDocument(path1)
	if err != nil {
		return err
	}
	doc2, err := loadDocument(path2)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "=== Outline Diff: %s → %s ===\n\n", path1, path2)
	return writeDiff(w, doc1, doc2, verbose, summary)
}

// runHistoryDiff walks the backups of path oldest first and compares each
// with the next, the last one with the current file
func (app *App) runHistoryDiff(w io.Writer, path string, verbose, summary bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	bm, err := storage.NewBackupManager(app.BackupDir)
	if err != nil {
		return err
	}
	backups, err := bm.FindBackupsForFile(absPath)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Fprintf(w, "No backups found for %s\n", path)
		return nil
	}

	type version struct {
		label string
		doc   *model.Document
	}
	var versions []version
	for _, b := range backups {
		doc, _, err := storage.LoadBackup(b.FilePath)
		if err != nil {
			fmt.Fprintf(w, "Skipping %s: %v\n", filepath.Base(b.FilePath), err)
			continue
		}
		versions = append(versions, version{
			label: b.Timestamp.Format("2006-01-02 15:04:05") + " (" + b.SessionID + ")",
			doc:   doc,
		})
	}
	if current, err := loadDocument(path); err == nil {
		versions = append(versions, version{label: "current", doc: current})
	}

	for i := 1; i < len(versions); i++ {
		fmt.Fprintf(w, "=== %s → %s ===\n\n", versions[i-1].label, versions[i].label)
		if err := writeDiff(w, versions[i-1].doc, versions[i].doc, verbose, summary); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeDiff(w io.Writer, doc1, doc2 *model.Document, verbose, summary bool) error {
	result := diff.ComputeDiff(doc1, doc2, dirty.Fingerprint)
	if result.Empty() {
		_, err := fmt.Fprintln(w, "No changes detected")
		return err
	}
	if summary {
		_, err := fmt.Fprintf(w, "  %d modified, %d added, %d deleted\n",
			len(result.ModifiedSections), len(result.NewSections), len(result.DeletedSections))
		return err
	}
	return diff.WriteLines(w, diff.BuildDiffLines(result, verbose))
}
