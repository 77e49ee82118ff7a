package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/export"
	"github.com/pstuifzand/section-outliner/internal/legacy"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/storage"
)

func newValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check documents against the persisted layout and tree invariants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				layout, doc, err := validateFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s, %d sections)\n", path, layout, doc.Len())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateFile(path string) (string, *model.Document, error) {
	if legacy.DetectFormat(path) == legacy.FormatIndented {
		doc, err := loadDocument(path)
		return string(legacy.FormatIndented), doc, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	layout, err := storage.DetectLayout(data)
	if err != nil {
		return "", nil, err
	}
	doc, _, err := storage.Decode(data, legacy.NewConverter())
	if err != nil {
		return "", nil, err
	}
	return layout.String(), doc, nil
}

func newShowCmd(app *App) *cobra.Command {
	var (
		withBody bool
		withIDs  bool
		visible  bool
	)

	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "Print the section tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			writeTree(cmd.OutOrStdout(), doc, withBody, withIDs, visible)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withBody, "body", false, "Include section bodies")
	cmd.Flags().BoolVar(&withIDs, "ids", false, "Include section ids")
	cmd.Flags().BoolVar(&visible, "visible", false, "Hide sections below collapsed ones")
	return cmd
}

// writeTree prints one line per section: "- " for expanded sections and
// "+ " for collapsed ones, two spaces per level
func writeTree(w io.Writer, doc *model.Document, withBody, withIDs, visible bool) {
	doc.Walk(func(s *model.Section, depth int) bool {
		indent := strings.Repeat("  ", depth-1)
		bullet := "- "
		if s.Collapsed {
			bullet = "+ "
		}
		line := indent + bullet + s.Heading.PlainText()
		if withIDs {
			line += "  [" + s.ID + "]"
		}
		fmt.Fprintln(w, line)
		if withBody {
			for _, l := range strings.Split(s.Body.PlainText(), "\n") {
				if strings.TrimSpace(l) != "" {
					fmt.Fprintln(w, indent+"    "+l)
				}
			}
		}
		return !visible || !s.Collapsed
	})
}

func newSnapshotCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot <file>",
		Short: "Print the structure snapshot that a save would send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			nodes := model.StructureSnapshot(doc)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(nodes)
			}
			return model.WriteStructureText(cmd.OutOrStdout(), nodes)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func newFindCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "find <file> <query>",
		Short: "Fuzzy search section headings",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			matches := model.FindSections(doc, strings.Join(args[1:], " "))
			if len(matches) == 0 {
				return writeErr(cmd, errors.New("no matching sections"))
			}
			if limit > 0 && len(matches) > limit {
				matches = matches[:limit]
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s  [%s]\n", formatPosition(m.Position), m.Heading, m.SectionID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results (0 for all)")
	return cmd
}

// formatPosition renders a position one-based, e.g. 1.3.2
func formatPosition(pos model.Position) string {
	parts := make([]string, len(pos))
	for i, p := range pos {
		parts[i] = fmt.Sprint(p + 1)
	}
	return strings.Join(parts, ".")
}

func newExportCmd(app *App) *cobra.Command {
	var (
		output string
		style  string
	)

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export a document as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("style") {
				if v := app.cfg.Get(settingExportStyle); v != "" {
					style = v
				}
			}
			st, err := export.ParseStyle(style)
			if err != nil {
				return writeErr(cmd, err)
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if output == "" || output == "-" {
				return export.WriteMarkdown(cmd.OutOrStdout(), doc, st)
			}
			if err := export.ExportToMarkdown(doc, output, st); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to: %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&style, "style", "headings", "Markdown style (headings|bullets)")
	return cmd
}
