package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/outline"
)

func newConvertCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input> <output.json>",
		Short: "Convert a legacy or indented text outline to the section layout",
		Long: `Reads a document in the legacy block layout, an indented text outline
(.txt) or the section layout, and writes it in the section layout. An existing
output file is backed up first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.saveDocument(cmd, args[1], doc); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s (%d sections)\n", args[0], args[1], doc.Len())
			return nil
		},
	}
}

// applyOperation runs the named engine command
func applyOperation(e *outline.Engine, name, id string, offset int) (outline.Result, error) {
	switch name {
	case "indent":
		return e.Indent(id), nil
	case "outdent":
		return e.Outdent(id), nil
	case "up":
		return e.MoveUp(id), nil
	case "down":
		return e.MoveDown(id), nil
	case "delete":
		return e.Delete(id), nil
	case "merge":
		return e.MergeBackward(id), nil
	case "insert":
		return e.InsertAfter(id), nil
	case "split":
		return e.Split(id, outline.Caret{InHeading: true, Offset: offset}), nil
	case "toggle":
		return e.ToggleCollapsed(id, outline.ScopeSelf), nil
	case "fold":
		return e.ToggleCollapsed(id, outline.ScopeCollapseParentSubtree), nil
	case "unfold":
		return e.ToggleCollapsed(id, outline.ScopeExpandSubtree), nil
	}
	return outline.Result{}, fmt.Errorf("unknown operation %q", name)
}

func newOpCmd(app *App) *cobra.Command {
	var offset int

	cmd := &cobra.Command{
		Use:   "op <file> <indent|outdent|up|down|delete|merge|insert|split|toggle|fold|unfold> <section-id>",
		Short: "Apply one structural command to a document file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, name, id := args[0], args[1], args[2]
			doc, err := loadDocument(path)
			if err != nil {
				return writeErr(cmd, err)
			}

			r, err := applyOperation(outline.NewEngine(doc), name, id, offset)
			if err != nil {
				return writeErr(cmd, err)
			}
			if !r.Applied {
				return writeErr(cmd, fmt.Errorf("%s %s: %s", name, id, r.Reason))
			}
			if err := app.saveDocument(cmd, path, doc); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: cursor on %s\n", name, id, r.Cursor.SectionID)
			for _, removed := range r.Removed {
				fmt.Fprintf(cmd.OutOrStdout(), "  removed %s\n", removed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&offset, "offset", 0, "Heading caret offset for split")
	return cmd
}

func newGenerateCmd(app *App) *cobra.Command {
	var (
		numSections int
		depth       int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a large test document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if numSections < 1 {
				return writeErr(cmd, fmt.Errorf("sections must be at least 1"))
			}
			if depth < 1 || depth > model.MaxDepth {
				return writeErr(cmd, fmt.Errorf("depth must be between 1 and %d", model.MaxDepth))
			}

			doc := generateDocument(numSections, depth)

			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return writeErr(cmd, fmt.Errorf("failed to create directory: %w", err))
				}
			}
			if err := app.saveDocument(cmd, output, doc); err != nil {
				return writeErr(cmd, err)
			}

			info, err := os.Stat(output)
			if err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated document with %d sections\n", doc.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "Saved to: %s\n", output)
			fmt.Fprintf(cmd.OutOrStdout(), "File size: %.2f MB\n", float64(info.Size())/(1024*1024))
			return nil
		},
	}

	cmd.Flags().IntVar(&numSections, "sections", 1000, "Number of sections to generate")
	cmd.Flags().IntVar(&depth, "depth", 3, "Maximum nesting depth")
	cmd.Flags().StringVarP(&output, "output", "o", "large_test.json", "Output file path")
	return cmd
}

// generateDocument builds a balanced tree of exactly total sections
func generateDocument(total, maxDepth int) *model.Document {
	doc := model.NewDocumentFrom()
	remaining := total
	for remaining > 0 {
		generateSection(doc, "", &remaining, 1, maxDepth)
	}
	return doc
}

func generateSection(doc *model.Document, parentID string, remaining *int, depth, maxDepth int) {
	if *remaining <= 0 {
		return
	}
	index := doc.Len()
	s := model.NewSection(
		model.Text(generateHeading(index)),
		model.Paragraphs(generateDescription(index)),
	)
	doc.Insert(s, parentID, len(doc.Children(parentID)))
	*remaining--

	// Add children if we haven't reached max depth and still have sections left
	if depth < maxDepth && *remaining > 0 {
		n := getChildCount(*remaining, maxDepth-depth)
		for i := 0; i < n && *remaining > 0; i++ {
			generateSection(doc, s.ID, remaining, depth+1, maxDepth)
		}
	}
}

func getChildCount(remaining int, depthLeft int) int {
	// Distribute sections across children based on what is left
	if depthLeft == 1 {
		if remaining > 10 {
			return 5
		}
		return max(remaining/2, 1)
	}
	if remaining > 50 {
		return 3
	}
	return 2
}

func generateHeading(index int) string {
	categories := []string{
		"Introduction", "Background", "Method", "Results", "Discussion",
		"Appendix", "Notes", "Summary", "Overview", "Details",
	}
	return fmt.Sprintf("%s %d", categories[index%len(categories)], index+1)
}

func generateDescription(index int) string {
	descriptions := []string{
		"Core functionality",
		"Performance improvement",
		"Data validation",
		"Error handling",
		"Caching layer",
		"Configuration",
		"Monitoring",
	}
	return descriptions[index%len(descriptions)]
}
