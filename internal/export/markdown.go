package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// Style selects how sections are written
type Style int

const (
	// StyleHeadings writes each section as a markdown heading of its depth
	// followed by its body
	StyleHeadings Style = iota
	// StyleBullets writes only the headings, as a nested bullet list
	StyleBullets
)

// ParseStyle maps a style name to a Style
func ParseStyle(name string) (Style, error) {
	switch name {
	case "", "headings":
		return StyleHeadings, nil
	case "bullets":
		return StyleBullets, nil
	}
	return 0, fmt.Errorf("unknown markdown style %q", name)
}

// ExportToMarkdown exports a document to a markdown file
func ExportToMarkdown(doc *model.Document, filePath string, style Style) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create markdown file: %w", err)
	}
	if err := WriteMarkdown(f, doc, style); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}
	return nil
}

// WriteMarkdown writes a document as markdown
func WriteMarkdown(w io.Writer, doc *model.Document, style Style) error {
	bw := bufio.NewWriter(w)
	var sb strings.Builder
	for _, id := range doc.Roots() {
		if style == StyleBullets {
			writeBullet(&sb, doc, id, 0)
		} else {
			writeSection(&sb, doc, id, 1)
		}
	}
	if _, err := bw.WriteString(strings.TrimRight(sb.String(), "\n") + "\n"); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	return nil
}

// writeSection writes a section as a heading, its body and its children.
// A blank heading is left out but its body and children are still written.
func writeSection(sb *strings.Builder, doc *model.Document, id string, depth int) {
	s, ok := doc.Section(id)
	if !ok {
		return
	}
	if heading := strings.TrimSpace(inlineMarkdown(s.Heading, true)); heading != "" {
		sb.WriteString(strings.Repeat("#", depth))
		sb.WriteString(" ")
		sb.WriteString(heading)
		sb.WriteString("\n\n")
	}
	for _, blk := range s.Body {
		if text := blockMarkdown(blk, ""); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}
	for _, child := range s.Children {
		writeSection(sb, doc, child, depth+1)
	}
}

// writeBullet recursively writes a section heading and its children as
// markdown bullets, 2 spaces per level
func writeBullet(sb *strings.Builder, doc *model.Document, id string, depth int) {
	s, ok := doc.Section(id)
	if !ok {
		return
	}

	// Skip empty headings but still process children
	heading := strings.TrimSpace(inlineMarkdown(s.Heading, true))
	if heading == "" {
		for _, child := range s.Children {
			writeBullet(sb, doc, child, depth)
		}
		return
	}

	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("- ")
	sb.WriteString(heading)
	sb.WriteString("\n")

	for _, child := range s.Children {
		writeBullet(sb, doc, child, depth+1)
	}
}

func blockMarkdown(blk model.Block, indent string) string {
	switch blk.Type {
	case model.BlockParagraph:
		return indent + inlineMarkdown(blk.Content, false)
	case "bullet_list", "ordered_list":
		var lines []string
		for i, item := range blk.Blocks {
			marker := "- "
			if blk.Type == "ordered_list" {
				marker = fmt.Sprintf("%d. ", i+1)
			}
			lines = append(lines, indent+marker+strings.TrimLeft(listItem(item, indent+"  "), " "))
		}
		return strings.Join(lines, "\n")
	case "code_block":
		lang, _ := blk.Attrs["language"].(string)
		return indent + "```" + lang + "\n" + model.InlineContent(blk.Content).PlainText() + "\n" + indent + "```"
	case "blockquote":
		var parts []string
		for _, child := range blk.Blocks {
			parts = append(parts, blockMarkdown(child, ""))
		}
		quoted := strings.Split(strings.Join(parts, "\n\n"), "\n")
		for i, line := range quoted {
			quoted[i] = strings.TrimRight(indent+"> "+line, " ")
		}
		return strings.Join(quoted, "\n")
	case "horizontal_rule":
		return indent + "---"
	}
	return indent + inlineMarkdown(blk.Content, false)
}

func listItem(item model.Block, indent string) string {
	if len(item.Blocks) == 0 {
		return inlineMarkdown(item.Content, false)
	}
	parts := make([]string, 0, len(item.Blocks))
	for i, child := range item.Blocks {
		childIndent := indent
		if i == 0 {
			childIndent = ""
		}
		parts = append(parts, blockMarkdown(child, childIndent))
	}
	return strings.Join(parts, "\n")
}

// inlineMarkdown renders inline nodes with their marks. Hard breaks become
// spaces inside headings.
func inlineMarkdown(content model.InlineContent, heading bool) string {
	var sb strings.Builder
	for _, in := range content {
		switch in.Type {
		case model.InlineText:
			sb.WriteString(applyMarks(in.Text, in.Marks))
		case model.InlineHardBreak:
			if heading {
				sb.WriteString(" ")
			} else {
				sb.WriteString("  \n")
			}
		default:
			if alt, ok := in.Attrs["alt"].(string); ok {
				if src, ok := in.Attrs["src"].(string); ok {
					sb.WriteString("![" + alt + "](" + src + ")")
					continue
				}
				sb.WriteString(alt)
			}
		}
	}
	return sb.String()
}

func applyMarks(text string, marks []model.Mark) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	for _, m := range marks {
		switch m.Type {
		case "bold", "strong":
			text = "**" + text + "**"
		case "italic", "em":
			text = "_" + text + "_"
		case "code":
			text = "`" + text + "`"
		case "strike":
			text = "~~" + text + "~~"
		case "link":
			if href, ok := m.Attrs["href"].(string); ok {
				text = "[" + text + "](" + href + ")"
			}
		}
	}
	return text
}
