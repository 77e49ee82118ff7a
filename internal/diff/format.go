package diff

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// BuildDiffLines converts a DiffResult into formatted display lines
func BuildDiffLines(result *DiffResult, verbose bool) []DiffLine {
	var lines []DiffLine

	// New sections
	if len(result.NewSections) > 0 {
		lines = append(lines, DiffLine{Type: DiffTypeNewSection, Content: "New Sections:"})
		lines = append(lines, DiffLine{Type: DiffTypeBlank})

		for _, id := range getSortedIDs(result.NewSections) {
			lines = append(lines, formatNewSection(result.NewSections[id])...)
		}
	}

	// Deleted sections
	if len(result.DeletedSections) > 0 {
		lines = append(lines, DiffLine{Type: DiffTypeDeletedSection, Content: "Deleted Sections:"})
		lines = append(lines, DiffLine{Type: DiffTypeBlank})

		for _, id := range getSortedIDs(result.DeletedSections) {
			lines = append(lines, formatDeletedSection(result.DeletedSections[id])...)
		}
	}

	// Modified sections
	if len(result.ModifiedSections) > 0 {
		lines = append(lines, DiffLine{Type: DiffTypeModifiedSection, Content: "Modified Sections:"})
		lines = append(lines, DiffLine{Type: DiffTypeBlank})

		for _, id := range getSortedIDs(result.ModifiedSections) {
			lines = append(lines, formatModifiedSection(result.ModifiedSections[id], verbose)...)
		}
	}

	if !result.Empty() {
		lines = append(lines, DiffLine{Type: DiffTypeBlank})
		lines = append(lines, DiffLine{Type: DiffTypeSummary, Content: "=== Summary ==="})
		lines = append(lines, DiffLine{
			Type: DiffTypeSummary,
			Content: fmt.Sprintf("  %d modified, %d added, %d deleted",
				len(result.ModifiedSections), len(result.NewSections), len(result.DeletedSections)),
		})
	}

	return lines
}

// WriteLines writes display lines as indented plain text
func WriteLines(w io.Writer, lines []DiffLine) error {
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", line.Indent), line.Content); err != nil {
			return err
		}
	}
	return nil
}

func formatNewSection(s *SectionData) []DiffLine {
	var lines []DiffLine

	lines = append(lines, DiffLine{
		Type:    DiffTypeNewEntry,
		Content: fmt.Sprintf("%s: %s", s.ID, truncateText(s.Heading, 60)),
		Indent:  1,
	})

	if s.ParentID != "" {
		lines = append(lines, DiffLine{
			Type:    DiffTypeEntryDetail,
			Content: fmt.Sprintf("PARENT: %s at position %d", s.ParentID, s.Position),
			Indent:  2,
		})
	} else {
		lines = append(lines, DiffLine{
			Type:    DiffTypeEntryDetail,
			Content: fmt.Sprintf("POSITION: root position %d", s.Position),
			Indent:  2,
		})
	}

	lines = append(lines, DiffLine{Type: DiffTypeBlank})
	return lines
}

func formatDeletedSection(s *SectionData) []DiffLine {
	return []DiffLine{
		{
			Type:    DiffTypeDeletedEntry,
			Content: fmt.Sprintf("%s: %s", s.ID, truncateText(s.Heading, 60)),
			Indent:  1,
		},
		{Type: DiffTypeBlank},
	}
}

func formatModifiedSection(change *SectionChange, verbose bool) []DiffLine {
	var lines []DiffLine

	lines = append(lines, DiffLine{
		Type:    DiffTypeModifiedEntry,
		Content: fmt.Sprintf("%s: %s", change.Section.ID, truncateText(change.Section.Heading, 60)),
		Indent:  1,
	})

	if change.ContentChanged {
		content := "CONTENT changed"
		if change.OldHeading != change.Section.Heading {
			content = fmt.Sprintf("HEADING: %s → %s",
				truncateText(change.OldHeading, 40),
				truncateText(change.Section.Heading, 40))
		}
		lines = append(lines, DiffLine{Type: DiffTypeEntryDetail, Content: content, Indent: 2})
		if verbose {
			lines = append(lines, DiffLine{
				Type: DiffTypeEntryDetail,
				Content: fmt.Sprintf("TEXT: %s → %s",
					truncateText(change.OldSection.Fingerprint, 40),
					truncateText(change.Section.Fingerprint, 40)),
				Indent: 3,
			})
		}
	}

	if change.StructureChanged {
		oldParent := change.OldParentID
		if oldParent == "" {
			oldParent = "root"
		}
		newParent := change.Section.ParentID
		if newParent == "" {
			newParent = "root"
		}

		if oldParent != newParent {
			lines = append(lines, DiffLine{
				Type:    DiffTypeEntryDetail,
				Content: fmt.Sprintf("MOVED: from parent %s to parent %s", oldParent, newParent),
				Indent:  2,
			})
		}

		if change.OldPosition != change.Section.Position {
			lines = append(lines, DiffLine{
				Type:    DiffTypeEntryDetail,
				Content: fmt.Sprintf("POSITION: %d → %d", change.OldPosition, change.Section.Position),
				Indent:  2,
			})
		}
	}

	if change.CollapsedChanged {
		state := "expanded"
		if change.Section.Collapsed {
			state = "collapsed"
		}
		lines = append(lines, DiffLine{Type: DiffTypeEntryDetail, Content: "NOW " + state, Indent: 2})
	}

	lines = append(lines, DiffLine{Type: DiffTypeBlank})
	return lines
}

// truncateText limits text length for display
func truncateText(text string, maxLen int) string {
	lines := strings.Split(text, "\n")
	text = lines[0]
	if len(lines) > 1 {
		text += " ..."
	}

	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}

// getSortedIDs returns a sorted slice of keys from a map
func getSortedIDs[T any](items map[string]T) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
