package legacy

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// Format is an input format the converter understands
type Format string

const (
	FormatJSON     Format = "json"
	FormatIndented Format = "indented"
)

// DetectFormat picks the format from the file extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return FormatIndented
	}
	return FormatJSON
}

// ParseIndented converts an indented plain text outline into a document. Each
// non-empty line becomes a section heading; two spaces or one tab open a
// level. Sections that would nest deeper than model.MaxDepth stay at the
// deepest level.
func (c *Converter) ParseIndented(content string) (*model.Document, error) {
	newID := c.NewID
	if newID == nil {
		newID = model.NewID
	}
	scanner := bufio.NewScanner(strings.NewReader(content))

	doc := model.NewDocumentFrom()
	var stack []string // section id at each level
	prevIndent := -1

	for scanner.Scan() {
		line := scanner.Text()
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		indent := getIndentLevel(line)
		level := len(stack) + 1
		switch {
		case prevIndent < 0 || indent == 0:
			level = 1
		case indent > prevIndent:
			// child of the previous line
		case indent == prevIndent:
			level = len(stack)
		default:
			// outdented: never deeper than the indentation asks for
			level = min(indent+1, len(stack))
		}
		level = min(level, model.MaxDepth)

		stack = stack[:level-1]
		parentID := ""
		if len(stack) > 0 {
			parentID = stack[len(stack)-1]
		}
		s := model.NewSection(model.Text(text), nil)
		s.ID = newID()
		if !doc.Insert(s, parentID, len(doc.Children(parentID))) {
			return nil, fmt.Errorf("%w: duplicate section id %q", model.ErrInvalidDocument, s.ID)
		}
		stack = append(stack, s.ID)
		prevIndent = indent
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if doc.Len() == 0 {
		return model.NewDocument(), nil
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// getIndentLevel calculates the indentation level (0-based)
// Counts tabs and spaces (tab = 2 spaces)
func getIndentLevel(line string) int {
	indent := 0
	for i := 0; i < len(line); i++ {
		if line[i] == '\t' {
			indent += 2
		} else if line[i] == ' ' {
			indent++
		} else {
			break
		}
	}
	// Convert to level (2 spaces = 1 level)
	return indent / 2
}
