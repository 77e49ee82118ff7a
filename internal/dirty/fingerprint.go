// Package dirty detects which sections really changed since the last save.
package dirty

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// separates heading from body so text cannot move between them unnoticed
const headingSeparator = "\x1e"

var spaceReplacer = strings.NewReplacer(
	"\u00a0", " ",
	"\u2007", " ",
	"\u202f", " ",
	"\r\n", "\n",
	"\r", "\n",
)

// Fingerprint returns the normalized plain text of a section's heading and
// body. Two sections with equal fingerprints look the same to a reader.
func Fingerprint(s *model.Section) string {
	return Normalize(s.Heading.PlainText()) + headingSeparator + Normalize(s.Body.PlainText())
}

// Normalize folds the whitespace differences an editor introduces without
// the user changing anything
func Normalize(text string) string {
	text = spaceReplacer.Replace(norm.NFC.String(text))
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
