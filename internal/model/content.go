package model

import (
	"strings"
	"unicode"
)

// Inline node types interpreted by the outline core. Any other type is opaque
// (images, mentions, math) and counts as a single caret position.
const (
	InlineText      = "text"
	InlineHardBreak = "hard_break"
)

// Block types interpreted by the outline core. Any other type is opaque and
// always moved as a whole.
const (
	BlockParagraph = "paragraph"
)

// Mark is an inline formatting mark (bold, link, ...). Marks are never
// interpreted here, only carried along when text is split.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Inline is a single inline node of a heading or paragraph
type Inline struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Marks []Mark         `json:"marks,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Block is a single body block. Content holds inline children, Blocks holds
// nested blocks for container types (lists, tables, quotes).
type Block struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Inline       `json:"content,omitempty"`
	Blocks  []Block        `json:"blocks,omitempty"`
}

// InlineContent is the content of a section heading
type InlineContent []Inline

// BlockContent is the content of a section body
type BlockContent []Block

// Text creates a plain text inline content
func Text(s string) InlineContent {
	if s == "" {
		return InlineContent{}
	}
	return InlineContent{{Type: InlineText, Text: s}}
}

// Paragraph creates a paragraph block holding the given inline content
func Paragraph(content InlineContent) Block {
	return Block{Type: BlockParagraph, Content: []Inline(content.Clone())}
}

// Paragraphs creates a body with one plain text paragraph per argument
func Paragraphs(texts ...string) BlockContent {
	body := make(BlockContent, 0, len(texts))
	for _, t := range texts {
		body = append(body, Paragraph(Text(t)))
	}
	return body
}

// PlainText returns the text of the inline content; hard breaks become newlines
func (c InlineContent) PlainText() string {
	var sb strings.Builder
	for _, in := range c {
		switch in.Type {
		case InlineText:
			sb.WriteString(in.Text)
		case InlineHardBreak:
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// IsBlank reports whether the content holds nothing but whitespace
func (c InlineContent) IsBlank() bool {
	for _, in := range c {
		switch in.Type {
		case InlineText:
			if strings.TrimFunc(in.Text, unicode.IsSpace) != "" {
				return false
			}
		case InlineHardBreak:
		default:
			return false
		}
	}
	return true
}

// Len returns the number of caret positions in the content
func (c InlineContent) Len() int {
	n := 0
	for _, in := range c {
		n += inlineLen(in)
	}
	return n
}

// Clone returns a deep copy
func (c InlineContent) Clone() InlineContent {
	if c == nil {
		return InlineContent{}
	}
	out := make(InlineContent, len(c))
	for i, in := range c {
		out[i] = cloneInline(in)
	}
	return out
}

// Split cuts the content at a rune offset. Text nodes straddling the offset are
// divided and both halves keep their marks. The offset is clamped.
func (c InlineContent) Split(offset int) (InlineContent, InlineContent) {
	left := InlineContent{}
	right := InlineContent{}
	if offset < 0 {
		offset = 0
	}
	pos := 0
	for _, in := range c {
		size := inlineLen(in)
		switch {
		case pos+size <= offset:
			left = append(left, cloneInline(in))
		case pos >= offset:
			right = append(right, cloneInline(in))
		default:
			// only text nodes are larger than one position
			runes := []rune(in.Text)
			cut := offset - pos
			head := cloneInline(in)
			head.Text = string(runes[:cut])
			tail := cloneInline(in)
			tail.Text = string(runes[cut:])
			left = append(left, head)
			right = append(right, tail)
		}
		pos += size
	}
	return left, right
}

// PlainText returns the text of the body, one line per block
func (b BlockContent) PlainText() string {
	lines := make([]string, 0, len(b))
	for _, blk := range b {
		lines = append(lines, blockText(blk))
	}
	return strings.Join(lines, "\n")
}

// IsBlank reports whether the body holds only empty or whitespace paragraphs
func (b BlockContent) IsBlank() bool {
	for _, blk := range b {
		if !isEmptyParagraph(blk) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (b BlockContent) Clone() BlockContent {
	if b == nil {
		return BlockContent{}
	}
	out := make(BlockContent, len(b))
	for i, blk := range b {
		out[i] = cloneBlock(blk)
	}
	return out
}

// SplitAt cuts the body at a caret inside block index blockIdx. A paragraph is
// divided at the rune offset; any other block stays whole in the head. Trailing
// empty paragraphs of the head are trimmed, and an empty paragraph left at the
// start of the tail by a cut at the end of a paragraph is dropped.
func (b BlockContent) SplitAt(blockIdx, offset int) (BlockContent, BlockContent) {
	if blockIdx < 0 {
		blockIdx = 0
	}
	if blockIdx >= len(b) {
		return b.Clone().TrimTrailingEmptyParagraphs(), BlockContent{}
	}

	head := make(BlockContent, 0, blockIdx+1)
	for _, blk := range b[:blockIdx] {
		head = append(head, cloneBlock(blk))
	}
	tail := BlockContent{}

	cur := b[blockIdx]
	if cur.Type == BlockParagraph {
		left, right := InlineContent(cur.Content).Split(offset)
		first := cloneBlock(cur)
		first.Content = []Inline(left)
		second := cloneBlock(cur)
		second.Content = []Inline(right)
		head = append(head, first)
		if !InlineContent(right).IsBlank() {
			tail = append(tail, second)
		}
	} else {
		head = append(head, cloneBlock(cur))
	}
	for _, blk := range b[blockIdx+1:] {
		tail = append(tail, cloneBlock(blk))
	}
	return head.TrimTrailingEmptyParagraphs(), tail
}

// TrimTrailingEmptyParagraphs drops empty paragraphs from the end of the body
func (b BlockContent) TrimTrailingEmptyParagraphs() BlockContent {
	end := len(b)
	for end > 0 && isEmptyParagraph(b[end-1]) {
		end--
	}
	if b == nil {
		return BlockContent{}
	}
	return b[:end]
}

func inlineLen(in Inline) int {
	if in.Type == InlineText {
		return len([]rune(in.Text))
	}
	return 1
}

func blockText(blk Block) string {
	if len(blk.Blocks) > 0 {
		parts := make([]string, 0, len(blk.Blocks)+1)
		if len(blk.Content) > 0 {
			parts = append(parts, InlineContent(blk.Content).PlainText())
		}
		for _, child := range blk.Blocks {
			parts = append(parts, blockText(child))
		}
		return strings.Join(parts, "\n")
	}
	return InlineContent(blk.Content).PlainText()
}

func isEmptyParagraph(blk Block) bool {
	return blk.Type == BlockParagraph && len(blk.Blocks) == 0 && InlineContent(blk.Content).IsBlank()
}

func cloneInline(in Inline) Inline {
	out := in
	if in.Marks != nil {
		out.Marks = make([]Mark, len(in.Marks))
		for i, m := range in.Marks {
			out.Marks[i] = Mark{Type: m.Type, Attrs: cloneAttrs(m.Attrs)}
		}
	}
	out.Attrs = cloneAttrs(in.Attrs)
	return out
}

func cloneBlock(blk Block) Block {
	out := Block{Type: blk.Type, Attrs: cloneAttrs(blk.Attrs)}
	if blk.Content != nil {
		out.Content = make([]Inline, len(blk.Content))
		for i, in := range blk.Content {
			out.Content[i] = cloneInline(in)
		}
	}
	if blk.Blocks != nil {
		out.Blocks = make([]Block, len(blk.Blocks))
		for i, child := range blk.Blocks {
			out.Blocks[i] = cloneBlock(child)
		}
	}
	return out
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAttrs(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
