package diff

// SectionData is the flattened state of a single section used for comparison
type SectionData struct {
	ID          string
	Heading     string
	Fingerprint string
	ParentID    string
	Position    int
	Collapsed   bool
}

// DiffResult contains the analysis of changes between two documents
type DiffResult struct {
	NewSections      map[string]*SectionData
	DeletedSections  map[string]*SectionData
	ModifiedSections map[string]*SectionChange
}

// Empty reports whether nothing changed
func (r *DiffResult) Empty() bool {
	return len(r.NewSections) == 0 && len(r.DeletedSections) == 0 && len(r.ModifiedSections) == 0
}

// StructureOnly reports whether the changes can be described by tree shape
// alone: no section was added, deleted or had its content changed
func (r *DiffResult) StructureOnly() bool {
	if len(r.NewSections) > 0 || len(r.DeletedSections) > 0 {
		return false
	}
	for _, c := range r.ModifiedSections {
		if c.ContentChanged {
			return false
		}
	}
	return true
}

// SectionChange describes what changed for a section
type SectionChange struct {
	Section          *SectionData
	OldSection       *SectionData
	ContentChanged   bool
	OldHeading       string
	StructureChanged bool
	OldParentID      string
	OldPosition      int
	CollapsedChanged bool
}

// DiffLineType indicates the type of diff line for rendering
type DiffLineType int

const (
	DiffTypeHeader DiffLineType = iota
	DiffTypeNewSection
	DiffTypeDeletedSection
	DiffTypeModifiedSection
	DiffTypeNewEntry
	DiffTypeDeletedEntry
	DiffTypeModifiedEntry
	DiffTypeEntryDetail
	DiffTypeSummary
	DiffTypeBlank
)

// DiffLine represents a rendered line in diff output
type DiffLine struct {
	Type    DiffLineType
	Content string
	Indent  int // Indentation level
}
