package diff

import (
	"github.com/pstuifzand/section-outliner/internal/model"
)

// FingerprintFunc reduces a section's content to a comparable string
type FingerprintFunc func(*model.Section) string

// ComputeDiff compares two documents and returns a DiffResult
func ComputeDiff(doc1, doc2 *model.Document, fp FingerprintFunc) *DiffResult {
	return Compare(Flatten(doc1, fp), Flatten(doc2, fp))
}

// Flatten converts a document to section data keyed by id
func Flatten(doc *model.Document, fp FingerprintFunc) map[string]*SectionData {
	sections := make(map[string]*SectionData, doc.Len())
	for _, node := range model.StructureSnapshot(doc) {
		s, _ := doc.Section(node.SectionID)
		data := &SectionData{
			ID:        node.SectionID,
			Heading:   s.Heading.PlainText(),
			ParentID:  node.Parent(),
			Position:  node.Position,
			Collapsed: node.Collapsed,
		}
		if fp != nil {
			data.Fingerprint = fp(s)
		}
		sections[data.ID] = data
	}
	return sections
}

// Compare compares two sets of section data
func Compare(data1, data2 map[string]*SectionData) *DiffResult {
	result := &DiffResult{
		NewSections:      make(map[string]*SectionData),
		DeletedSections:  make(map[string]*SectionData),
		ModifiedSections: make(map[string]*SectionChange),
	}

	// Find new and modified sections
	for id, s2 := range data2 {
		if s1, exists := data1[id]; !exists {
			result.NewSections[id] = s2
		} else if change := compareSections(s1, s2); change != nil {
			result.ModifiedSections[id] = change
		}
	}

	// Find deleted sections
	for id, s1 := range data1 {
		if _, exists := data2[id]; !exists {
			result.DeletedSections[id] = s1
		}
	}

	return result
}

// compareSections checks if a section changed and returns the changes
func compareSections(old, new *SectionData) *SectionChange {
	change := &SectionChange{
		Section:    new,
		OldSection: old,
	}

	hasChange := false

	if old.Fingerprint != new.Fingerprint {
		change.ContentChanged = true
		change.OldHeading = old.Heading
		hasChange = true
	}

	if old.ParentID != new.ParentID || old.Position != new.Position {
		change.StructureChanged = true
		change.OldParentID = old.ParentID
		change.OldPosition = old.Position
		hasChange = true
	}

	if old.Collapsed != new.Collapsed {
		change.CollapsedChanged = true
		hasChange = true
	}

	if !hasChange {
		return nil
	}
	return change
}
