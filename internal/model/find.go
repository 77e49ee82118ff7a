package model

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Match is a section whose heading matched a search query
type Match struct {
	SectionID string
	Heading   string
	Position  Position
	Rank      int
}

// FindSections does a fuzzy, case-insensitive search over section headings.
// Results are ordered by rank (closest first) and then by document order.
func FindSections(d *Document, query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	var matches []Match
	order := make(map[string]int, d.Len())
	d.Walk(func(s *Section, _ int) bool {
		order[s.ID] = len(order)
		heading := s.Heading.PlainText()
		rank := fuzzy.RankMatchNormalizedFold(query, heading)
		if rank >= 0 {
			matches = append(matches, Match{
				SectionID: s.ID,
				Heading:   heading,
				Position:  d.Locate(s.ID),
				Rank:      rank,
			})
		}
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Rank != matches[j].Rank {
			return matches[i].Rank < matches[j].Rank
		}
		return order[matches[i].SectionID] < order[matches[j].SectionID]
	})
	return matches
}
