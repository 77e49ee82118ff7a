package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pstuifzand/section-outliner/internal/dirty"
	"github.com/pstuifzand/section-outliner/internal/model"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeSource struct {
	mu         sync.Mutex
	doc        *model.Document
	tracker    *dirty.Tracker
	articleID  string
	generation uint64
	encrypted  bool
	hasKey     bool
	commits    int
}

func newFakeSource(doc *model.Document) *fakeSource {
	tr := dirty.NewTracker()
	tr.Commit(doc)
	return &fakeSource{doc: doc, tracker: tr, articleID: "art-1", generation: 1, hasKey: true}
}

func (s *fakeSource) edit(id, heading string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, _ := s.doc.Section(id)
	sec.Heading = model.Text(heading)
	s.tracker.MarkIfChanged(s.doc, id)
}

func (s *fakeSource) Capture(force bool) (Capture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.MarkStructure(s.doc)
	if !force && !s.tracker.IsDirty() {
		return Capture{}, false
	}
	return Capture{
		ArticleID:  s.articleID,
		Generation: s.generation,
		Document:   s.doc.Clone(),
		Marks:      s.tracker.Capture(s.doc),
		Encrypted:  s.encrypted,
		HasKey:     s.hasKey,
	}, true
}

func (s *fakeSource) Committed(c Capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.CommitCapture(c.Marks, s.doc)
	s.commits++
}

func (s *fakeSource) Current(articleID string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return articleID == s.articleID && generation == s.generation
}

type call struct {
	kind      Kind
	sectionID string
	seq       int64
	nodes     int
}

var errNetwork = errors.New("network unreachable")

type fakePersister struct {
	mu      sync.Mutex
	calls   []call
	err     error
	outcome Outcome
	during  func()
}

func (p *fakePersister) record(c call) (Outcome, error) {
	p.mu.Lock()
	during := p.during
	p.during = nil
	p.mu.Unlock()
	if during != nil {
		during()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.calls = append(p.calls, c)
	return p.outcome, nil
}

func (p *fakePersister) SaveStructureSnapshot(_ context.Context, _ string, nodes []model.StructureNode) (Outcome, error) {
	return p.record(call{kind: KindStructureSnapshot, nodes: len(nodes)})
}

func (p *fakePersister) SaveSectionContent(_ context.Context, _ string, sectionID string, _ model.InlineContent, _ model.BlockContent, seq int64) (Outcome, error) {
	return p.record(call{kind: KindSectionContent, sectionID: sectionID, seq: seq})
}

func (p *fakePersister) SaveFullDocument(_ context.Context, _ string, doc json.RawMessage, _ int) (Outcome, error) {
	if _, err := model.ParseDocument(doc); err != nil {
		return 0, err
	}
	return p.record(call{kind: KindSaveDoc})
}

func (p *fakePersister) Calls() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

func (p *fakePersister) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *fakePersister) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}
