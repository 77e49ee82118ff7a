package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/editmode"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/outline"
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

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) autosave.Timer {
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

type saved struct {
	kind      autosave.Kind
	sectionID string
	heading   string
}

type fakePersister struct {
	mu    sync.Mutex
	calls []saved
	err   error
}

func (p *fakePersister) record(c saved) (autosave.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.calls = append(p.calls, c)
	return autosave.Delivered, nil
}

func (p *fakePersister) SaveStructureSnapshot(_ context.Context, _ string, _ []model.StructureNode) (autosave.Outcome, error) {
	return p.record(saved{kind: autosave.KindStructureSnapshot})
}

func (p *fakePersister) SaveSectionContent(_ context.Context, _ string, sectionID string, heading model.InlineContent, _ model.BlockContent, _ int64) (autosave.Outcome, error) {
	return p.record(saved{kind: autosave.KindSectionContent, sectionID: sectionID, heading: heading.PlainText()})
}

func (p *fakePersister) SaveFullDocument(_ context.Context, _ string, _ json.RawMessage, _ int) (autosave.Outcome, error) {
	return p.record(saved{kind: autosave.KindSaveDoc})
}

func (p *fakePersister) Calls() []saved {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]saved(nil), p.calls...)
}

func (p *fakePersister) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

type harness struct {
	clock     *fakeClock
	persister *fakePersister
	store     *autosave.MemoryStore
	session   *Session

	mu      sync.Mutex
	changed []string
	hints   []string
	focus   [][2]string
}

func (h *harness) Changed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.changed...)
}

func (h *harness) Hints() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.hints...)
}

var serverTime = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     &fakeClock{now: serverTime.Add(time.Hour)},
		persister: &fakePersister{},
		store:     autosave.NewMemoryStore(),
	}
	n := 0
	s, err := New(Options{
		Persister: h.persister,
		Cache:     h.store,
		Clock:     h.clock,
		Logger:    discardLogger{},
		NewID: func() string {
			n++
			return fmt.Sprintf("new-%d", n)
		},
		Dispatch: func(f func()) { f() },
		OnSectionChanged: func(id string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.changed = append(h.changed, id)
		},
		OnHint: func(hint string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.hints = append(h.hints, hint)
		},
		OnActiveSectionChanged: func(prev, next string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.focus = append(h.focus, [2]string{prev, next})
		},
	})
	require.NoError(t, err)
	h.session = s
	return h
}

func serverDoc() *model.Document {
	return model.MustBuild(
		model.Node{ID: "a", Heading: "Alpha", Body: []string{"first"}},
		model.Node{ID: "b", Heading: "Beta", Children: []model.Node{{ID: "b1", Heading: "Child"}}},
	)
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Open(context.Background(), OpenRequest{
		ArticleID:       "art-1",
		Document:        serverDoc(),
		ServerUpdatedAt: serverTime,
		HasKey:          true,
	}))
}

func setHeading(text string) func(*model.Section) {
	return func(s *model.Section) {
		s.Heading = model.Text(text)
	}
}

func headings(t *testing.T, s *Session) []string {
	t.Helper()
	doc, err := s.Document()
	require.NoError(t, err)
	var out []string
	doc.Walk(func(sec *model.Section, depth int) bool {
		out = append(out, fmt.Sprintf("%s(%d)", sec.Heading.PlainText(), depth))
		return true
	})
	return out
}

func TestNewRequiresPersister(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestCommandsWithoutDocument(t *testing.T) {
	h := newHarness(t)
	r := h.session.Indent("a")
	assert.False(t, r.Applied)
	assert.Equal(t, ReasonNotOpen, r.Reason)

	_, err := h.session.Document()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, h.session.Save(context.Background()), ErrNotOpen)
	assert.False(t, h.session.EnterEditMode("a"))
	assert.Equal(t, autosave.StatusIdle, h.session.Status())
}

func TestOpenFocusesFirstSection(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	assert.True(t, h.session.IsOpen())
	assert.Equal(t, "art-1", h.session.ArticleID())
	assert.Equal(t, "a", h.session.Active())
	assert.Equal(t, editmode.View, h.session.Mode().Mode)
	assert.Empty(t, h.session.Dirty())
}

func TestOpenEmptyServerDocument(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Open(context.Background(), OpenRequest{ArticleID: "fresh"}))
	doc, err := h.session.Document()
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Len())
}

func TestOpenAppliesNewerDraft(t *testing.T) {
	h := newHarness(t)
	draft := serverDoc()
	a, _ := draft.Section("a")
	a.Heading = model.Text("Alpha offline")
	content, err := json.Marshal(draft)
	require.NoError(t, err)
	require.NoError(t, h.store.WriteDraft(context.Background(), "art-1", content, serverTime.Add(time.Minute)))

	h.open(t)
	assert.Equal(t, []string{"Alpha offline(1)", "Beta(1)", "Child(2)"}, headings(t, h.session))
	assert.Equal(t, []string{"a"}, h.session.Dirty())
	assert.Equal(t, []string{"a"}, h.Changed())

	h.clock.Advance(autosave.DefaultLeaveDelay)
	assert.Equal(t, []saved{{kind: autosave.KindSectionContent, sectionID: "a", heading: "Alpha offline"}}, h.persister.Calls())
	assert.Empty(t, h.session.Dirty())

	_, ok, err := h.store.ReadDraft(context.Background(), "art-1")
	require.NoError(t, err)
	assert.False(t, ok, "a delivered save clears the draft")
}

func TestOpenDiscardsStaleDraft(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.WriteDraft(context.Background(), "art-1", json.RawMessage(`{"sections":[]}`), serverTime.Add(-time.Minute)))

	h.open(t)
	assert.Equal(t, []string{"Alpha(1)", "Beta(1)", "Child(2)"}, headings(t, h.session))
	assert.Empty(t, h.session.Dirty())

	_, ok, err := h.store.ReadDraft(context.Background(), "art-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStructuralCommandSchedulesSave(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	r := h.session.Indent("b")
	require.True(t, r.Applied, r.Reason)
	assert.Equal(t, []string{"Alpha(1)", "Beta(2)", "Child(3)"}, headings(t, h.session))
	assert.Equal(t, "b", h.session.Active())
	assert.Equal(t, autosave.StatusScheduled, h.session.Status())

	h.clock.Advance(autosave.DefaultLeaveDelay)
	assert.Equal(t, []saved{{kind: autosave.KindStructureSnapshot}}, h.persister.Calls())
	assert.Equal(t, autosave.StatusSaved, h.session.Status())
}

func TestNotApplicableCommandChangesNothing(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	r := h.session.Outdent("a")
	assert.False(t, r.Applied)
	assert.Equal(t, outline.ReasonTopLevel, r.Reason)
	assert.Equal(t, autosave.StatusIdle, h.session.Status())
}

func TestDeleteSendsWholeDocument(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	r := h.session.Delete("b")
	require.True(t, r.Applied)
	assert.Equal(t, []string{"b", "b1"}, r.Removed)
	assert.Equal(t, "a", h.session.Active())

	require.NoError(t, h.session.Save(context.Background()))
	assert.Equal(t, []saved{{kind: autosave.KindSaveDoc}}, h.persister.Calls())
}

func TestContentNeedsEditMode(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	d := h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("typed"))
	assert.False(t, d.Allowed)
	assert.Equal(t, editmode.ReasonViewMode, d.Reason)
	assert.Equal(t, []string{editmode.HintEnterEditMode}, h.Hints())
	assert.Equal(t, "Alpha(1)", headings(t, h.session)[0])

	require.True(t, h.session.EnterEditMode("a"))
	d = h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("Alpha typed"))
	assert.True(t, d.Allowed)
	assert.Equal(t, "Alpha typed(1)", headings(t, h.session)[0])
	assert.Empty(t, h.session.Dirty(), "the active section is compared when it is left")

	h.clock.Advance(editmode.DefaultHintInterval)
	d = h.session.ApplyContent(editmode.Mutation{Kind: editmode.Paste, Sections: []string{"a", "b"}}, setHeading("x"))
	assert.False(t, d.Allowed)
	assert.Equal(t, editmode.ReasonOutsideSection, d.Reason)
	assert.Len(t, h.Hints(), 2)

	d = h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"b"}}, setHeading("y"))
	assert.False(t, d.Allowed)
	assert.Len(t, h.Hints(), 2, "hints are rate limited")
}

func TestLeavingSectionMarksItDirty(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))
	h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("Alpha 2"))
	h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("Alpha 23"))

	require.True(t, h.session.MoveCursorDown())
	assert.Equal(t, "b", h.session.Active())
	assert.Equal(t, editmode.View, h.session.Mode().Mode, "moving away ends editing")
	assert.Equal(t, []string{"a"}, h.session.Dirty())
	assert.Equal(t, []string{"a"}, h.Changed(), "a burst of typing is one change")
	assert.Equal(t, [][2]string{{"a", "b"}}, h.focus)

	h.clock.Advance(autosave.DefaultLeaveDelay)
	assert.Equal(t, []saved{{kind: autosave.KindSectionContent, sectionID: "a", heading: "Alpha 23"}}, h.persister.Calls())
}

func TestTypingBackToCommittedContentIsClean(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))
	h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("Alphax"))
	h.session.ApplyContent(editmode.Mutation{Kind: editmode.DeleteText, Sections: []string{"a"}}, setHeading("Alpha"))

	require.True(t, h.session.SetActiveSection("b"))
	assert.Empty(t, h.session.Dirty())
	assert.Empty(t, h.Changed())
}

func TestContentEditsStayInsideEditedSection(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))

	d := h.session.ApplyContent(editmode.Mutation{Kind: editmode.ReplaceContent, Sections: []string{"b1"}}, setHeading("Renamed"))
	assert.False(t, d.Allowed)
	assert.Equal(t, editmode.ReasonOutsideSection, d.Reason)
	assert.Equal(t, []string{"Alpha(1)", "Beta(1)", "Child(2)"}, headings(t, h.session))
	assert.Empty(t, h.session.Dirty())

	r := h.session.Merge("b")
	require.True(t, r.Applied, r.Reason)
	assert.Equal(t, editmode.State{Mode: editmode.Editing, SectionID: "a"}, h.session.Mode(), "merging into the edited section keeps editing it")
	assert.Contains(t, h.Changed(), "a")
}

func TestBackspaceMergeNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	r := h.session.Backspace("b", true)
	assert.False(t, r.Applied)
	assert.Equal(t, editmode.ReasonConfirmMerge, r.Reason)
	assert.Equal(t, []string{editmode.HintConfirmMerge}, h.Hints())

	h.clock.Advance(editmode.DefaultConfirmWindow / 2)
	r = h.session.Backspace("b", true)
	require.True(t, r.Applied, r.Reason)
	assert.Equal(t, []string{"Alpha(1)", "Child(2)"}, headings(t, h.session))

	doc, err := h.session.Document()
	require.NoError(t, err)
	a, _ := doc.Section("a")
	assert.Equal(t, "first\nBeta", a.Body.PlainText(), spew.Sdump(a.Body))
}

func TestBackspaceConfirmationExpires(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	assert.False(t, h.session.Backspace("b", true).Applied)
	h.clock.Advance(editmode.DefaultConfirmWindow + time.Millisecond)
	assert.False(t, h.session.Backspace("b", true).Applied, "a late second press only arms again")
	assert.True(t, h.session.Backspace("b", true).Applied)
}

func TestBackspaceOnFirstSectionDoesNotAskForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	for i := 0; i < 2; i++ {
		r := h.session.Backspace("a", true)
		assert.False(t, r.Applied)
		assert.Equal(t, outline.ReasonNothingToMerge, r.Reason)
	}
	assert.Empty(t, h.Hints())
	assert.Equal(t, []string{"Alpha(1)", "Beta(1)", "Child(2)"}, headings(t, h.session))

	r := h.session.Backspace("b1", true)
	assert.Equal(t, editmode.ReasonConfirmMerge, r.Reason, "first child still merges into its parent")
}

func TestBackspaceOnEmptySectionDeletes(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.InsertAfter("a").Applied)
	assert.Equal(t, "new-1", h.session.Active())

	r := h.session.Backspace("new-1", true)
	require.True(t, r.Applied)
	assert.Equal(t, []string{"new-1"}, r.Removed)
	assert.Empty(t, h.Hints())
}

func TestMergeCommandSkipsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	r := h.session.Merge("b")
	require.True(t, r.Applied)
	assert.Equal(t, "a", h.session.Active())
}

func TestSplitLeavesEditMode(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))

	r := h.session.Split("a", outline.Caret{InHeading: true, Offset: 2})
	require.True(t, r.Applied)
	assert.Equal(t, []string{"Al(1)", "pha(1)", "Beta(1)", "Child(2)"}, headings(t, h.session))
	assert.Equal(t, editmode.View, h.session.Mode().Mode)
	assert.Equal(t, "new-1", h.session.Active())
	assert.ElementsMatch(t, []string{"a", "new-1"}, h.session.Dirty())
}

func TestDeleteLeavesEditMode(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))

	r := h.session.Delete("a")
	require.True(t, r.Applied)
	assert.Equal(t, "b", h.session.Active())
	assert.Equal(t, editmode.View, h.session.Mode().Mode)
	assert.False(t, h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"b"}}, setHeading("Betax")).Allowed)
}

func TestIndentKeepsEditing(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("b"))

	require.True(t, h.session.Indent("b").Applied)
	assert.Equal(t, editmode.State{Mode: editmode.Editing, SectionID: "b"}, h.session.Mode())
	assert.Equal(t, []string{"Alpha(1)", "Beta(2)", "Child(3)"}, headings(t, h.session))
}

func TestCollapsingEditedSectionLeavesEditMode(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("b1"))

	r := h.session.ToggleCollapsed("b1", outline.ScopeCollapseParentSubtree)
	require.True(t, r.Applied)
	assert.Equal(t, editmode.View, h.session.Mode().Mode)
	assert.Equal(t, "b", h.session.Active())
	assert.False(t, h.session.EnterEditMode("b"), "collapsed sections cannot be edited")

	h.clock.Advance(autosave.DefaultLeaveDelay)
	assert.Equal(t, []saved{{kind: autosave.KindStructureSnapshot}}, h.persister.Calls())
}

func TestCloseSavesActiveSection(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.EnterEditMode("a"))
	h.session.ApplyContent(editmode.Mutation{Kind: editmode.InsertText, Sections: []string{"a"}}, setHeading("Last words"))

	require.NoError(t, h.session.Close(context.Background()))
	assert.Equal(t, []saved{{kind: autosave.KindSectionContent, sectionID: "a", heading: "Last words"}}, h.persister.Calls())
	assert.False(t, h.session.IsOpen())
	assert.Equal(t, []string{"a"}, h.Changed())
}

func TestFailedSaveIsRetriedWhenOnline(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.persister.SetErr(errors.New("offline"))
	require.True(t, h.session.Indent("b").Applied)

	err := h.session.Save(context.Background())
	assert.Error(t, err)
	assert.Equal(t, autosave.StatusError, h.session.Status())

	_, ok, err := h.store.ReadDraft(context.Background(), "art-1")
	require.NoError(t, err)
	assert.True(t, ok, "failed saves keep a draft")

	h.persister.SetErr(nil)
	h.session.OnOnline(context.Background())
	assert.Equal(t, []saved{{kind: autosave.KindStructureSnapshot}}, h.persister.Calls(), "the queue goes out first")
	assert.Equal(t, autosave.StatusScheduled, h.session.Status(), "the tree is still dirty")

	h.clock.Advance(autosave.DefaultLeaveDelay)
	assert.Len(t, h.persister.Calls(), 2)
	assert.Equal(t, autosave.StatusSaved, h.session.Status())
	assert.Empty(t, h.session.Dirty())

	ops, err := h.store.Pending(context.Background(), "art-1")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStaleCaptureIsNotCommitted(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	require.True(t, h.session.Indent("b").Applied)
	c, ok := (*source)(h.session).Capture(false)
	require.True(t, ok)

	require.NoError(t, h.session.Close(context.Background()))
	h.open(t)
	assert.False(t, (*source)(h.session).Current(c.ArticleID, c.Generation))

	require.True(t, h.session.InsertAfter("a").Applied)
	(*source)(h.session).Committed(c)
	assert.Equal(t, []string{"new-1"}, h.session.Dirty(), "an old capture does not clear the new session")
}

func TestEncryptedWithoutKeyIsSkipped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Open(context.Background(), OpenRequest{
		ArticleID: "secret",
		Document:  serverDoc(),
		Encrypted: true,
	}))
	require.True(t, h.session.Indent("b").Applied)
	require.NoError(t, h.session.Save(context.Background()))
	assert.Empty(t, h.persister.Calls())
	assert.Equal(t, autosave.StatusSkipped, h.session.Status())
}
