package session

import (
	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/dirty"
	"github.com/pstuifzand/section-outliner/internal/editmode"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/outline"
)

// effects are the notifications a locked operation leaves for after unlock
type effects struct {
	changed []string
	prev    string
	next    string
	hint    string
	save    func()
}

func (s *Session) fire(fx effects) {
	s.sectionsChanged(fx.changed)
	if fx.prev != fx.next && s.opts.OnActiveSectionChanged != nil {
		s.opts.OnActiveSectionChanged(fx.prev, fx.next)
	}
	if fx.hint != "" && s.opts.OnHint != nil {
		s.opts.OnHint(fx.hint)
	}
	if fx.save != nil {
		fx.save()
	}
}

// focusLocked moves the active section. The section that is left is compared
// against its committed state, which is when its edits become dirty.
func (s *Session) focusLocked(next string, fx *effects) {
	fx.prev = s.active
	fx.next = s.active
	if next == "" || next == s.active {
		return
	}
	if s.active != "" && s.markLocked(s.active) {
		fx.changed = append(fx.changed, s.active)
	}
	s.active = next
	fx.next = next
}

// markLocked compares a section against its committed state. It reports
// true once per distinct change so hooks are not raised again for content
// that was already announced.
func (s *Session) markLocked(id string) bool {
	if !s.tracker.MarkIfChanged(s.doc, id) {
		delete(s.reported, id)
		return false
	}
	sec, _ := s.doc.Section(id)
	fp := dirty.Fingerprint(sec)
	if s.reported[id] == fp {
		return false
	}
	s.reported[id] = fp
	return true
}

// command runs a structural command. fn is called with the lock held and may
// veto the command by returning a result that is not applied, optionally with
// a hint for the user.
func (s *Session) command(fn func() (outline.Result, string)) outline.Result {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return outline.Result{Reason: ReasonNotOpen}
	}
	r, hint := fn()
	fx := effects{hint: hint, prev: s.active, next: s.active}
	if !r.Applied {
		s.mu.Unlock()
		s.fire(fx)
		return r
	}

	for _, id := range r.Changed {
		if s.markLocked(id) {
			fx.changed = append(fx.changed, id)
		}
	}
	s.tracker.MarkStructure(s.doc)
	s.followCursorLocked(r.Cursor.SectionID)
	s.focusLocked(r.Cursor.SectionID, &fx)
	fx.save = s.coord.ScheduleLeave
	s.mu.Unlock()

	s.fire(fx)
	return r
}

// followCursorLocked ends edit mode unless the command left the cursor on the
// section being edited and that section is still expanded and visible. View
// mode stays view mode.
func (s *Session) followCursorLocked(next string) {
	id, editing := s.gate.Editing()
	if !editing {
		return
	}
	sec, ok := s.doc.Section(next)
	if next != id || !ok || sec.Collapsed || !s.doc.IsVisible(s.doc.Locate(next)) {
		s.gate.Exit()
	}
}

func (s *Session) Indent(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.Indent(id), "" })
}

func (s *Session) Outdent(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.Outdent(id), "" })
}

func (s *Session) MoveUp(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.MoveUp(id), "" })
}

func (s *Session) MoveDown(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.MoveDown(id), "" })
}

func (s *Session) Delete(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.Delete(id), "" })
}

func (s *Session) InsertAfter(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.InsertAfter(id), "" })
}

// Split divides the section at the caret (Enter inside a section)
func (s *Session) Split(id string, caret outline.Caret) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.Split(id, caret), "" })
}

// Merge is the explicit merge command; it never asks for confirmation
func (s *Session) Merge(id string) outline.Result {
	return s.command(func() (outline.Result, string) { return s.engine.MergeBackward(id), "" })
}

// Backspace handles the deletion key at the start of a heading. An
// effectively empty section is removed right away. A merge triggered by the
// key in view mode has to be confirmed by pressing it again within the
// confirmation window. The first top-level section has nothing to merge into
// and never asks for confirmation.
func (s *Session) Backspace(id string, viaKey bool) outline.Result {
	return s.command(func() (outline.Result, string) {
		sec, ok := s.doc.Section(id)
		if !ok {
			return outline.Result{Reason: outline.ReasonNotFound}, ""
		}
		if !sec.IsEffectivelyEmpty() {
			if pos := s.doc.Locate(id); len(pos) == 1 && pos[0] == 0 {
				return outline.Result{Reason: outline.ReasonNothingToMerge}, ""
			}
			if d := s.gate.ConfirmMerge(id, viaKey); !d.Allowed {
				return outline.Result{Reason: d.Reason}, d.Hint
			}
		}
		return s.engine.MergeBackward(id), ""
	})
}

// ToggleCollapsed collapses or expands sections. Edit mode ends before the
// section being edited is collapsed or hidden.
func (s *Session) ToggleCollapsed(id string, scope outline.Scope) outline.Result {
	return s.command(func() (outline.Result, string) {
		s.gate.CollapseTargets(s.engine.CollapseTargets(id, scope))
		return s.engine.ToggleCollapsed(id, scope), ""
	})
}

// EnterEditMode starts editing a section and focuses it. Collapsed sections
// cannot be edited.
func (s *Session) EnterEditMode(id string) bool {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return false
	}
	sec, ok := s.doc.Section(id)
	if !ok || !s.gate.Enter(id, sec.Collapsed) {
		s.mu.Unlock()
		return false
	}
	var fx effects
	s.focusLocked(id, &fx)
	if len(fx.changed) > 0 {
		fx.save = s.coord.ScheduleLeave
	}
	s.mu.Unlock()

	s.fire(fx)
	return true
}

// ExitEditMode returns to view mode. The edited section stays active.
func (s *Session) ExitEditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	return s.gate.Exit()
}

// SetActiveSection moves focus. Leaving a section ends editing it, and a
// leave that turns up changes schedules a save.
func (s *Session) SetActiveSection(id string) bool {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.doc.Section(id); !ok {
		s.mu.Unlock()
		return false
	}
	s.gate.CursorMoved(id)
	var fx effects
	s.focusLocked(id, &fx)
	if s.tracker.IsDirty() || s.tracker.MarkStructure(s.doc) {
		fx.save = s.coord.ScheduleLeave
	}
	s.mu.Unlock()

	s.fire(fx)
	return true
}

// MoveCursorUp focuses the previous visible section
func (s *Session) MoveCursorUp() bool {
	return s.moveCursor((*model.Document).PreviousVisible)
}

// MoveCursorDown focuses the next visible section
func (s *Session) MoveCursorDown() bool {
	return s.moveCursor((*model.Document).NextVisible)
}

func (s *Session) moveCursor(step func(*model.Document, string) (string, bool)) bool {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return false
	}
	next, ok := step(s.doc, s.active)
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.SetActiveSection(next)
}

// ApplyContent applies a free-form edit to the heading or body of the
// sections a mutation names, after the edit-mode gate allowed it. The gate
// only lets edits to the section being edited through, which is always the
// active one. It is fingerprinted when it is left or saved, so a burst of
// typing is one change.
func (s *Session) ApplyContent(m editmode.Mutation, edit func(*model.Section)) editmode.Decision {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return editmode.Decision{Reason: ReasonNotOpen}
	}
	d := s.gate.CheckMutation(m)
	if !d.Allowed {
		s.mu.Unlock()
		s.fire(effects{hint: d.Hint})
		return d
	}

	fx := effects{prev: s.active, next: s.active}
	touched := false
	for _, id := range m.Sections {
		sec, ok := s.doc.Section(id)
		if !ok {
			continue
		}
		edit(sec)
		normalize(sec)
		touched = true
	}
	if touched {
		fx.save = s.coord.ScheduleTyping
	}
	s.mu.Unlock()

	s.fire(fx)
	return d
}

func normalize(sec *model.Section) {
	if sec.Heading == nil {
		sec.Heading = model.InlineContent{}
	}
	if sec.Body == nil {
		sec.Body = model.BlockContent{}
	}
}

var _ autosave.Source = (*source)(nil)
