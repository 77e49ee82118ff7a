// Package editmode restricts content mutations to the one section that is
// being edited. Structural commands stay available in view mode.
package editmode

import (
	"time"

	"golang.org/x/time/rate"
)

// Mode is the edit state of a document
type Mode int

const (
	// View accepts structural commands but no free-form text edits
	View Mode = iota
	// Editing accepts content mutations inside a single section
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "view"
}

// State is the current mode and, when editing, the section being edited
type State struct {
	Mode      Mode
	SectionID string
}

// Kind classifies a content mutation
type Kind int

const (
	InsertText Kind = iota
	DeleteText
	Paste
	Drop
	Format
	ReplaceContent
)

// Mutation is an attempted content change. Sections lists every section
// whose heading or body the change would touch. Structural commands never
// pass through the gate.
type Mutation struct {
	Kind     Kind
	Sections []string
}

// Decision is the gate's answer to a mutation or merge request
type Decision struct {
	Allowed bool
	// Hint is a message for the user; empty when no hint should be shown
	Hint   string
	Reason string
}

// Reasons for rejected mutations
const (
	ReasonViewMode       = "document is in view mode"
	ReasonOutsideSection = "change reaches outside the section being edited"
	ReasonConfirmMerge   = "merge needs confirmation"
)

// Hints shown to the user
const (
	HintEnterEditMode = "Press Enter to edit this section"
	HintStayInSection = "Only the section being edited can be changed"
	HintConfirmMerge  = "Press Backspace again to merge with the section above"
)

const (
	DefaultConfirmWindow = 1200 * time.Millisecond
	DefaultHintInterval  = 3 * time.Second
)

// Gate is the edit-mode state machine. It is not safe for concurrent use.
type Gate struct {
	state  State
	now    func() time.Time
	window time.Duration
	hints  *rate.Limiter

	pendingMerge string
	pendingAt    time.Time
}

// Option configures a Gate
type Option func(*Gate)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithConfirmWindow sets how long a first merge request waits for its
// confirmation
func WithConfirmWindow(d time.Duration) Option {
	return func(g *Gate) {
		g.window = d
	}
}

// WithHintInterval sets the minimum time between two rejection hints
func WithHintInterval(d time.Duration) Option {
	return func(g *Gate) {
		g.hints = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewGate creates a gate in view mode
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		now:    time.Now,
		window: DefaultConfirmWindow,
		hints:  rate.NewLimiter(rate.Every(DefaultHintInterval), 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state
func (g *Gate) State() State {
	return g.state
}

// Editing returns the id of the section being edited
func (g *Gate) Editing() (string, bool) {
	if g.state.Mode != Editing {
		return "", false
	}
	return g.state.SectionID, true
}

// Enter starts editing a section. A collapsed section has to be expanded
// first.
func (g *Gate) Enter(id string, collapsed bool) bool {
	if id == "" || collapsed {
		return false
	}
	g.state = State{Mode: Editing, SectionID: id}
	g.pendingMerge = ""
	return true
}

// Exit returns to view mode. It reports whether the gate was editing.
func (g *Gate) Exit() bool {
	was := g.state.Mode == Editing
	g.state = State{Mode: View}
	return was
}

// CursorMoved leaves edit mode when the cursor lands on another section
func (g *Gate) CursorMoved(next string) bool {
	if id, ok := g.Editing(); ok && id != next {
		return g.Exit()
	}
	return false
}

// CollapseTargets leaves edit mode when the section being edited is about to
// be collapsed or hidden
func (g *Gate) CollapseTargets(ids []string) bool {
	id, ok := g.Editing()
	if !ok {
		return false
	}
	for _, target := range ids {
		if target == id {
			return g.Exit()
		}
	}
	return false
}

// CheckMutation decides whether a content change may be applied
func (g *Gate) CheckMutation(m Mutation) Decision {
	if id, ok := g.Editing(); ok {
		if len(m.Sections) > 0 && within(m.Sections, id) {
			return Decision{Allowed: true}
		}
		return g.reject(ReasonOutsideSection, HintStayInSection)
	}
	switch m.Kind {
	case InsertText, DeleteText, Paste, Drop:
		return g.reject(ReasonViewMode, HintEnterEditMode)
	}
	return Decision{Reason: ReasonViewMode}
}

// ConfirmMerge guards a merge started by a single deletion key in view mode:
// the first request only arms it and the same request for the same section
// within the confirmation window lets it through. Merges in edit mode or from
// explicit commands pass immediately.
func (g *Gate) ConfirmMerge(id string, viaKey bool) Decision {
	if !viaKey || g.state.Mode == Editing {
		return Decision{Allowed: true}
	}
	now := g.now()
	if g.pendingMerge == id && now.Sub(g.pendingAt) <= g.window {
		g.pendingMerge = ""
		return Decision{Allowed: true}
	}
	g.pendingMerge = id
	g.pendingAt = now
	return Decision{Hint: HintConfirmMerge, Reason: ReasonConfirmMerge}
}

func (g *Gate) reject(reason, hint string) Decision {
	d := Decision{Reason: reason}
	if g.hints.AllowN(g.now(), 1) {
		d.Hint = hint
	}
	return d
}

func within(ids []string, id string) bool {
	for _, s := range ids {
		if s != id {
			return false
		}
	}
	return true
}
