// Package session ties the outline of one open document to its edit-mode
// gate, dirty tracker and autosave coordinator.
//
// A Session is long lived: Open starts editing a document and Close ends it.
// Every piece of per-document state (fingerprints, dirty set, active section,
// in-flight save) lives on the Session and is reset on Close, so documents
// opened in separate sessions never share state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pstuifzand/section-outliner/internal/autosave"
	"github.com/pstuifzand/section-outliner/internal/dirty"
	"github.com/pstuifzand/section-outliner/internal/editmode"
	"github.com/pstuifzand/section-outliner/internal/model"
	"github.com/pstuifzand/section-outliner/internal/outline"
)

// ErrNotOpen is returned by operations that need an open document
var ErrNotOpen = errors.New("no document open")

// ReasonNotOpen is the result reason of commands issued without a document
const ReasonNotOpen = "no document open"

// Cache is the local cache a session keeps drafts and queued work in
type Cache interface {
	autosave.DraftCache
	autosave.QueueStore
	autosave.SequenceStore
}

// Options configures a Session
type Options struct {
	Persister autosave.Persister
	// Cache defaults to an in-memory store
	Cache  Cache
	Clock  autosave.Clock
	Logger autosave.Logger

	LeaveDelay        time.Duration
	TypingDelay       time.Duration
	RetryDelay        time.Duration
	StaleVersionHours int
	ConfirmWindow     time.Duration
	HintInterval      time.Duration

	// NewID generates section ids for new sections
	NewID func() string
	// Dispatch runs timer-driven saves; see autosave.Options
	Dispatch func(func())

	// OnSectionChanged is called for every section whose content really
	// changed, once per change, when it is compared against its committed
	// state. Derived metadata (titles, proofreading) hangs off this.
	OnSectionChanged func(id string)
	// OnActiveSectionChanged is raised when focus moves to another section
	OnActiveSectionChanged func(prev, next string)
	// OnHint receives rate-limited hints for rejected edits
	OnHint func(hint string)
	// OnStatus receives autosave status changes
	OnStatus func(autosave.Status)
}

// OpenRequest describes the document to open
type OpenRequest struct {
	ArticleID string
	// Document is the server copy; nil opens an empty document
	Document *model.Document
	// ServerUpdatedAt is when the server copy was last written
	ServerUpdatedAt time.Time
	Encrypted       bool
	HasKey          bool
}

// Session is the editor state of one open document. It is safe for
// concurrent use: commands arrive from the input layer while timers and
// network completions arrive on other goroutines.
type Session struct {
	opts   Options
	cache  Cache
	clock  autosave.Clock
	logger autosave.Logger

	mu         sync.Mutex
	open       bool
	articleID  string
	generation uint64
	encrypted  bool
	hasKey     bool
	doc        *model.Document
	engine     *outline.Engine
	gate       *editmode.Gate
	tracker    *dirty.Tracker
	coord      *autosave.Coordinator
	active     string

	// fingerprints already passed to OnSectionChanged
	reported map[string]string
}

// New creates a session without an open document
func New(opts Options) (*Session, error) {
	if opts.Persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	s := &Session{
		opts:   opts,
		cache:  opts.Cache,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if s.cache == nil {
		s.cache = autosave.NewMemoryStore()
	}
	if s.clock == nil {
		s.clock = autosave.RealClock()
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s, nil
}

// Open starts editing a document. An already open document is closed first.
// A cached draft is applied over the server copy when the server has no
// content or the draft is newer; a stale draft is discarded.
func (s *Session) Open(ctx context.Context, req OpenRequest) error {
	if req.ArticleID == "" {
		return fmt.Errorf("article id is required")
	}
	if err := s.Close(ctx); err != nil {
		s.logger.Printf("session: closing previous document: %v", err)
	}

	server := req.Document
	serverHasContent := server != nil
	if server == nil {
		server = model.NewDocument()
	}
	if err := server.Validate(); err != nil {
		return err
	}
	doc := server.Clone()

	draftApplied := false
	if d, ok, err := s.cache.ReadDraft(ctx, req.ArticleID); err != nil {
		s.logger.Printf("session %s: read draft: %v", req.ArticleID, err)
	} else if ok {
		if autosave.ShouldApplyDraft(serverHasContent, req.ServerUpdatedAt, d) {
			if restored, err := model.ParseDocument(d.Content); err != nil {
				s.logger.Printf("session %s: draft unreadable, discarded: %v", req.ArticleID, err)
			} else {
				doc = restored
				draftApplied = true
			}
		}
		if !draftApplied {
			if err := s.cache.ClearDraft(ctx, req.ArticleID); err != nil {
				s.logger.Printf("session %s: clear draft: %v", req.ArticleID, err)
			}
		}
	}

	tracker := dirty.NewTracker()
	tracker.Commit(server)

	s.mu.Lock()
	s.generation++
	s.open = true
	s.articleID = req.ArticleID
	s.encrypted = req.Encrypted
	s.hasKey = req.HasKey
	s.doc = doc
	s.engine = outline.NewEngine(doc, s.engineOptions()...)
	s.gate = editmode.NewGate(s.gateOptions()...)
	s.tracker = tracker
	s.reported = make(map[string]string)
	s.active = doc.Roots()[0]
	var changed []string
	if draftApplied {
		for _, id := range doc.Order() {
			if s.markLocked(id) {
				changed = append(changed, id)
			}
		}
		tracker.MarkStructure(doc)
	}
	coord, err := autosave.NewCoordinator(s.opts.Persister, (*source)(s), autosave.Options{
		ArticleID:         req.ArticleID,
		Drafts:            s.cache,
		Queue:             s.cache,
		Sequences:         s.cache,
		Clock:             s.clock,
		Logger:            s.logger,
		LeaveDelay:        s.opts.LeaveDelay,
		TypingDelay:       s.opts.TypingDelay,
		RetryDelay:        s.opts.RetryDelay,
		StaleVersionHours: s.opts.StaleVersionHours,
		Dispatch:          s.opts.Dispatch,
		OnStatus:          s.opts.OnStatus,
	})
	if err != nil {
		s.resetLocked()
		s.mu.Unlock()
		return err
	}
	s.coord = coord
	s.mu.Unlock()

	s.sectionsChanged(changed)
	if draftApplied {
		coord.ScheduleLeave()
	}
	// queued work from an earlier session goes out right after mount
	if err := coord.FlushQueue(ctx); err != nil && !errors.Is(err, autosave.ErrSaveInFlight) {
		s.logger.Printf("session %s: flush queue: %v", req.ArticleID, err)
	}
	return nil
}

func (s *Session) engineOptions() []outline.Option {
	if s.opts.NewID == nil {
		return nil
	}
	return []outline.Option{outline.WithIDGenerator(s.opts.NewID)}
}

func (s *Session) gateOptions() []editmode.Option {
	opts := []editmode.Option{editmode.WithClock(s.clock.Now)}
	if s.opts.ConfirmWindow > 0 {
		opts = append(opts, editmode.WithConfirmWindow(s.opts.ConfirmWindow))
	}
	if s.opts.HintInterval > 0 {
		opts = append(opts, editmode.WithHintInterval(s.opts.HintInterval))
	}
	return opts
}

// Close stops autosave, makes one final save attempt and forgets the
// document. A request already sent is not cancelled; its result is ignored.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	coord := s.coord
	s.mu.Unlock()

	err := coord.Close(ctx)

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return err
}

func (s *Session) resetLocked() {
	s.generation++
	s.open = false
	s.articleID = ""
	s.doc = nil
	s.engine = nil
	s.gate = nil
	if s.tracker != nil {
		s.tracker.Reset()
	}
	s.tracker = nil
	s.coord = nil
	s.active = ""
	s.reported = nil
	s.encrypted = false
	s.hasKey = false
}

// IsOpen reports whether a document is open
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// ArticleID returns the id of the open document
func (s *Session) ArticleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articleID
}

// Document returns a copy of the open document
func (s *Session) Document() (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	return s.doc.Clone(), nil
}

// Active returns the id of the focused section
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Mode returns the edit-mode state
func (s *Session) Mode() editmode.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return editmode.State{}
	}
	return s.gate.State()
}

// Status returns the autosave status
func (s *Session) Status() autosave.Status {
	s.mu.Lock()
	coord := s.coord
	s.mu.Unlock()
	if coord == nil {
		return autosave.StatusIdle
	}
	return coord.Status()
}

// Dirty returns the ids of sections with unsaved content
func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	return s.tracker.Dirty()
}

// Save runs a save now, including the still-active section
func (s *Session) Save(ctx context.Context) error {
	coord, err := s.coordinator()
	if err != nil {
		return err
	}
	return coord.Run(ctx, true)
}

// OnOnline retries queued operations after connectivity returns
func (s *Session) OnOnline(ctx context.Context) {
	coord, err := s.coordinator()
	if err != nil {
		return
	}
	if err := coord.FlushQueue(ctx); err != nil && !errors.Is(err, autosave.ErrSaveInFlight) {
		s.logger.Printf("session %s: flush queue: %v", coord.ArticleID(), err)
	}
	if s.hasDirty() {
		coord.ScheduleLeave()
	}
}

// OnBackground saves everything now: the window is hidden or lost focus,
// which often comes right before the network or the process goes away
func (s *Session) OnBackground(ctx context.Context) {
	coord, err := s.coordinator()
	if err != nil {
		return
	}
	if err := coord.Run(ctx, true); err != nil && !errors.Is(err, autosave.ErrSaveInFlight) {
		s.logger.Printf("session %s: background save: %v", coord.ArticleID(), err)
	}
}

func (s *Session) coordinator() (*autosave.Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	return s.coord, nil
}

func (s *Session) hasDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && (s.tracker.IsDirty() || s.tracker.MarkStructure(s.doc))
}

func (s *Session) sectionsChanged(ids []string) {
	if s.opts.OnSectionChanged == nil {
		return
	}
	for _, id := range ids {
		s.opts.OnSectionChanged(id)
	}
}

// source is the Session as seen by its autosave coordinator
type source Session

func (src *source) Capture(force bool) (autosave.Capture, bool) {
	s := (*Session)(src)
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return autosave.Capture{}, false
	}
	// the active section may never have been left before this save
	var changed []string
	if s.active != "" && s.markLocked(s.active) {
		changed = append(changed, s.active)
	}
	s.tracker.MarkStructure(s.doc)
	if !force && !s.tracker.IsDirty() {
		s.mu.Unlock()
		s.sectionsChanged(changed)
		return autosave.Capture{}, false
	}
	c := autosave.Capture{
		ArticleID:  s.articleID,
		Generation: s.generation,
		Document:   s.doc.Clone(),
		Marks:      s.tracker.Capture(s.doc),
		Encrypted:  s.encrypted,
		HasKey:     s.hasKey,
	}
	s.mu.Unlock()
	s.sectionsChanged(changed)
	return c, true
}

func (src *source) Committed(c autosave.Capture) {
	s := (*Session)(src)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || c.ArticleID != s.articleID || c.Generation != s.generation {
		return
	}
	s.tracker.CommitCapture(c.Marks, s.doc)
}

func (src *source) Current(articleID string, generation uint64) bool {
	s := (*Session)(src)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.articleID == articleID && s.generation == generation
}
