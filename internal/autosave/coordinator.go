// Package autosave schedules saves of an open document, chooses how much of
// it to send and keeps unsent work in a local cache until it can be delivered.
package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Default delays
const (
	DefaultLeaveDelay  = 300 * time.Millisecond
	DefaultTypingDelay = 1500 * time.Millisecond
	DefaultRetryDelay  = 5 * time.Second
)

// Source is the open document as seen by the coordinator
type Source interface {
	// Capture finalizes pending edits and returns what a save should send.
	// ok is false when nothing is dirty and force is not set.
	Capture(force bool) (c Capture, ok bool)
	// Committed records a capture as saved
	Committed(c Capture)
	// Current reports whether articleID at generation is still the open
	// document
	Current(articleID string, generation uint64) bool
}

// Options configures a Coordinator
type Options struct {
	ArticleID string
	Drafts    DraftCache
	Queue     QueueStore
	Sequences SequenceStore
	Clock     Clock
	Logger    Logger

	LeaveDelay        time.Duration
	TypingDelay       time.Duration
	RetryDelay        time.Duration
	StaleVersionHours int

	// Dispatch runs saves started by timers and follow-ups. Defaults to a
	// new goroutine.
	Dispatch func(func())
	// OnStatus is called whenever the status changes, without locks held
	OnStatus func(Status)
}

// Coordinator debounces and runs the saves of one document. At most one save
// is in flight at a time.
type Coordinator struct {
	persister Persister
	source    Source
	articleID string
	drafts    DraftCache
	queue     QueueStore
	seqs      SequenceStore
	clock     Clock
	logger    Logger
	dispatch  func(func())
	onStatus  func(Status)

	leaveDelay  time.Duration
	typingDelay time.Duration
	retryDelay  time.Duration
	staleHours  int

	mu           sync.Mutex
	timer        Timer
	inFlight     bool
	idle         chan struct{}
	pending      bool
	pendingForce bool
	stopped      bool
	status       Status
}

// NewCoordinator creates a coordinator for a single document
func NewCoordinator(persister Persister, source Source, opts Options) (*Coordinator, error) {
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	articleID := strings.TrimSpace(opts.ArticleID)
	if articleID == "" {
		return nil, fmt.Errorf("article id is required")
	}
	c := &Coordinator{
		persister:   persister,
		source:      source,
		articleID:   articleID,
		drafts:      opts.Drafts,
		queue:       opts.Queue,
		seqs:        opts.Sequences,
		clock:       opts.Clock,
		logger:      opts.Logger,
		dispatch:    opts.Dispatch,
		onStatus:    opts.OnStatus,
		leaveDelay:  opts.LeaveDelay,
		typingDelay: opts.TypingDelay,
		retryDelay:  opts.RetryDelay,
		staleHours:  opts.StaleVersionHours,
	}
	if c.drafts == nil || c.queue == nil || c.seqs == nil {
		mem := NewMemoryStore()
		if c.drafts == nil {
			c.drafts = mem
		}
		if c.queue == nil {
			c.queue = mem
		}
		if c.seqs == nil {
			c.seqs = mem
		}
	}
	if c.clock == nil {
		c.clock = RealClock()
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.dispatch == nil {
		c.dispatch = func(f func()) { go f() }
	}
	if c.leaveDelay <= 0 {
		c.leaveDelay = DefaultLeaveDelay
	}
	if c.typingDelay <= 0 {
		c.typingDelay = DefaultTypingDelay
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	return c, nil
}

// ArticleID returns the id of the document being saved
func (c *Coordinator) ArticleID() string {
	return c.articleID
}

// Status returns the current save status
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Schedule (re)starts the single debounce timer. A running timer is cancelled.
func (c *Coordinator) Schedule(delay time.Duration) {
	c.schedule(delay, true)
}

func (c *Coordinator) schedule(delay time.Duration, announce bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	var t Timer
	t = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.timer == t {
			c.timer = nil
		}
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}
		if err := c.Run(context.Background(), false); err != nil && !errors.Is(err, ErrSaveInFlight) {
			c.logger.Printf("autosave %s: %v", c.articleID, err)
		}
	})
	c.timer = t
	changed := announce && c.setStatusLocked(StatusScheduled)
	c.mu.Unlock()
	c.notify(changed, StatusScheduled)
}

// ScheduleLeave schedules the short save that follows leaving a section
func (c *Coordinator) ScheduleLeave() {
	c.Schedule(c.leaveDelay)
}

// ScheduleTyping schedules the longer save used while the user types
func (c *Coordinator) ScheduleTyping() {
	c.Schedule(c.typingDelay)
}

// Run saves the document now. It is a no-op when nothing is dirty unless
// force is set. While another save is in flight it returns ErrSaveInFlight
// and the request runs after that save resolves.
func (c *Coordinator) Run(ctx context.Context, force bool) error {
	if !c.acquire(force) {
		return ErrSaveInFlight
	}
	err := c.run(ctx, force)
	c.release()
	return err
}

// FlushQueue retries the operations queued for this document
func (c *Coordinator) FlushQueue(ctx context.Context) error {
	if !c.acquire(false) {
		return ErrSaveInFlight
	}
	err := c.flush(ctx)
	c.release()
	return err
}

// Stop cancels the debounce timer and prevents new scheduled saves. It does
// not interrupt a save in flight.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Close stops the coordinator, waits for a save in flight and makes one last
// forced save attempt
func (c *Coordinator) Close(ctx context.Context) error {
	c.Stop()
	for {
		if err := c.wait(ctx); err != nil {
			return err
		}
		err := c.Run(ctx, true)
		if !errors.Is(err, ErrSaveInFlight) {
			return err
		}
	}
}

func (c *Coordinator) wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) acquire(force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		c.pending = true
		c.pendingForce = c.pendingForce || force
		return false
	}
	c.inFlight = true
	c.idle = make(chan struct{})
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.inFlight = false
	close(c.idle)
	c.idle = nil
	rerun := c.pending && !c.stopped
	force := c.pendingForce
	c.pending = false
	c.pendingForce = false
	c.mu.Unlock()

	if rerun {
		c.dispatch(func() {
			if err := c.Run(context.Background(), force); err != nil && !errors.Is(err, ErrSaveInFlight) {
				c.logger.Printf("autosave %s: %v", c.articleID, err)
			}
		})
	}
}

func (c *Coordinator) run(ctx context.Context, force bool) error {
	capture, ok := c.source.Capture(force)
	if !ok {
		if force {
			return c.flush(ctx)
		}
		return nil
	}
	if capture.Skipped() {
		c.logger.Printf("autosave %s: encrypted document without key, not saved", capture.ArticleID)
		c.setStatus(StatusSkipped)
		return nil
	}

	c.setStatus(StatusSaving)
	ops, err := Plan(ctx, capture, c.seqs, c.staleHours, c.clock.Now())
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("plan save: %w", err)
	}

	offline := false
	for i, op := range ops {
		outcome, err := Deliver(ctx, c.persister, op)
		if err != nil {
			return c.fail(ctx, capture, ops[i:], err)
		}
		if outcome == QueuedOffline {
			offline = true
		}
	}

	if !c.source.Current(capture.ArticleID, capture.Generation) {
		c.logger.Printf("autosave %s: document changed while saving, result ignored", capture.ArticleID)
		return nil
	}
	c.source.Committed(capture)

	if offline {
		// the transport holds the change; keep a draft until it is confirmed
		if err := c.writeDraft(ctx, capture); err != nil {
			c.logger.Printf("autosave %s: write draft: %v", capture.ArticleID, err)
		}
		c.setStatus(StatusOffline)
	} else {
		if err := c.drafts.ClearDraft(ctx, capture.ArticleID); err != nil {
			c.logger.Printf("autosave %s: clear draft: %v", capture.ArticleID, err)
		}
		c.setStatus(StatusSaved)
	}

	if err := c.dropSuperseded(ctx, ops); err != nil {
		c.logger.Printf("autosave %s: prune queue: %v", capture.ArticleID, err)
	}
	return c.flush(ctx)
}

// fail keeps the unsent work locally and schedules a retry
func (c *Coordinator) fail(ctx context.Context, capture Capture, unsent []QueuedOperation, cause error) error {
	c.logger.Printf("autosave %s: save failed: %v", capture.ArticleID, cause)

	if err := c.writeDraft(ctx, capture); err != nil {
		c.logger.Printf("autosave %s: write draft: %v", capture.ArticleID, err)
	}
	for _, op := range unsent {
		if err := c.queue.Enqueue(ctx, op); err != nil {
			c.logger.Printf("autosave %s: queue %s: %v", capture.ArticleID, op.CoalesceKey, err)
		}
	}

	if !c.source.Current(capture.ArticleID, capture.Generation) {
		return fmt.Errorf("save %s: %w", capture.ArticleID, cause)
	}
	c.setStatus(StatusError)
	c.schedule(c.retryDelay, false)
	return fmt.Errorf("save %s: %w", capture.ArticleID, cause)
}

func (c *Coordinator) writeDraft(ctx context.Context, capture Capture) error {
	content, err := json.Marshal(capture.Document)
	if err != nil {
		return err
	}
	return c.drafts.WriteDraft(ctx, capture.ArticleID, content, c.clock.Now())
}

func (c *Coordinator) dropSuperseded(ctx context.Context, delivered []QueuedOperation) error {
	queued, err := c.queue.Pending(ctx, c.articleID)
	if err != nil {
		return err
	}
	var keys []string
	for _, q := range queued {
		for _, op := range delivered {
			if Supersedes(op, q) {
				keys = append(keys, q.CoalesceKey)
				break
			}
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.queue.Remove(ctx, c.articleID, keys...)
}

// flush delivers queued operations in order and stops at the first failure
func (c *Coordinator) flush(ctx context.Context) error {
	queued, err := c.queue.Pending(ctx, c.articleID)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(queued) == 0 {
		return nil
	}
	SortForDelivery(queued)

	offline := false
	for _, op := range queued {
		outcome, err := Deliver(ctx, c.persister, op)
		if err != nil {
			c.setStatus(StatusOffline)
			return fmt.Errorf("flush %s: %w", op.CoalesceKey, err)
		}
		if outcome == QueuedOffline {
			offline = true
		}
		if err := c.queue.Remove(ctx, c.articleID, op.CoalesceKey); err != nil {
			return fmt.Errorf("remove %s: %w", op.CoalesceKey, err)
		}
		if op.Kind == KindSaveDoc && outcome == Delivered {
			if err := c.drafts.ClearDraft(ctx, c.articleID); err != nil {
				c.logger.Printf("autosave %s: clear draft: %v", c.articleID, err)
			}
		}
	}
	if offline {
		c.setStatus(StatusOffline)
	} else {
		c.setStatus(StatusSaved)
	}
	return nil
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	changed := c.setStatusLocked(s)
	c.mu.Unlock()
	c.notify(changed, s)
}

func (c *Coordinator) setStatusLocked(s Status) bool {
	if c.status == s {
		return false
	}
	c.status = s
	return true
}

func (c *Coordinator) notify(changed bool, s Status) {
	if changed && c.onStatus != nil {
		c.onStatus(s)
	}
}
