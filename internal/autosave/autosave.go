// Package autosave coalesces rapid story edits into debounced writes.
//
// Every edit replaces the in-memory story at once and re-arms a per-story
// timer. Only when the timer runs out without another edit is the latest
// story written, so intermediate edits inside the window are never persisted.
package autosave

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/adieyal/pocketreporter2/internal/log"
	"github.com/adieyal/pocketreporter2/internal/store"
)

// DefaultDebounce is the quiet period before an edit is written.
const DefaultDebounce = time.Second

var (
	ErrNotOpen = errors.New("story is not open for editing")
	ErrClosed  = errors.New("autosave controller closed")
)

// State is the per-story write state.
type State int

const (
	// Idle: the store holds the latest edit.
	Idle State = iota
	// Dirty: there are unsaved edits and no timer is armed, either transiently
	// or because the last write failed.
	Dirty
	// Scheduled: a timer is armed to write the latest edit.
	Scheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case Scheduled:
		return "scheduled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	Debounce time.Duration
	Clock    clockwork.Clock
	// OnError is called when a timed write fails. Errors are also logged.
	OnError func(storyUUID string, err error)
	// OnSaved is called after every successful write with the stored story.
	OnSaved func(story *store.Story)
}

type entry struct {
	state     State
	story     *store.Story
	timer     clockwork.Timer
	gen       uint64
	persisted uint64
}

// Controller owns the in-memory copy of every open story.
type Controller struct {
	store    store.Storer
	clock    clockwork.Clock
	debounce time.Duration
	onError  func(string, error)
	onSaved  func(*store.Story)

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	// writeMu keeps at most one write in flight.
	writeMu sync.Mutex

	writes    atomic.Int64
	coalesced atomic.Int64
}

func New(st store.Storer, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Controller{
		store:    st,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		onError:  opts.OnError,
		onSaved:  opts.OnSaved,
		entries:  make(map[string]*entry),
	}
}

// Open loads a story into the controller. Opening an already open story
// returns the in-memory copy.
func (c *Controller) Open(storyUUID string) (*store.Story, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if e, ok := c.entries[storyUUID]; ok {
		return e.story.Clone(), nil
	}
	story, err := c.store.GetStoryByUUID(storyUUID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, fmt.Errorf("story %s: %w", storyUUID, store.ErrNotFound)
	}
	c.entries[storyUUID] = &entry{state: Idle, story: story}
	return story.Clone(), nil
}

// Current returns the latest in-memory version of an open story.
func (c *Controller) Current(storyUUID string) (*store.Story, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[storyUUID]
	if !ok {
		return nil, false
	}
	return e.story.Clone(), true
}

// State reports the write state of a story. Stories not open are Idle.
func (c *Controller) State(storyUUID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[storyUUID]; ok {
		return e.state
	}
	return Idle
}

func (c *Controller) UpdateHeadline(storyUUID, headline string) error {
	return c.mutate(storyUUID, func(s *store.Story, now time.Time) error {
		s.Headline = headline
		return nil
	})
}

// UpdateAnswer sets the answer to one question of the story's snapshot.
func (c *Controller) UpdateAnswer(storyUUID, questionID string, value store.AnswerValue) error {
	return c.mutate(storyUUID, func(s *store.Story, now time.Time) error {
		q, ok := s.TemplateSnapshot.Question(questionID)
		if !ok {
			return fmt.Errorf("%w: question %q is not part of this story", store.ErrInvalidStory, questionID)
		}
		if q.IsTip {
			return fmt.Errorf("%w: question %q is a tip and takes no answer", store.ErrInvalidStory, questionID)
		}
		if s.Answers == nil {
			s.Answers = make(map[string]store.Answer)
		}
		s.Answers[questionID] = store.Answer{QuestionID: questionID, Value: value, UpdatedAt: now}
		return nil
	})
}

func (c *Controller) SetStatus(storyUUID string, status store.Status) error {
	return c.mutate(storyUUID, func(s *store.Story, now time.Time) error {
		s.Status = status
		return nil
	})
}

// Edit replaces the whole story. The story is opened implicitly if needed.
func (c *Controller) Edit(story *store.Story) error {
	if story == nil {
		return fmt.Errorf("%w: nil story", store.ErrInvalidStory)
	}
	if err := story.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	e, ok := c.entries[story.UUID]
	if !ok {
		e = &entry{}
		c.entries[story.UUID] = e
	}
	next := story.Clone()
	next.UpdatedAt = store.NormalizeTime(c.clock.Now())
	if e.story != nil {
		next.ID = e.story.ID
	}
	e.story = next
	c.schedule(story.UUID, e)
	return nil
}

func (c *Controller) mutate(storyUUID string, fn func(s *store.Story, now time.Time) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	e, ok := c.entries[storyUUID]
	if !ok {
		return fmt.Errorf("story %s: %w", storyUUID, ErrNotOpen)
	}
	now := store.NormalizeTime(c.clock.Now())
	next := e.story.Clone()
	if err := fn(next, now); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now
	e.story = next
	c.schedule(storyUUID, e)
	return nil
}

// schedule moves e through Dirty to Scheduled, superseding any armed timer.
// Caller holds c.mu.
func (c *Controller) schedule(storyUUID string, e *entry) {
	e.state = Dirty
	if e.timer != nil && e.timer.Stop() {
		c.coalesced.Inc()
	}
	e.gen++
	gen := e.gen
	e.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(storyUUID, gen) })
	e.state = Scheduled
}

func (c *Controller) fire(storyUUID string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[storyUUID]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	e.timer = nil
	snapshot := e.story.Clone()
	c.mu.Unlock()

	if err := c.write(storyUUID, snapshot, gen); err != nil {
		log.Errorf("autosave: write of story %s failed: %v", storyUUID, err)
		if c.onError != nil {
			c.onError(storyUUID, err)
		}
	}
}

// write persists snapshot unless a newer generation has already been written.
func (c *Controller) write(storyUUID string, snapshot *store.Story, gen uint64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if e, ok := c.entries[storyUUID]; ok && e.persisted >= gen {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.store.PutStory(snapshot)

	c.mu.Lock()
	e, ok := c.entries[storyUUID]
	if ok {
		if err != nil {
			if e.gen == gen {
				e.state = Dirty
			}
		} else {
			e.persisted = gen
			e.story.ID = snapshot.ID
			if e.gen == gen {
				e.state = Idle
			}
		}
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.writes.Inc()
	log.Debugf("autosave: wrote story %s (generation %d)", storyUUID, gen)
	if c.onSaved != nil {
		c.onSaved(snapshot)
	}
	return nil
}

// Flush writes a story's pending edit now, cancelling its timer. It also
// retries a story left Dirty by a failed write.
func (c *Controller) Flush(storyUUID string) error {
	c.mu.Lock()
	e, ok := c.entries[storyUUID]
	if !ok || e.state == Idle {
		c.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	gen := e.gen
	snapshot := e.story.Clone()
	c.mu.Unlock()

	return c.write(storyUUID, snapshot, gen)
}

// FlushAll flushes every open story and returns all failures together.
func (c *Controller) FlushAll() error {
	c.mu.Lock()
	uuids := make([]string, 0, len(c.entries))
	for uuid, e := range c.entries {
		if e.state != Idle {
			uuids = append(uuids, uuid)
		}
	}
	c.mu.Unlock()

	var errs *multierror.Error
	for _, uuid := range uuids {
		if err := c.Flush(uuid); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("story %s: %w", uuid, err))
		}
	}
	return errs.ErrorOrNil()
}

// Release flushes a story and forgets it. An edit that lands while the flush
// is in flight is flushed too; the entry is only dropped once it is Idle.
func (c *Controller) Release(storyUUID string) error {
	for {
		if err := c.Flush(storyUUID); err != nil {
			return err
		}
		c.mu.Lock()
		e, ok := c.entries[storyUUID]
		if !ok || e.state == Idle {
			delete(c.entries, storyUUID)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}
}

// Close flushes everything and rejects further edits.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.FlushAll()
}

// Stats returns the number of writes performed and edits coalesced away.
func (c *Controller) Stats() (writes, coalesced int64) {
	return c.writes.Load(), c.coalesced.Load()
}
