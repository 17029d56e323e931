// Package race bounds how many competing rules may win. A session is
// opened with the number of winners it accepts; rules register during the
// session and report wins with their Token. Wins reported while the session
// is open are only queued. Ending the session replays the queue, and from
// then on each report is final: once the required number of winners is
// reached, every other participant is cancelled exactly once.
package race

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrInvalidAction is returned by Do for an unknown action.
	ErrInvalidAction = errors.New("race: invalid action")
	// ErrSessionActive is returned by Start while a session is open.
	ErrSessionActive = errors.New("race: session already active")
	// ErrInvalidWinners is returned by Start when fewer than one winner is
	// required.
	ErrInvalidWinners = errors.New("race: required winners must be at least 1")
)

// Hooks observe session outcomes. Each hook runs outside the coordinator
// lock.
type Hooks struct {
	Won       func(name string)
	Cancelled func(name string)
}

// Coordinator owns at most one active session. Safe for concurrent use.
type Coordinator struct {
	mu     sync.Mutex
	active *session
	nextID uint64
	hooks  Hooks
	logger *slog.Logger
}

type session struct {
	c            *Coordinator
	remaining    int
	participants map[uint64]participant
	order        []uint64
	pending      []uint64
}

type participant struct {
	name   string
	cancel func()
}

// Token identifies one participant of one session. The zero Token is a
// no-op.
type Token struct {
	s  *session
	id uint64
}

// New creates a Coordinator. A nil logger uses slog.Default().
func New(logger *slog.Logger, hooks Hooks) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, hooks: hooks}
}

// Do dispatches the textual action vocabulary: "start" opens a session
// requiring n winners; "end", "finish" and "stop" close it.
func (c *Coordinator) Do(action string, n int) error {
	switch action {
	case "start":
		return c.Start(n)
	case "end", "finish", "stop":
		c.End()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidAction, action)
}

// Start opens a session requiring n winners.
func (c *Coordinator) Start(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWinners, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return ErrSessionActive
	}
	c.active = &session{
		c:            c,
		remaining:    n,
		participants: make(map[uint64]participant),
	}
	c.logger.Debug("race: session started", "winners", n)
	return nil
}

// Active reports whether a session is open.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Register adds a participant to the open session. Without a session it
// returns the zero Token. cancel runs at most once, when the participant
// loses.
func (c *Coordinator) Register(name string, cancel func()) Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active
	if s == nil {
		return Token{}
	}
	c.nextID++
	id := c.nextID
	s.participants[id] = participant{name: name, cancel: cancel}
	s.order = append(s.order, id)
	return Token{s: s, id: id}
}

// End closes the open session and settles the wins queued during it.
// Without a session End does nothing.
func (c *Coordinator) End() {
	c.mu.Lock()
	s := c.active
	if s == nil {
		c.mu.Unlock()
		return
	}
	c.active = nil
	pending := s.pending
	s.pending = nil
	c.mu.Unlock()

	c.logger.Debug("race: session ended", "queued", len(pending))
	for _, id := range pending {
		c.Report(Token{s: s, id: id})
	}
}

// Report records a win for tok.
func (c *Coordinator) Report(tok Token) {
	s := tok.s
	if s == nil || s.c != c {
		return
	}

	c.mu.Lock()
	if s.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	if c.active == s {
		s.pending = append(s.pending, tok.id)
		c.mu.Unlock()
		return
	}
	p, ok := s.participants[tok.id]
	if !ok {
		// Already settled: a participant wins once.
		c.mu.Unlock()
		return
	}
	delete(s.participants, tok.id)
	s.remaining--

	var losers []participant
	if s.remaining == 0 {
		for _, id := range s.order {
			if lp, ok := s.participants[id]; ok {
				losers = append(losers, lp)
			}
		}
		clear(s.participants)
		s.order = nil
	}
	c.mu.Unlock()

	if c.hooks.Won != nil {
		c.hooks.Won(p.name)
	}
	for _, lp := range losers {
		c.logger.Debug("race: cancelling participant", "name", lp.name)
		if lp.cancel != nil {
			lp.cancel()
		}
		if c.hooks.Cancelled != nil {
			c.hooks.Cancelled(lp.name)
		}
	}
}

// Win reports a win for the token. The zero Token does nothing.
func (t Token) Win() {
	if t.s == nil {
		return
	}
	t.s.c.Report(t)
}

// IsZero reports whether t is the no-op token.
func (t Token) IsZero() bool { return t.s == nil }
