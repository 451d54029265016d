// Package session tracks one production run: its id, its state machine,
// and the durable ledger of past runs.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a pipeline phase.
type State string

const (
	StateChunking     State = "CHUNKING"
	StateSynthesizing State = "SYNTHESIZING"
	StateMerging      State = "MERGING"
	StateEditing      State = "EDITING"
	StateAssembling   State = "ASSEMBLING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// ErrInvalidTransition is returned for an edge the state machine forbids.
var ErrInvalidTransition = errors.New("invalid session transition")

var forward = map[State]State{
	StateChunking:     StateSynthesizing,
	StateSynthesizing: StateMerging,
	StateMerging:      StateEditing,
	StateEditing:      StateAssembling,
	StateAssembling:   StateDone,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event is one recorded transition.
type Event struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Session is a single run. It is passed explicitly to every phase.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	chunkCount int
	outputs    int
	err        error
	history    []Event
	now        func() time.Time
}

// New starts a session in CHUNKING. An empty id is generated from now.
func New(id string, now time.Time) (*Session, error) {
	if id == "" {
		id = NewID(now)
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		CreatedAt: now.UTC(),
		state:     StateChunking,
		now:       time.Now,
	}, nil
}

// NewID returns TT-<yyyymmdd>-<8 hex>.
func NewID(t time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("TT-%s-%x", t.UTC().Format("20060102"), u[:4])
}

// ValidateID rejects ids that cannot be used as a key or file name.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("session id %q contains path characters", id)
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure cause once the session is FAILED.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount
}

func (s *Session) SetChunkCount(n int) {
	s.mu.Lock()
	s.chunkCount = n
	s.mu.Unlock()
}

// SetOutputs records how many artifacts the current phase kept.
// SYNTHESIZING and EDITING may only fail with zero outputs.
func (s *Session) SetOutputs(n int) {
	s.mu.Lock()
	s.outputs = n
	s.mu.Unlock()
}

// Transition moves the session to the next state.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

// Fail moves the session to FAILED and records cause.
func (s *Session) Fail(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(StateFailed); err != nil {
		return err
	}
	s.err = cause
	return nil
}

// Abort moves any non-terminal session to FAILED regardless of the outputs
// the current phase kept. It is for failures the phase did not cause:
// a partial-failure policy or cancellation.
func (s *Session) Abort(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateFailed)
	}
	s.outputs = 0
	if err := s.transitionLocked(StateFailed); err != nil {
		return err
	}
	s.err = cause
	return nil
}

func (s *Session) transitionLocked(to State) error {
	from := s.state
	if !s.allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.state = to
	s.outputs = 0
	s.history = append(s.history, Event{From: from, To: to, At: s.now().UTC()})
	return nil
}

func (s *Session) allowed(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		switch from {
		case StateSynthesizing, StateEditing:
			return s.outputs == 0
		default:
			return true
		}
	}
	return forward[from] == to
}

// History returns a copy of the recorded transitions.
func (s *Session) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.history...)
}
