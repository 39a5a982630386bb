package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/Kammelleon/pdf-qa/internal/models"
)

var (
	ErrEmptyInput  = errors.New("question is empty")
	ErrNoDocument  = errors.New("no document uploaded")
	ErrBusy        = errors.New("answer already in progress")
	ErrSuperseded  = errors.New("document replaced while awaiting answer")
	errNotAwaiting = errors.New("no question in flight")
)

// Code maps a rejection to its stable reason code, or "" for other errors.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return "EMPTY_INPUT"
	case errors.Is(err, ErrNoDocument):
		return "NO_DOCUMENT"
	case errors.Is(err, ErrBusy):
		return "BUSY"
	case errors.Is(err, ErrSuperseded):
		return "SUPERSEDED"
	default:
		return ""
	}
}

// State is the dialogue for one document handle. Transitions return a
// new State and never modify the receiver's turns.
type State struct {
	Handle   string
	Turns    []models.Turn
	Awaiting bool
	nextID   int64
}

// NewState opens an empty dialogue for handle.
func NewState(handle string) State {
	return State{Handle: handle, nextID: 1}
}

// Idle reports whether a new question may be sent.
func (s State) Idle() bool { return !s.Awaiting }

// Begin records the user's question and enters AwaitingResponse.
// Empty input is rejected first, whatever the state.
func (s State) Begin(text string, at time.Time) (State, models.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return s, models.Turn{}, ErrEmptyInput
	}
	if s.Handle == "" {
		return s, models.Turn{}, ErrNoDocument
	}
	if s.Awaiting {
		return s, models.Turn{}, ErrBusy
	}
	turn := s.newTurn(models.RoleUser, text, at)
	next := s.appended(turn)
	next.Awaiting = true
	return next, turn, nil
}

// Complete appends the assistant answer and returns to Idle.
func (s State) Complete(answer string, at time.Time) (State, models.Turn, error) {
	if !s.Awaiting {
		return s, models.Turn{}, errNotAwaiting
	}
	turn := s.newTurn(models.RoleAssistant, answer, at)
	next := s.appended(turn)
	next.Awaiting = false
	return next, turn, nil
}

// Fail returns to Idle without an assistant turn.
func (s State) Fail() (State, error) {
	if !s.Awaiting {
		return s, errNotAwaiting
	}
	s.Awaiting = false
	return s, nil
}

// Clone copies the turns so the result shares nothing with s.
func (s State) Clone() State {
	out := s
	out.Turns = append([]models.Turn(nil), s.Turns...)
	return out
}

func (s State) newTurn(role models.Role, text string, at time.Time) models.Turn {
	return models.Turn{
		ID:        s.nextID,
		Role:      role,
		Text:      text,
		CreatedAt: at,
		Status:    models.TurnComplete,
	}
}

func (s State) appended(t models.Turn) State {
	n := len(s.Turns)
	// full slice expression forces a copy on append
	s.Turns = append(s.Turns[:n:n], t)
	s.nextID++
	return s
}
