package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/backend"
	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/notify"
)

const (
	msgEmptyQuestion  = "Please enter a question"
	msgNoDocument     = "Please upload a PDF file first"
	msgAnswerFallback = "Error getting answer"
)

// Asker sends one question to the answering service.
type Asker interface {
	Ask(ctx context.Context, q models.Question) (string, error)
}

// Observer is told about every dispatched question.
type Observer interface {
	QuestionStarted()
	QuestionFinished(outcome string, elapsed time.Duration)
}

const (
	OutcomeAnswered   = "answered"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// Options carries optional collaborators.
type Options struct {
	Observer Observer
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Orchestrator owns the dialogue for the current document handle. The
// mutex guards transitions only; it is never held across a request.
type Orchestrator struct {
	asker    Asker
	notifier notify.Sink
	observer Observer
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
	epoch uint64 // bumped on every handle replacement
}

// NewOrchestrator starts with no document.
func NewOrchestrator(asker Asker, notifier notify.Sink, opts Options) *Orchestrator {
	if notifier == nil {
		notifier = notify.Discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Orchestrator{
		asker:    asker,
		notifier: notifier,
		observer: opts.Observer,
		log:      log,
		now:      now,
		state:    NewState(""),
	}
}

// ReplaceHandle discards the current dialogue and opens an empty one for
// handle. An answer still in flight for the old handle will be dropped.
func (o *Orchestrator) ReplaceHandle(handle string) {
	o.mu.Lock()
	o.epoch++
	dropped := len(o.state.Turns)
	o.state = NewState(handle)
	o.mu.Unlock()
	o.log.Debug().Str("handle", handle).Int("dropped_turns", dropped).Msg("session replaced")
}

// Submit runs one question/answer round trip and returns the assistant
// turn. Rejections (ErrEmptyInput, ErrNoDocument, ErrBusy) never reach the
// network; the first two are also notified.
func (o *Orchestrator) Submit(ctx context.Context, text string) (*models.Turn, error) {
	o.mu.Lock()
	next, userTurn, err := o.state.Begin(text, o.now())
	if err != nil {
		o.mu.Unlock()
		switch {
		case errors.Is(err, ErrEmptyInput):
			o.notifier.Notify(msgEmptyQuestion, notify.SeverityError)
		case errors.Is(err, ErrNoDocument):
			o.notifier.Notify(msgNoDocument, notify.SeverityError)
		}
		return nil, err
	}
	o.state = next
	epoch := o.epoch
	handle := next.Handle
	o.mu.Unlock()

	if o.observer != nil {
		o.observer.QuestionStarted()
	}
	started := o.now()
	o.log.Debug().Int64("turn", userTurn.ID).Str("handle", handle).Msg("question dispatched")

	var answer string
	if o.asker == nil {
		err = errors.New("question service not configured")
	} else {
		answer, err = o.asker.Ask(ctx, models.Question{Text: userTurn.Text, Handle: handle})
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		o.finish(OutcomeSuperseded, started)
		return nil, ErrSuperseded
	}
	if err != nil {
		o.state, _ = o.state.Fail()
		o.mu.Unlock()
		o.finish(OutcomeFailed, started)
		o.log.Warn().Err(err).Str("handle", handle).Msg("get answer failed")
		o.notifier.Notify(backend.MessageOr(err, msgAnswerFallback), notify.SeverityError)
		return nil, err
	}
	var aiTurn models.Turn
	o.state, aiTurn, _ = o.state.Complete(answer, o.now())
	o.mu.Unlock()
	o.finish(OutcomeAnswered, started)
	return &aiTurn, nil
}

// Snapshot returns a copy of the current dialogue.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Handle reports the live document handle, empty before the first upload.
func (o *Orchestrator) Handle() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Handle
}

func (o *Orchestrator) finish(outcome string, started time.Time) {
	if o.observer != nil {
		o.observer.QuestionFinished(outcome, o.now().Sub(started))
	}
}
