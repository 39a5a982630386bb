package assistant

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/service/conversation"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

const (
	msgNoFile         = "Please select a file first"
	msgUploadFallback = "Error uploading file"
	msgUploaded       = "File \"%s\" uploaded successfully!"
)

var (
	ErrNoFile           = errors.New("no file selected")
	ErrUploadInProgress = errors.New("upload already in progress")
)

// Recorder receives intake and upload outcomes.
type Recorder interface {
	ObserveIntake(accepted bool, reason string)
	ObserveUpload(outcome string)
}

// Options carries optional collaborators.
type Options struct {
	Recorder Recorder
	Logger   *zerolog.Logger
}

// Service couples file selection and upload with the dialogue for the
// uploaded document. It is safe for concurrent use.
type Service struct {
	validator *intake.Validator
	uploader  Uploader
	dialogue  *conversation.Orchestrator
	notifier  notify.Sink
	recorder  Recorder
	log       zerolog.Logger

	mu        sync.Mutex
	selected  *intake.Candidate
	document  *models.Document
	uploading bool
}

// NewService wires the intake pipeline to dialogue.
func NewService(validator *intake.Validator, uploader Uploader, dialogue *conversation.Orchestrator, notifier notify.Sink, opts Options) (*Service, error) {
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if dialogue == nil {
		return nil, errors.New("dialogue is required")
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Service{
		validator: validator,
		uploader:  uploader,
		dialogue:  dialogue,
		notifier:  notifier,
		recorder:  opts.Recorder,
		log:       log,
	}, nil
}

// Snapshot is a point-in-time view for rendering.
type Snapshot struct {
	Document *models.Document `json:"document"`
	Selected string           `json:"selected,omitempty"`
	Awaiting bool             `json:"awaiting"`
	Turns    []models.Turn    `json:"turns"`
}

// Snapshot copies the current document, selection and dialogue. The
// dialogue is read under s.mu so it always belongs to Document.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc *models.Document
	if s.document != nil {
		d := *s.document
		doc = &d
	}
	selected := ""
	if s.selected != nil {
		selected = s.selected.Name
	}
	state := s.dialogue.Snapshot()
	turns := state.Turns
	if turns == nil {
		turns = []models.Turn{}
	}
	return Snapshot{Document: doc, Selected: selected, Awaiting: state.Awaiting, Turns: turns}
}

// MaxFileBytes reports the configured upload limit.
func (s *Service) MaxFileBytes() int64 { return s.validator.MaxBytes() }
