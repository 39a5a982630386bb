package assistant

import (
	"context"
	"fmt"

	"github.com/Kammelleon/pdf-qa/internal/backend"
	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

// Uploader transfers an accepted candidate and returns its handle.
type Uploader interface {
	Upload(ctx context.Context, cand *intake.Candidate) (models.Document, error)
}

// Select replaces the current selection. The previous one is cleared
// before validation, so a rejected candidate leaves nothing selected.
// A nil candidate just clears.
func (s *Service) Select(ctx context.Context, cand *intake.Candidate) intake.Result {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()

	res := s.validator.Validate(ctx, cand)
	if cand == nil {
		return res
	}
	if s.recorder != nil {
		s.recorder.ObserveIntake(res.Accepted, string(res.Reason))
	}
	if !res.Accepted {
		s.log.Debug().Str("file", cand.Name).Str("reason", string(res.Reason)).Msg("file rejected")
		s.notifier.Notify(s.validator.Message(res.Reason), notify.SeverityError)
		return res
	}

	s.mu.Lock()
	s.selected = cand
	s.mu.Unlock()
	return res
}

// Reject clears the selection for a file that was refused before it
// could be validated, such as a request body over the transport cap.
func (s *Service) Reject(ctx context.Context, reason intake.Reason) intake.Result {
	s.Select(ctx, nil)
	if s.recorder != nil {
		s.recorder.ObserveIntake(false, string(reason))
	}
	s.notifier.Notify(s.validator.Message(reason), notify.SeverityError)
	return intake.Result{Reason: reason}
}

// Upload sends the selected file. On success the dialogue is reset to the
// new handle; on failure the previous document stays live.
func (s *Service) Upload(ctx context.Context) (models.Document, error) {
	s.mu.Lock()
	cand := s.selected
	if cand == nil {
		s.mu.Unlock()
		s.notifier.Notify(msgNoFile, notify.SeverityError)
		return models.Document{}, ErrNoFile
	}
	if s.uploading {
		s.mu.Unlock()
		return models.Document{}, ErrUploadInProgress
	}
	s.uploading = true
	s.mu.Unlock()

	doc, err := s.uploader.Upload(ctx, cand)

	s.mu.Lock()
	s.uploading = false
	if err == nil {
		// document and dialogue switch together under s.mu
		s.dialogue.ReplaceHandle(doc.Handle)
		d := doc
		s.document = &d
	}
	s.mu.Unlock()

	if err != nil {
		s.observeUpload("failed")
		s.log.Warn().Err(err).Str("file", cand.Name).Msg("upload file failed")
		s.notifier.Notify(backend.MessageOr(err, msgUploadFallback), notify.SeverityError)
		return models.Document{}, err
	}
	s.observeUpload("ok")
	s.log.Info().Str("file", doc.DisplayName).Str("handle", doc.Handle).Msg("file uploaded")
	s.notifier.Notify(fmt.Sprintf(msgUploaded, doc.DisplayName), notify.SeveritySuccess)
	return doc, nil
}

// SelectAndUpload is the one-shot path used by the HTTP bridge and CLI.
// A nil candidate reaches Upload and is reported as ErrNoFile.
func (s *Service) SelectAndUpload(ctx context.Context, cand *intake.Candidate) (models.Document, intake.Result, error) {
	res := s.Select(ctx, cand)
	if cand == nil {
		doc, err := s.Upload(ctx)
		return doc, res, err
	}
	if !res.Accepted {
		return models.Document{}, res, nil
	}
	doc, err := s.Upload(ctx)
	return doc, res, err
}

func (s *Service) observeUpload(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveUpload(outcome)
	}
}
