package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Kammelleon/pdf-qa/internal/backend"
	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/service/conversation"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

var samplePDF = []byte("%PDF-1.5\n%%EOF\n")

type fakeUploader struct {
	mu      sync.Mutex
	calls   int
	doc     models.Document
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, cand *intake.Candidate) (models.Document, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.doc, f.err
}

type fakeAsker struct{ answer string }

func (f fakeAsker) Ask(ctx context.Context, q models.Question) (string, error) {
	return f.answer + " (" + q.Handle + ")", nil
}

type fakeRecorder struct {
	intake  map[string]int
	uploads map[string]int
}

func (r *fakeRecorder) ObserveIntake(accepted bool, reason string) {
	if accepted {
		reason = "accepted"
	}
	r.intake[reason]++
}

func (r *fakeRecorder) ObserveUpload(outcome string) { r.uploads[outcome]++ }

func newTestService(t *testing.T, up *fakeUploader) (*Service, *notify.Recorder, *fakeRecorder) {
	t.Helper()
	rec := &notify.Recorder{}
	metrics := &fakeRecorder{intake: map[string]int{}, uploads: map[string]int{}}
	dialogue := conversation.NewOrchestrator(fakeAsker{answer: "answer"}, rec, conversation.Options{})
	svc, err := NewService(intake.NewValidator(intake.Config{}), up, dialogue, rec, Options{Recorder: metrics})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, rec, metrics
}

func pdf(name string) *intake.Candidate {
	return intake.FromBytes(name, "application/pdf", samplePDF)
}

func TestSelectRejectsAndNotifies(t *testing.T) {
	svc, rec, metrics := newTestService(t, &fakeUploader{})

	res := svc.Select(context.Background(), intake.FromBytes("notes.txt", "text/plain", []byte("hi")))
	if res.Accepted || res.Reason != intake.ReasonInvalidType {
		t.Fatalf("unexpected result %#v", res)
	}
	all := rec.All()
	if len(all) != 1 || all[0].Message != "Please select a valid PDF file" {
		t.Fatalf("unexpected notifications %#v", all)
	}
	if metrics.intake["INVALID_TYPE"] != 1 {
		t.Fatalf("rejection not recorded: %v", metrics.intake)
	}
	if svc.Snapshot().Selected != "" {
		t.Fatalf("rejected file should not stay selected")
	}
}

func TestRejectedSelectionClearsPrevious(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeUploader{})
	ctx := context.Background()

	if res := svc.Select(ctx, pdf("good.pdf")); !res.Accepted {
		t.Fatalf("expected acceptance, got %#v", res)
	}
	svc.Select(ctx, pdf("bad..name.pdf"))
	if svc.Snapshot().Selected != "" {
		t.Fatalf("previous selection survived a rejection")
	}
}

func TestSelectNilClearsQuietly(t *testing.T) {
	svc, rec, metrics := newTestService(t, &fakeUploader{})
	svc.Select(context.Background(), pdf("good.pdf"))

	res := svc.Select(context.Background(), nil)
	if res.Accepted || res.Reason != intake.ReasonNone {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(rec.All()) != 0 {
		t.Fatalf("nil selection should not notify")
	}
	if metrics.intake["accepted"] != 1 || len(metrics.intake) != 1 {
		t.Fatalf("nil selection should not be recorded: %v", metrics.intake)
	}
	if svc.Snapshot().Selected != "" {
		t.Fatalf("selection not cleared")
	}
}

func TestRejectClearsSelection(t *testing.T) {
	svc, rec, metrics := newTestService(t, &fakeUploader{})
	ctx := context.Background()
	svc.Select(ctx, pdf("good.pdf"))

	res := svc.Reject(ctx, intake.ReasonTooLarge)
	if res.Accepted || res.Reason != intake.ReasonTooLarge {
		t.Fatalf("unexpected result %#v", res)
	}
	if svc.Snapshot().Selected != "" {
		t.Fatalf("selection not cleared")
	}
	all := rec.All()
	if len(all) != 1 || all[0].Message != "File is too large. Maximum size is 10 MiB" {
		t.Fatalf("unexpected notifications %#v", all)
	}
	if metrics.intake["TOO_LARGE"] != 1 {
		t.Fatalf("rejection not recorded: %v", metrics.intake)
	}
}

func TestUploadWithoutSelection(t *testing.T) {
	up := &fakeUploader{}
	svc, rec, _ := newTestService(t, up)

	if _, err := svc.Upload(context.Background()); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	if up.calls != 0 {
		t.Fatalf("uploader called without a selection")
	}
	if all := rec.All(); len(all) != 1 || all[0].Message != "Please select a file first" {
		t.Fatalf("unexpected notifications %#v", all)
	}
}

func TestUploadSuccessStartsDialogue(t *testing.T) {
	up := &fakeUploader{doc: models.Document{Handle: "h1", DisplayName: "report.pdf"}}
	svc, rec, metrics := newTestService(t, up)
	ctx := context.Background()

	doc, res, err := svc.SelectAndUpload(ctx, pdf("report.pdf"))
	if err != nil || !res.Accepted {
		t.Fatalf("select and upload: %v %#v", err, res)
	}
	if doc.Handle != "h1" {
		t.Fatalf("unexpected doc %#v", doc)
	}
	all := rec.All()
	if len(all) != 1 || all[0].Severity != notify.SeveritySuccess || all[0].Message != `File "report.pdf" uploaded successfully!` {
		t.Fatalf("unexpected notifications %#v", all)
	}
	if metrics.uploads["ok"] != 1 {
		t.Fatalf("upload not recorded: %v", metrics.uploads)
	}

	turn, err := svc.Ask(ctx, "what?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if turn.Text != "answer (h1)" {
		t.Fatalf("question went to the wrong handle: %q", turn.Text)
	}
	snap := svc.Snapshot()
	if snap.Document == nil || snap.Document.Handle != "h1" || len(snap.Turns) != 2 || snap.Awaiting {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
	if snap.Selected != "report.pdf" {
		t.Fatalf("selection should persist after upload, got %q", snap.Selected)
	}
}

func TestSecondUploadResetsDialogue(t *testing.T) {
	up := &fakeUploader{doc: models.Document{Handle: "h1", DisplayName: "a.pdf"}}
	svc, _, _ := newTestService(t, up)
	ctx := context.Background()

	if _, _, err := svc.SelectAndUpload(ctx, pdf("a.pdf")); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := svc.Ask(ctx, "q"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	up.doc = models.Document{Handle: "h2", DisplayName: "b.pdf"}
	if _, _, err := svc.SelectAndUpload(ctx, pdf("b.pdf")); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	snap := svc.Snapshot()
	if snap.Document.Handle != "h2" || len(snap.Turns) != 0 {
		t.Fatalf("dialogue not reset: %#v", snap)
	}
}

func TestUploadFailureKeepsPreviousDocument(t *testing.T) {
	up := &fakeUploader{doc: models.Document{Handle: "h1", DisplayName: "a.pdf"}}
	svc, rec, metrics := newTestService(t, up)
	ctx := context.Background()
	if _, _, err := svc.SelectAndUpload(ctx, pdf("a.pdf")); err != nil {
		t.Fatalf("first upload: %v", err)
	}

	cases := []struct {
		err  error
		want string
	}{
		{&backend.ServiceError{Op: "upload", Status: 400, Detail: "Only PDF files are allowed"}, "Only PDF files are allowed"},
		{errors.New("dial tcp: refused"), "Error uploading file"},
	}
	for _, tc := range cases {
		up.err = tc.err
		before := len(rec.All())
		if _, err := svc.Upload(ctx); err == nil {
			t.Fatalf("expected upload error")
		}
		all := rec.All()
		if len(all) != before+1 || all[len(all)-1].Message != tc.want {
			t.Fatalf("unexpected notifications %#v", all[before:])
		}
	}
	if svc.Snapshot().Document.Handle != "h1" {
		t.Fatalf("failed upload replaced the document")
	}
	if metrics.uploads["failed"] != 2 {
		t.Fatalf("failures not recorded: %v", metrics.uploads)
	}
}

func TestConcurrentUploadRejected(t *testing.T) {
	up := &fakeUploader{
		doc:     models.Document{Handle: "h", DisplayName: "a.pdf"},
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	svc, _, _ := newTestService(t, up)
	ctx := context.Background()
	svc.Select(ctx, pdf("a.pdf"))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Upload(ctx)
		done <- err
	}()
	<-up.started
	if _, err := svc.Upload(ctx); !errors.Is(err, ErrUploadInProgress) {
		t.Fatalf("expected ErrUploadInProgress, got %v", err)
	}
	close(up.release)
	if err := <-done; err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if up.calls != 1 {
		t.Fatalf("expected one upload call, got %d", up.calls)
	}
}

func TestSelectAndUploadNil(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeUploader{})
	if _, _, err := svc.SelectAndUpload(context.Background(), nil); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
}

func TestAskBeforeUpload(t *testing.T) {
	svc, rec, _ := newTestService(t, &fakeUploader{})
	if _, err := svc.Ask(context.Background(), "hello"); !errors.Is(err, conversation.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if rec.Count(notify.SeverityError) != 1 {
		t.Fatalf("expected one error notification")
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	v := intake.NewValidator(intake.Config{})
	d := conversation.NewOrchestrator(nil, nil, conversation.Options{})
	if _, err := NewService(nil, &fakeUploader{}, d, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil validator")
	}
	if _, err := NewService(v, nil, d, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil uploader")
	}
	if _, err := NewService(v, &fakeUploader{}, nil, nil, Options{}); err == nil {
		t.Fatalf("expected error for nil dialogue")
	}
}

func TestSnapshotNeverMixesDocuments(t *testing.T) {
	up := &fakeUploader{}
	svc, _, _ := newTestService(t, up)
	ctx := context.Background()

	stop := make(chan struct{})
	mismatch := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := svc.Snapshot()
			if snap.Document == nil {
				continue
			}
			for _, turn := range snap.Turns {
				if turn.Role == models.RoleAssistant && !strings.HasSuffix(turn.Text, "("+snap.Document.Handle+")") {
					select {
					case mismatch <- fmt.Sprintf("document %s shown with turn %q", snap.Document.Handle, turn.Text):
					default:
					}
					return
				}
			}
		}
	}()

	for i := 0; i < 200; i++ {
		up.doc = models.Document{Handle: fmt.Sprintf("h%d", i), DisplayName: "a.pdf"}
		if _, _, err := svc.SelectAndUpload(ctx, pdf("a.pdf")); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		if _, err := svc.Ask(ctx, "q"); err != nil {
			t.Fatalf("ask %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-mismatch:
		t.Fatalf("inconsistent snapshot: %s", msg)
	default:
	}
}
