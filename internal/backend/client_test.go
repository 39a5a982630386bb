package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

var samplePDF = []byte("%PDF-1.4\nhello\n%%EOF\n")

type fakeBackend struct {
	uploads   int
	fields    []string
	lastBody  []byte
	lastCT    string
	questions []questionRequest
	requestID string
	failWith  int
	detail    interface{}
}

func newFakeBackend(t *testing.T, fb *fakeBackend) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(config.DefaultUploadPath, func(c *gin.Context) {
		fb.requestID = c.GetHeader(requestIDHeader)
		if fb.failWith != 0 {
			c.JSON(fb.failWith, gin.H{"detail": fb.detail})
			return
		}
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "bad form"})
			return
		}
		for name := range form.File {
			fb.fields = append(fb.fields, name)
		}
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
			return
		}
		f, _ := fh.Open()
		fb.lastBody, _ = io.ReadAll(f)
		f.Close()
		fb.lastCT = fh.Header.Get("Content-Type")
		fb.uploads++
		c.JSON(http.StatusOK, gin.H{"file_hash": "abc123", "filename": fh.Filename})
	})
	router.POST(config.DefaultQuestionPath, func(c *gin.Context) {
		if fb.failWith != 0 {
			c.JSON(fb.failWith, gin.H{"detail": fb.detail})
			return
		}
		var req questionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid body"})
			return
		}
		fb.questions = append(fb.questions, req)
		c.JSON(http.StatusOK, gin.H{"answer": "It is about " + req.Question, "file_hash": req.FileHash})
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.BackendConfig{BaseURL: srv.URL + "/"}, nil, zerolog.Nop())
}

func TestUploadSendsSingleFileField(t *testing.T) {
	fb := &fakeBackend{}
	client := newTestClient(newFakeBackend(t, fb))

	doc, err := client.Upload(context.Background(), intake.FromBytes("report.pdf", "application/pdf", samplePDF))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if doc.Handle != "abc123" || doc.DisplayName != "report.pdf" {
		t.Fatalf("unexpected document %#v", doc)
	}
	if len(fb.fields) != 1 || fb.fields[0] != "file" {
		t.Fatalf("expected exactly one file field, got %v", fb.fields)
	}
	if string(fb.lastBody) != string(samplePDF) {
		t.Fatalf("body mismatch: %q", fb.lastBody)
	}
	if fb.lastCT != "application/pdf" {
		t.Fatalf("part content type mismatch: %s", fb.lastCT)
	}
	if fb.requestID == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUploadSurfacesDetail(t *testing.T) {
	fb := &fakeBackend{failWith: http.StatusBadRequest, detail: "Only PDF files are allowed"}
	client := newTestClient(newFakeBackend(t, fb))

	_, err := client.Upload(context.Background(), intake.FromBytes("a.pdf", "application/pdf", samplePDF))
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Status != http.StatusBadRequest || se.Detail != "Only PDF files are allowed" {
		t.Fatalf("unexpected service error %#v", se)
	}
	if got := MessageOr(err, "Error uploading file"); got != "Only PDF files are allowed" {
		t.Fatalf("MessageOr mismatch: %q", got)
	}
}

func TestStructuredDetailFallsBack(t *testing.T) {
	fb := &fakeBackend{
		failWith: http.StatusUnprocessableEntity,
		detail:   []gin.H{{"loc": []string{"body", "question"}, "msg": "field required"}},
	}
	client := newTestClient(newFakeBackend(t, fb))

	_, err := client.Ask(context.Background(), models.Question{Text: "q", Handle: "h"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := MessageOr(err, "Error getting answer"); got != "Error getting answer" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestAskRoundTrip(t *testing.T) {
	fb := &fakeBackend{}
	client := newTestClient(newFakeBackend(t, fb))

	answer, err := client.Ask(context.Background(), models.Question{Text: "cats", Handle: "abc123"})
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if answer != "It is about cats" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(fb.questions) != 1 || fb.questions[0].FileHash != "abc123" || fb.questions[0].Question != "cats" {
		t.Fatalf("unexpected request %#v", fb.questions)
	}
}

func TestTransportErrorUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	client := NewClient(config.BackendConfig{BaseURL: srv.URL}, &http.Client{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := client.Ask(context.Background(), models.Question{Text: "q", Handle: "h"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var se *ServiceError
	if errors.As(err, &se) {
		t.Fatalf("timeout should not be a ServiceError")
	}
	if got := MessageOr(err, "Error getting answer"); got != "Error getting answer" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestUploadOpenError(t *testing.T) {
	client := NewClient(config.BackendConfig{BaseURL: "http://127.0.0.1:1"}, nil, zerolog.Nop())
	cand := &intake.Candidate{Name: "a.pdf", Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") }}
	if _, err := client.Upload(context.Background(), cand); err == nil {
		t.Fatalf("expected open error")
	}
	if _, err := client.Upload(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil candidate")
	}
}

func TestParseDetail(t *testing.T) {
	cases := map[string]string{
		`{"detail":"nope"}`:     "nope",
		`{"detail":["a","b"]}`:  "",
		`{"error":"elsewhere"}`: "",
		`not json`:              "",
		``:                      "",
	}
	for raw, want := range cases {
		if got := parseDetail([]byte(raw)); got != want {
			t.Fatalf("parseDetail(%q) = %q, want %q", raw, got, want)
		}
	}
}
