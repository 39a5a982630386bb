package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/models"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

const (
	fileField       = "file"
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

// ServiceError is a non-2xx answer from the upload or question service.
// Detail is the server-supplied human-readable message, if any.
type ServiceError struct {
	Op     string
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// MessageOr returns the server detail carried by err, or fallback.
func MessageOr(err error, fallback string) string {
	var se *ServiceError
	if errors.As(err, &se) && strings.TrimSpace(se.Detail) != "" {
		return se.Detail
	}
	return fallback
}

// Client talks to the upload and question-answering services over HTTP.
type Client struct {
	baseURL      string
	uploadPath   string
	questionPath string
	http         *http.Client
	log          zerolog.Logger
}

// NewClient builds a client from backend config. A nil httpClient gets one
// with the configured timeout.
func NewClient(cfg config.BackendConfig, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout()}
	}
	uploadPath := cfg.UploadPath
	if uploadPath == "" {
		uploadPath = config.DefaultUploadPath
	}
	questionPath := cfg.QuestionPath
	if questionPath == "" {
		questionPath = config.DefaultQuestionPath
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		uploadPath:   uploadPath,
		questionPath: questionPath,
		http:         httpClient,
		log:          log,
	}
}

type uploadResponse struct {
	FileHash string `json:"file_hash"`
	Filename string `json:"filename"`
}

type questionRequest struct {
	Question string `json:"question"`
	FileHash string `json:"file_hash"`
}

type answerResponse struct {
	Answer   string `json:"answer"`
	FileHash string `json:"file_hash"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Upload sends the candidate as the single "file" field of a multipart body.
func (c *Client) Upload(ctx context.Context, cand *intake.Candidate) (models.Document, error) {
	if cand == nil || cand.Open == nil {
		return models.Document{}, errors.New("upload: no file")
	}
	src, err := cand.Open()
	if err != nil {
		return models.Document{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeFilePart(mw, cand, src))
	}()
	// unblock and wait for the writer before src is closed
	defer func() {
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.uploadPath, pr)
	if err != nil {
		return models.Document{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return models.Document{}, err
	}
	if out.FileHash == "" {
		return models.Document{}, errors.New("upload: response missing file_hash")
	}
	name := out.Filename
	if name == "" {
		name = cand.Name
	}
	return models.Document{Handle: out.FileHash, DisplayName: name}, nil
}

func writeFilePart(mw *multipart.Writer, cand *intake.Candidate, src io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(cand.Name)))
	ct := cand.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

// Ask posts one question about the document and returns the answer text.
func (c *Client) Ask(ctx context.Context, q models.Question) (string, error) {
	body, err := json.Marshal(questionRequest{Question: q.Text, FileHash: q.Handle})
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.questionPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build question request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out answerResponse
	if err := c.do(req, "ask", &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("request_id", reqID).Msg("backend request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.log.Debug().
		Str("op", op).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServiceError{Op: op, Status: resp.StatusCode, Detail: parseDetail(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// parseDetail extracts a string "detail"; structured details are dropped.
func parseDetail(raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || len(er.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(er.Detail, &s); err != nil {
		return ""
	}
	return s
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
