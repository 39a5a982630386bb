package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
)

// Reason identifies why a candidate was rejected. The empty Reason means
// "no reason": either accepted, or no candidate at all.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonInvalidType    Reason = "INVALID_TYPE"
	ReasonTooLarge       Reason = "TOO_LARGE"
	ReasonInvalidName    Reason = "INVALID_NAME"
	ReasonInvalidContent Reason = "INVALID_CONTENT"
)

const (
	DefaultMediaType = "application/pdf"
	DefaultMaxBytes  = 10 << 20 // 10 MB
)

// pdfSignature is the leading "%PDF-" marker of every PDF file.
var pdfSignature = []byte{0x25, 0x50, 0x44, 0x46, 0x2D}

// forbiddenNameChars are rejected anywhere in a file name.
const forbiddenNameChars = `<>:"/\|?*`

// Result is the outcome of one validation. It is never retried.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

// Config tunes the validator. Zero values select the PDF defaults.
type Config struct {
	MediaType string
	MaxBytes  int64
	Signature []byte
}

// Validator runs the ordered intake checks: type, size, name, content.
type Validator struct {
	mediaType string
	maxBytes  int64
	signature []byte
}

// NewValidator constructs a Validator instance.
func NewValidator(cfg Config) *Validator {
	v := &Validator{
		mediaType: normalizeMediaType(cfg.MediaType),
		maxBytes:  cfg.MaxBytes,
		signature: cfg.Signature,
	}
	if v.mediaType == "" {
		v.mediaType = DefaultMediaType
	}
	if v.maxBytes <= 0 {
		v.maxBytes = DefaultMaxBytes
	}
	if len(v.signature) == 0 {
		v.signature = pdfSignature
	}
	return v
}

// MaxBytes reports the configured size ceiling.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Validate checks the candidate. The first failing check decides the
// reason and later checks don't run. A nil candidate yields the quiet
// reset result {false, ""}.
func (v *Validator) Validate(ctx context.Context, c *Candidate) Result {
	if c == nil {
		return Result{}
	}
	// declared type must match exactly; case and parameters count
	if c.MimeType != v.mediaType {
		return reject(ReasonInvalidType)
	}
	if c.Size > v.maxBytes {
		return reject(ReasonTooLarge)
	}
	if !ValidName(c.Name) {
		return reject(ReasonInvalidName)
	}
	if !v.sniff(ctx, c) {
		return reject(ReasonInvalidContent)
	}
	return Result{Accepted: true}
}

// Message renders the user-facing text for a rejection reason.
func (v *Validator) Message(r Reason) string {
	switch r {
	case ReasonInvalidType:
		return "Please select a valid PDF file"
	case ReasonTooLarge:
		return fmt.Sprintf("File is too large. Maximum size is %s", humanize.IBytes(uint64(v.maxBytes)))
	case ReasonInvalidName:
		return "Invalid filename. Please rename your file"
	case ReasonInvalidContent:
		return "The file does not appear to be a valid PDF"
	default:
		return ""
	}
}

// ValidName reports whether name is free of control characters and path
// metacharacters and carries at most one extension.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, forbiddenNameChars) {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	// "invoice.exe.pdf" splits into three segments
	return strings.Count(name, ".") <= 1
}

// sniff reads only len(signature) bytes; any failure counts as a mismatch.
func (v *Validator) sniff(ctx context.Context, c *Candidate) bool {
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if c.Open == nil {
		return false
	}
	rc, err := c.Open()
	if err != nil {
		return false
	}
	defer rc.Close()

	head := make([]byte, len(v.signature))
	if _, err := io.ReadFull(rc, head); err != nil {
		return false
	}
	return bytes.Equal(head, v.signature)
}

func reject(r Reason) Result {
	return Result{Accepted: false, Reason: r}
}

func normalizeMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}
