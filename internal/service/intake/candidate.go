package intake

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Candidate is a locally selected, not yet uploaded file. Open yields a
// fresh reader over the raw bytes on every call.
type Candidate struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FromPath builds a candidate from a file on disk. The media type is
// detected from content, the way a browser file picker would report it.
func FromPath(path string) (*Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect media type: %w", err)
	}
	return &Candidate{
		Name:     filepath.Base(path),
		MimeType: mtype.String(),
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromFileHeader adapts a multipart upload part (browse or drag-drop).
// The client-declared Content-Type is used as-is.
func FromFileHeader(fh *multipart.FileHeader) *Candidate {
	if fh == nil {
		return nil
	}
	return &Candidate{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// FromBytes wraps an in-memory file.
func FromBytes(name, mimeType string, data []byte) *Candidate {
	return &Candidate{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
