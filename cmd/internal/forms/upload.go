package forms

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Accepted upload kinds.
const (
	KindPDF  = "pdf"
	KindDOCX = "docx"

	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZIP  = "application/zip"
)

const unsupportedFileMsg = "Only PDF and DOCX files are supported"

// Upload describes a file that passed validation.
type Upload struct {
	Filename string
	Kind     string
	MIME     string
	Size     int64
}

// Upload checks the file name, size and sniffed content of an upload.
// head should hold the first bytes of the file; mimetype reads at most 3 KiB.
//
// The service dispatches on the ".pdf" / ".docx" suffix, case-sensitively,
// so the same rule is applied here.
func (v *Validator) Upload(filename string, size int64, head []byte) (Upload, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Upload{}, invalid("file", "Please select a file", nil)
	}

	var kind string
	switch {
	case strings.HasSuffix(name, ".pdf"):
		kind = KindPDF
	case strings.HasSuffix(name, ".docx"):
		kind = KindDOCX
	default:
		return Upload{}, invalid("file", unsupportedFileMsg, nil)
	}

	if size <= 0 {
		return Upload{}, invalid("file", "File is empty", nil)
	}
	if size > v.maxUploadBytes {
		return Upload{}, invalid("file", fmt.Sprintf("File is too large (max %d MiB)", v.maxUploadBytes>>20), nil)
	}

	mt := mimetype.Detect(head)
	if !matchesKind(mt, kind) {
		return Upload{}, invalid("file", unsupportedFileMsg, fmt.Errorf("content sniffed as %s", mt.String()))
	}

	return Upload{Filename: name, Kind: kind, MIME: mt.String(), Size: size}, nil
}

// UploadReader validates an upload from r, returning the result and a reader
// that replays the sniffed bytes followed by the rest of r.
func (v *Validator) UploadReader(filename string, size int64, r io.Reader) (Upload, io.Reader, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Upload{}, nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	up, err := v.Upload(filename, size, head)
	if err != nil {
		return Upload{}, nil, err
	}
	return up, io.MultiReader(bytes.NewReader(head), r), nil
}

// matchesKind walks the detected type and its parents. A DOCX that
// mimetype only recognises as a generic zip container is accepted.
func matchesKind(mt *mimetype.MIME, kind string) bool {
	for m := mt; m != nil; m = m.Parent() {
		switch kind {
		case KindPDF:
			if m.Is(mimePDF) {
				return true
			}
		case KindDOCX:
			if m.Is(mimeDOCX) || m.Is(mimeZIP) {
				return true
			}
		}
	}
	return false
}
