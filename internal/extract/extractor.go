// Package extract turns uploaded course material into text blocks: one block
// per PDF page, slide or sheet, and a single block for word-processor and
// plain-text files.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file types with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorrupt wraps parse failures of a supported format.
	ErrCorrupt = errors.New("corrupt document")
)

type extractFunc func(payload []byte) ([]string, error)

// Extractor dispatches on file extension, falling back to the content type.
type Extractor struct {
	byExt map[string]extractFunc
}

func NewExtractor() *Extractor {
	return &Extractor{byExt: map[string]extractFunc{
		".pdf":  extractPDF,
		".docx": extractDOCX,
		".pptx": extractPPTX,
		".xlsx": extractXLSX,
		".txt":  extractPlain,
		".md":   extractPlain,
		".csv":  extractPlain,
	}}
}

var contentTypeExt = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"text/plain":    ".txt",
	"text/markdown": ".md",
	"text/csv":      ".csv",
}

// Supported reports whether name or contentType maps to an extractor.
func (e *Extractor) Supported(name, contentType string) bool {
	_, ok := e.lookup(name, contentType)
	return ok
}

func (e *Extractor) lookup(name, contentType string) (extractFunc, bool) {
	if fn, ok := e.byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return fn, true
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	if ext, ok := contentTypeExt[strings.TrimSpace(mediaType)]; ok {
		return e.byExt[ext], true
	}
	return nil, false
}

// Extract returns the non-empty text blocks of payload.
func (e *Extractor) Extract(name, contentType string, payload []byte) ([]string, error) {
	fn, ok := e.lookup(name, contentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, name, contentType)
	}
	blocks, err := fn(payload)
	if err != nil {
		return nil, err
	}
	out := blocks[:0]
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out, nil
}
