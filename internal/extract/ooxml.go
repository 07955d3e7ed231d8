package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	wordMLNamespace    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingMLNamespace = "http://schemas.openxmlformats.org/drawingml/2006/main"
	docxBodyPath       = "word/document.xml"
	pptxSlidePrefix    = "ppt/slides/slide"
)

func openZip(payload []byte, kind string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: not a zip: %v", ErrCorrupt, kind, err)
	}
	return zr, nil
}

// paragraphText walks an OOXML part and returns the text of each paragraph.
// Text runs are <t> elements in textNS; paragraphs are <p> elements.
func paragraphText(r io.Reader, textNS string) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paragraphs []string
	var current strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == textNS && t.Name.Local == "t" {
				inText = true
			}
			if t.Name.Space == textNS && t.Name.Local == "tab" {
				current.WriteByte('\t')
			}
		case xml.EndElement:
			if t.Name.Space == textNS && t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Space == textNS && t.Name.Local == "p" {
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}
	return paragraphs, nil
}

func readPart(f *zip.File, textNS string) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return paragraphText(rc, textNS)
}

// extractDOCX returns the whole document body as one block.
func extractDOCX(payload []byte) ([]string, error) {
	zr, err := openZip(payload, "docx")
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != docxBodyPath {
			continue
		}
		paragraphs, err := readPart(f, wordMLNamespace)
		if err != nil {
			return nil, fmt.Errorf("%w: docx: %v", ErrCorrupt, err)
		}
		return []string{strings.Join(paragraphs, "\n")}, nil
	}
	return nil, fmt.Errorf("%w: docx: %s not found", ErrCorrupt, docxBodyPath)
}

// extractPPTX returns one block per slide in slide-number order.
func extractPPTX(payload []byte) ([]string, error) {
	zr, err := openZip(payload, "pptx")
	if err != nil {
		return nil, err
	}

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		rest, ok := strings.CutPrefix(f.Name, pptxSlidePrefix)
		if !ok || !strings.HasSuffix(rest, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(rest, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	blocks := make([]string, 0, len(slides))
	for _, s := range slides {
		paragraphs, err := readPart(s.file, drawingMLNamespace)
		if err != nil {
			return nil, fmt.Errorf("%w: pptx slide %d: %v", ErrCorrupt, s.n, err)
		}
		blocks = append(blocks, strings.Join(paragraphs, "\n"))
	}
	return blocks, nil
}
