package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtract_PlainSplitsPages(t *testing.T) {
	blocks, err := NewExtractor().Extract("notes.txt", "", []byte("Week 1\fWeek 2\f  \f"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Week 1", "Week 2"}, blocks)
}

func TestExtract_PlainInvalidUTF8(t *testing.T) {
	blocks, err := NewExtractor().Extract("notes.md", "", []byte("caf\x80e"))
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\ufffde"}, blocks)
}

func TestExtract_ContentTypeFallback(t *testing.T) {
	e := NewExtractor()
	blocks, err := e.Extract("upload", "text/plain; charset=utf-8", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, blocks)
	assert.True(t, e.Supported("slides.PPTX", ""))
}

func TestExtract_Unsupported(t *testing.T) {
	e := NewExtractor()
	_, err := e.Extract("photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, e.Supported("photo.png", "image/png"))
}

func TestExtract_XLSXOneBlockPerSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Week"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Topic"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "1"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Cells"))
	_, err := f.NewSheet("Grades")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Grades", "A1", "Homework 40%"))
	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	blocks, err := NewExtractor().Extract("syllabus.xlsx", "", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"Week\tTopic\n1\tCells", "Homework 40%"}, blocks)
}

func TestExtract_DOCX(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">Assignment </w:t></w:r><w:r><w:t>3</w:t></w:r></w:p>
<w:p><w:r><w:t>Due date: Friday &amp; late penalty</w:t></w:r></w:p>
</w:body></w:document>`
	blocks, err := NewExtractor().Extract("hw3.docx", "", zipOf(t, map[string]string{"word/document.xml": body}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Assignment 3\nDue date: Friday & late penalty"}, blocks)
}

func TestExtract_DOCXMissingBody(t *testing.T) {
	_, err := NewExtractor().Extract("empty.docx", "", zipOf(t, map[string]string{"word/styles.xml": "<x/>"}))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestExtract_PPTXSlidesInNumericOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
			`<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	payload := zipOf(t, map[string]string{
		"ppt/slides/slide10.xml":            slide("Ten"),
		"ppt/slides/slide2.xml":             slide("Two"),
		"ppt/slides/slide1.xml":             slide("One"),
		"ppt/slides/_rels/slide1.xml.rels":  "<Relationships/>",
		"ppt/slideLayouts/slideLayout1.xml": slide("Layout"),
	})

	blocks, err := NewExtractor().Extract("lecture.pptx", "", payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"One", "Two", "Ten"}, blocks)
}

func TestExtract_CorruptInputs(t *testing.T) {
	e := NewExtractor()
	for _, name := range []string{"a.pdf", "a.docx", "a.pptx", "a.xlsx"} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(name, "", []byte("definitely not a document"))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
