package attachment

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrNoText is returned for documents whose pages yield no text,
	// such as scanned PDFs without a text layer.
	ErrNoText = errors.New("document contains no extractable text")
	// ErrEmptyFile is returned for zero-length uploads.
	ErrEmptyFile = errors.New("file is empty")
)

// FallbackImageType is used when the image bytes are not recognised.
const FallbackImageType = "image/png"

// Extractor converts attachments to payloads. It holds no state besides its
// limits and is safe for concurrent use.
type Extractor struct {
	// MaxPages stops document extraction after this many pages. 0 reads all.
	MaxPages int
}

// NewExtractor returns an extractor with the given page limit.
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{MaxPages: maxPages}
}

// Extract converts an attachment to its payload.
func (e *Extractor) Extract(att Attachment) (Payload, error) {
	switch a := att.(type) {
	case Document:
		return e.document(a)
	case *Document:
		return e.document(*a)
	case Image:
		return encodeImage(a)
	case *Image:
		return encodeImage(*a)
	default:
		return nil, fmt.Errorf("unsupported attachment %T", att)
	}
}

func (e *Extractor) document(doc Document) (Payload, error) {
	if len(doc.Data) == 0 {
		return nil, ErrEmptyFile
	}
	text, pages, err := readPDF(doc.Data, e.MaxPages)
	if err != nil {
		return nil, err
	}
	return DocumentText{Text: text, Pages: pages}, nil
}

// readPDF returns the plain text of every page in order, joined by "\n".
// The parser panics on some corrupt inputs; those become errors.
func readPDF(data []byte, maxPages int) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	texts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, s)
	}

	text = strings.Join(texts, "\n")
	if strings.TrimSpace(text) == "" {
		return "", 0, ErrNoText
	}
	return text, n, nil
}

func encodeImage(img Image) (Payload, error) {
	if len(img.Data) == 0 {
		return nil, ErrEmptyFile
	}
	return EncodedImage{
		MIMEType: DetectImageType(img.Data),
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	}, nil
}

// DetectImageType sniffs the MIME type of data, returning FallbackImageType
// unless it is a recognised image format.
func DetectImageType(data []byte) string {
	mt := mimetype.Detect(data)
	for ; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "image/") {
			return mt.String()
		}
	}
	return FallbackImageType
}
