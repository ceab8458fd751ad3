// Package attachment turns uploaded files into model input: PDF documents
// become plain text and images become base64 image parts.
package attachment

import (
	"github.com/teilomillet/parley/server/conversation"
)

// Attachment is an uploaded file: a Document or an Image.
type Attachment interface {
	isAttachment()
	Filename() string
	Size() int
}

// Document is an uploaded PDF.
type Document struct {
	Name string
	Data []byte
}

func (Document) isAttachment()      {}
func (d Document) Filename() string { return d.Name }
func (d Document) Size() int        { return len(d.Data) }

// Image is an uploaded picture.
type Image struct {
	Name string
	Data []byte
}

func (Image) isAttachment()      {}
func (i Image) Filename() string { return i.Name }
func (i Image) Size() int        { return len(i.Data) }

// Payload is the extracted form of an attachment: DocumentText or EncodedImage.
type Payload interface {
	isPayload()
}

// DocumentText is the plain text of a document, pages joined by "\n".
type DocumentText struct {
	Text  string
	Pages int
}

func (DocumentText) isPayload() {}

// EncodedImage is an image as standard base64 with its MIME type.
type EncodedImage struct {
	MIMEType string
	Data     string
}

func (EncodedImage) isPayload() {}

// Part converts the image to a conversation part.
func (e EncodedImage) Part() conversation.ImagePart {
	return conversation.ImagePart{MIMEType: e.MIMEType, Data: e.Data}
}
