package gmailingest

import (
	"strings"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
)

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type PartBody struct {
	AttachmentId string `json:"attachment_id"`
	Size         int64  `json:"size"`
}

// MessagePart is one node of the MIME tree of a source message.
type MessagePart struct {
	Filename string         `json:"filename"`
	MimeType string         `json:"mime_type"`
	Body     PartBody       `json:"body"`
	Parts    []*MessagePart `json:"parts,omitempty"`
}

// SourceMessage is the provider-neutral shape of a fetched mail message.
type SourceMessage struct {
	Id       string       `json:"id"`
	ThreadId string       `json:"thread_id"`
	LabelIds []string     `json:"label_ids"`
	Snippet  string       `json:"snippet"`
	Headers  []Header     `json:"headers"`
	Payload  *MessagePart `json:"payload"`
}

// HeaderValue returns the first header with the given name, case-insensitively.
func (m *SourceMessage) HeaderValue(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// CollectAttachments walks the part tree and returns every part that carries
// an attachment (a filename plus a body attachment id).
func CollectAttachments(part *MessagePart) []models.ReceiptAttachment {
	if part == nil {
		return nil
	}
	var attachments []models.ReceiptAttachment
	if part.Filename != "" && part.Body.AttachmentId != "" {
		attachments = append(attachments, models.ReceiptAttachment{
			Id:       part.Body.AttachmentId,
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     part.Body.Size,
		})
	}
	for _, child := range part.Parts {
		attachments = append(attachments, CollectAttachments(child)...)
	}
	return attachments
}
