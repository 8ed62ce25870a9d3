// Package attachment walks a message's part tree and materializes every
// attachment leaf as a Record carrying standard base64 content.
package attachment

import (
	"context"
	"strings"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/gmail"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

// Record is one attachment extracted from a message.
type Record struct {
	MessageID  string `json:"message_id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	DataBase64 string `json:"data_base64"`
}

// Mailbox is the subset of the mailbox adapter the extractor reads from.
type Mailbox interface {
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
}

var urlSafeToStd = strings.NewReplacer("-", "+", "_", "/")

// Transcode rewrites URL-safe base64 into the standard alphabet. Only '-' and
// '_' change; padding and length are preserved.
func Transcode(s string) string {
	return urlSafeToStd.Replace(s)
}

// IsAttachmentLeaf reports whether p carries a fetchable attachment body.
// Container parts qualify too when they carry both fields.
func IsAttachmentLeaf(p *gmail.Part) bool {
	return p != nil && p.Filename != "" && p.AttachmentID != ""
}

// Extractor fetches attachments for one message at a time.
type Extractor struct {
	mailbox Mailbox
}

// NewExtractor creates an Extractor reading from mailbox.
func NewExtractor(mailbox Mailbox) *Extractor {
	return &Extractor{mailbox: mailbox}
}

// Extract returns every attachment in the message. The first failed fetch
// aborts the message and is returned unchanged.
func (e *Extractor) Extract(ctx context.Context, messageID string) ([]Record, error) {
	tracer := tracing.Tracer("docfetch-attachment")
	ctx, span := tracer.Start(ctx, "attachment.Extract")
	defer span.End()
	span.SetAttributes(tracing.MessageID(messageID))

	msg, err := e.mailbox.GetMessage(ctx, messageID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var records []Record
	if err := e.walk(ctx, messageID, msg.Payload, &records); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(tracing.AttachmentCount(len(records)))
	return records, nil
}

// walk visits children before checking the node itself.
func (e *Extractor) walk(ctx context.Context, messageID string, p *gmail.Part, out *[]Record) error {
	if p == nil {
		return nil
	}
	for _, child := range p.Parts {
		if err := e.walk(ctx, messageID, child, out); err != nil {
			return err
		}
	}
	if !IsAttachmentLeaf(p) {
		return nil
	}

	data, err := e.mailbox.GetAttachment(ctx, messageID, p.AttachmentID)
	if err != nil {
		return err
	}
	*out = append(*out, Record{
		MessageID:  messageID,
		Filename:   p.Filename,
		MimeType:   p.MimeType,
		Size:       p.Size,
		DataBase64: Transcode(data),
	})
	return nil
}
