// Package retrievalevent publishes attachment retrieval notifications via SQS.
// Events carry metadata only; attachment content is never published.
package retrievalevent

import (
	"time"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/attachment"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrieval"
)

// AttachmentRef describes one retrieved attachment without its content.
type AttachmentRef struct {
	MessageID string `json:"messageId"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
}

// Message is the SQS message body for a completed retrieval.
type Message struct {
	EventID              string          `json:"eventId"`
	OccurredAt           time.Time       `json:"occurredAt"`
	RequestID            string          `json:"requestId,omitempty"`
	MessageIDs           []string        `json:"messageIds"`
	Attachments          []AttachmentRef `json:"attachments"`
	TotalMessagesScanned int             `json:"totalMessagesScanned"`
	TotalAttachments     int             `json:"totalAttachments"`
}

// NewMessage summarizes res. Attachment data is dropped.
func NewMessage(eventID, requestID string, occurredAt time.Time, messageIDs []string, res retrieval.Result) Message {
	refs := make([]AttachmentRef, 0, len(res.Attachments))
	for _, r := range res.Attachments {
		refs = append(refs, refOf(r))
	}
	if messageIDs == nil {
		messageIDs = []string{}
	}
	return Message{
		EventID:              eventID,
		OccurredAt:           occurredAt.UTC(),
		RequestID:            requestID,
		MessageIDs:           messageIDs,
		Attachments:          refs,
		TotalMessagesScanned: res.TotalMessagesScanned,
		TotalAttachments:     res.TotalAttachments,
	}
}

func refOf(r attachment.Record) AttachmentRef {
	return AttachmentRef{
		MessageID: r.MessageID,
		Filename:  r.Filename,
		MimeType:  r.MimeType,
		Size:      r.Size,
	}
}
