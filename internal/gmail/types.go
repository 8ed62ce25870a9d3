package gmail

import gmailv1 "google.golang.org/api/gmail/v1"

// Part is a node in a message's MIME content tree. Each node owns its
// children; the tree has no cycles.
type Part struct {
	PartID   string
	Filename string
	MimeType string
	// AttachmentID is set when the body must be fetched separately.
	AttachmentID string
	Size         int64
	Parts        []*Part
}

// Message is a fetched message reduced to its id and part tree.
type Message struct {
	ID      string
	Payload *Part
}

// convertPart copies an API message part tree into Part nodes.
func convertPart(p *gmailv1.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{
		PartID:   p.PartId,
		Filename: p.Filename,
		MimeType: p.MimeType,
	}
	if p.Body != nil {
		part.AttachmentID = p.Body.AttachmentId
		part.Size = p.Body.Size
	}
	for _, sub := range p.Parts {
		if child := convertPart(sub); child != nil {
			part.Parts = append(part.Parts, child)
		}
	}
	return part
}
