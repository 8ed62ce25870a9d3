// Package retrieval holds the request model of the attachment pipeline and
// the steps between a validated request and its aggregated result.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/attachment"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/gmail"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/query"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/tracing"
)

const opValidate = "retrieval.Validate"

// Validation errors.
var (
	ErrMissingFilter    = errors.New("at least one of from, subject, or message_id must be provided")
	ErrInvalidYearMonth = errors.New("invalid year_month")
)

// Request is the caller's retrieval request. max_messages accepts any JSON
// number.
type Request struct {
	From          string  `json:"from,omitempty"`
	Subject       string  `json:"subject,omitempty"`
	YearMonth     string  `json:"year_month,omitempty"`
	MessageID     string  `json:"message_id,omitempty"`
	MaxMessages   float64 `json:"max_messages,omitempty"`
	HasAttachment *bool   `json:"has_attachment,omitempty"`
}

// Validate checks the request before any network call is made.
// year_month is only checked when it will be used in a search.
func (r Request) Validate() error {
	if r.From == "" && r.Subject == "" && r.MessageID == "" {
		return fault.New(fault.KindValidation, opValidate, ErrMissingFilter)
	}
	if r.MessageID == "" && r.YearMonth != "" {
		if _, err := query.ParseYearMonth(r.YearMonth); err != nil {
			return fault.New(fault.KindValidation, opValidate, fmt.Errorf("%w: %w", ErrInvalidYearMonth, err))
		}
	}
	return nil
}

// Filter returns the search filter described by the request.
func (r Request) Filter() query.SearchFilter {
	return query.SearchFilter{
		From:          r.From,
		Subject:       r.Subject,
		YearMonth:     r.YearMonth,
		HasAttachment: r.HasAttachment,
	}
}

// Cap returns the list cap: defaultMax when unset, clamped to the provider
// maximum. Fractional values are truncated.
func (r Request) Cap(defaultMax int) int64 {
	n := int64(defaultMax)
	if r.MaxMessages >= 1 {
		n = gmail.MaxListResults
		if r.MaxMessages < gmail.MaxListResults {
			n = int64(r.MaxMessages)
		}
	}
	if n <= 0 {
		n = 1
	}
	if n > gmail.MaxListResults {
		n = gmail.MaxListResults
	}
	return n
}

// Lister runs a mailbox search.
type Lister interface {
	ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error)
}

// ResolveMessageIDs returns the explicit message id, or the ids of one
// bounded search in provider order. An empty search is not an error.
func ResolveMessageIDs(ctx context.Context, lister Lister, req Request, defaultMax int) ([]string, error) {
	if req.MessageID != "" {
		return []string{req.MessageID}, nil
	}

	tracer := tracing.Tracer("docfetch-retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.ResolveMessageIDs")
	defer span.End()

	ids, err := lister.ListMessageIDs(ctx, query.Build(req.Filter()), req.Cap(defaultMax))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	span.SetAttributes(tracing.MessageCount(len(ids)))
	return ids, nil
}

// Extractor extracts the attachments of one message.
type Extractor interface {
	Extract(ctx context.Context, messageID string) ([]attachment.Record, error)
}

// Result is the aggregate of a successful retrieval.
type Result struct {
	Attachments          []attachment.Record `json:"attachments"`
	TotalMessagesScanned int                 `json:"total_messages_scanned"`
	TotalAttachments     int                 `json:"total_attachments"`
}

// Collect extracts each message in order, one at a time, and concatenates the
// records. The first failure aborts the whole collection.
func Collect(ctx context.Context, ext Extractor, messageIDs []string) (Result, error) {
	res := Result{Attachments: []attachment.Record{}}
	for _, id := range messageIDs {
		records, err := ext.Extract(ctx, id)
		if err != nil {
			return Result{}, err
		}
		res.Attachments = append(res.Attachments, records...)
	}
	res.TotalMessagesScanned = len(messageIDs)
	res.TotalAttachments = len(res.Attachments)
	return res, nil
}
