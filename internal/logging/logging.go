// Package logging provides the structured logger shared by the Lambdas and
// attribute helpers that keep secrets and PII out of log lines.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Common log attribute keys.
const (
	KeyError      = "error"
	KeyRequestID  = "request_id"
	KeyMessageID  = "message_id"
	KeyFromDomain = "from_domain"
	KeyFaultKind  = "fault_kind"
)

// New returns a JSON logger writing to stdout at info level.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, slog.LevelInfo)
}

// NewWithWriter returns a JSON logger writing to w at the given level.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Err returns an attribute for err. A nil err yields an empty group that slog omits.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// ExtractDomain returns the domain part of an email address, or "" when there is none.
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// FromDomain returns an attribute carrying only the domain of a sender filter.
func FromDomain(email string) slog.Attr {
	return slog.String(KeyFromDomain, ExtractDomain(email))
}

// SanitizeToken returns a length indicator without exposing token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
