// Package invocation decodes the Lambda input envelope. The request body
// arrives either as a JSON string (API Gateway proxy) or as a JSON object
// (direct invocation).
package invocation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidBody is returned when the body is not a JSON object.
var ErrInvalidBody = errors.New("request body is not valid JSON")

// Event is the input envelope shared by proxy and direct invocations.
type Event struct {
	Body            json.RawMessage `json:"body"`
	IsBase64Encoded bool            `json:"isBase64Encoded"`
}

// DecodeBody unmarshals the request body into v. An absent or null body
// decodes as an empty object.
func (e Event) DecodeBody(v any) error {
	raw := bytes.TrimSpace(e.Body)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
		if e.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidBody, err)
			}
			s = string(decoded)
		}
		if s == "" {
			return nil
		}
		raw = []byte(s)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}
