// Package response shapes Lambda proxy responses and maps classified
// failures onto their HTTP status and error body.
package response

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/invocation"
	"github.com/jarrod-lowe/docfetch-lambdas/internal/retrieval"
)

const contentTypeJSON = "application/json"

// ErrorBody is the body of every failure response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSON returns a response with v encoded as the JSON body.
func JSON(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorBody{Error: "Internal error", Message: err.Error()})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": contentTypeJSON},
		Body:       string(body),
	}
}

// Error returns a failure response.
func Error(status int, errText, message, details string) events.APIGatewayProxyResponse {
	return JSON(status, ErrorBody{Error: errText, Message: message, Details: details})
}

// Binary returns data base64-encoded with the given content type and
// download filename.
func Binary(contentType, filename string, data []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        contentType,
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
		},
		Body:            base64.StdEncoding.EncodeToString(data),
		IsBase64Encoded: true,
	}
}

// FromError classifies err and returns its failure response. Kinds are
// checked in priority order validation, authentication, rate limit, secret
// not found; anything else is an internal error.
func FromError(err error, secretName string) events.APIGatewayProxyResponse {
	switch fault.Classify(err) {
	case fault.KindValidation:
		return validation(err)
	case fault.KindAuthentication:
		return Error(http.StatusUnauthorized, "Authentication failed",
			"Refresh token may be expired or revoked", err.Error())
	case fault.KindRateLimited:
		return Error(http.StatusTooManyRequests, "Rate limited",
			"Gmail API quota exceeded", err.Error())
	case fault.KindSecretNotFound:
		return Error(http.StatusInternalServerError, "Secrets retrieval failed",
			fmt.Sprintf("Secret '%s' not found", secretName), err.Error())
	}

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Error(http.StatusInternalServerError, "Internal error", msg, fault.OpOf(err))
}

func validation(err error) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, retrieval.ErrMissingFilter):
		return Error(http.StatusBadRequest, "Missing required filter",
			"At least one of from, subject, or message_id must be provided", "")
	case errors.Is(err, invocation.ErrInvalidBody):
		return Error(http.StatusBadRequest, "Invalid request body", err.Error(), "")
	default:
		return Error(http.StatusBadRequest, "Invalid request", err.Error(), "")
	}
}
