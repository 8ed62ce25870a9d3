package gmail

import (
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/jarrod-lowe/docfetch-lambdas/internal/fault"
)

// OAuth error codes returned by the token endpoint that mean the stored
// credentials are no longer usable.
var authErrorCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
}

// Reasons Gmail reports on 403 responses when a quota is exhausted.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

// wrapError classifies a provider error for op.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fault.New(kindOf(err), op, err)
}

// kindOf maps structured Gmail and OAuth errors onto a fault kind.
func kindOf(err error) fault.Kind {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if authErrorCodes[retrieveErr.ErrorCode] {
			return fault.KindAuthentication
		}
		if retrieveErr.Response != nil {
			switch retrieveErr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return fault.KindAuthentication
			case http.StatusTooManyRequests:
				return fault.KindRateLimited
			}
		}
		return fault.KindInternal
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fault.KindAuthentication
		case http.StatusTooManyRequests:
			return fault.KindRateLimited
		case http.StatusForbidden:
			for _, item := range apiErr.Errors {
				if rateLimitReasons[item.Reason] {
					return fault.KindRateLimited
				}
			}
		}
	}

	return fault.KindInternal
}
