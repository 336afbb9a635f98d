package authprovider

import "fmt"

// OAuth2ErrorCode is the RFC 6749 §5.2 error code taxonomy, plus two
// codes for failures the RFC doesn't cover (spec §4.C/§7).
type OAuth2ErrorCode string

const (
	ErrInvalidRequest          OAuth2ErrorCode = "invalid_request"
	ErrInvalidClient           OAuth2ErrorCode = "invalid_client"
	ErrInvalidGrant            OAuth2ErrorCode = "invalid_grant"
	ErrUnauthorizedClient      OAuth2ErrorCode = "unauthorized_client"
	ErrUnsupportedGrantType    OAuth2ErrorCode = "unsupported_grant_type"
	ErrInvalidScope            OAuth2ErrorCode = "invalid_scope"
	ErrAccessDenied            OAuth2ErrorCode = "access_denied"
	ErrUnsupportedResponseType OAuth2ErrorCode = "unsupported_response_type"
	ErrServerError             OAuth2ErrorCode = "server_error"
	ErrTemporarilyUnavailable  OAuth2ErrorCode = "temporarily_unavailable"
	ErrNetworkError            OAuth2ErrorCode = "network_error"
	ErrUnknownError            OAuth2ErrorCode = "unknown_error"
)

var knownCodes = map[OAuth2ErrorCode]bool{
	ErrInvalidRequest: true, ErrInvalidClient: true, ErrInvalidGrant: true,
	ErrUnauthorizedClient: true, ErrUnsupportedGrantType: true, ErrInvalidScope: true,
	ErrAccessDenied: true, ErrUnsupportedResponseType: true, ErrServerError: true,
	ErrTemporarilyUnavailable: true,
}

// OAuth2Error is the AuthError kind from spec §7: a classified OAuth2 or
// bearer failure that callers can inspect without parsing a message.
type OAuth2Error struct {
	Code        OAuth2ErrorCode
	Description string
	Retryable   bool
}

func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth2: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("oauth2: %s", e.Code)
}

// retryableCodes mirrors the transient server-side codes a caller may
// reasonably retry after a forced refresh.
var retryableCodes = map[OAuth2ErrorCode]bool{
	ErrServerError:            true,
	ErrTemporarilyUnavailable: true,
	ErrNetworkError:           true,
}

func newOAuth2Error(code OAuth2ErrorCode, description string) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, Retryable: retryableCodes[code]}
}

// classifyErrorResponse maps a parsed {error, error_description} body from
// a token endpoint into an *OAuth2Error, per spec §4.C's taxonomy table.
func classifyErrorResponse(errCode, description string, statusCode int) *OAuth2Error {
	code := OAuth2ErrorCode(errCode)
	if !knownCodes[code] {
		if statusCode >= 500 {
			code = ErrServerError
		} else {
			code = ErrUnknownError
		}
	}
	return newOAuth2Error(code, description)
}

// synthesizeErrorResponse builds the fallback {error, error_description}
// spec §4.C calls for when a token endpoint's error body isn't parseable.
func synthesizeErrorResponse(statusCode int, statusText string) (string, string) {
	errCode := "server_error"
	if statusCode >= 400 && statusCode < 500 {
		errCode = "invalid_request"
	}
	return errCode, fmt.Sprintf("HTTP %d: %s", statusCode, statusText)
}

func networkError(err error) *OAuth2Error {
	return newOAuth2Error(ErrNetworkError, err.Error())
}
