package mwapi

import (
	"errors"
	"fmt"
	"strings"
)

// NetworkError wraps connection and timeout failures. Callers may retry.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthenticationError reports a failed login handshake.
type AuthenticationError struct {
	Result string
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("login failed: %s (%s)", e.Result, e.Reason)
	}
	return fmt.Sprintf("login failed: %s", e.Result)
}

// AuthorizationError reports an operation rejected for lack of rights,
// such as deleting a protected page without the delete permission.
type AuthorizationError struct {
	Code    string
	Message string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MalformedResponseError indicates an unexpected JSON shape. It is fatal:
// the server speaks a different protocol than the selected variant.
type MalformedResponseError struct {
	Message string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed API response: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("malformed API response: %s", e.Message)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RateLimitError reports server-side throttling. This layer does not
// retry; callers should back off.
type RateLimitError struct {
	Code    string
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): %s", e.Code, e.Message)
}

// NotSupportedError marks an operation unavailable on the selected
// API version.
type NotSupportedError struct {
	Version   string
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by MediaWiki API %s", e.Operation, e.Version)
}

// UploadError carries the server-reported code for a rejected upload,
// e.g. "fileexists-no-change" or "duplicate".
type UploadError struct {
	Code    string
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%s): %s", e.Code, e.Message)
}

// ItemNotFoundError reports an absent page or file.
type ItemNotFoundError struct {
	Title string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Title)
}

// APIError is the catch-all for MediaWiki error envelopes that do not map
// to a more specific type.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func IsNetworkError(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

func IsAuthorizationError(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

func IsNotSupported(err error) bool {
	var e *NotSupportedError
	return errors.As(err, &e)
}

func IsItemNotFound(err error) bool {
	var e *ItemNotFoundError
	return errors.As(err, &e)
}

func IsUploadError(err error) bool {
	var e *UploadError
	return errors.As(err, &e)
}

// classifyError maps a MediaWiki error code to the taxonomy above.
func classifyError(code, info string, status int) error {
	switch strings.ToLower(code) {
	case "ratelimited", "maxlag":
		return &RateLimitError{Code: code, Message: info}
	case "cantdelete", "protectedpage", "protectedtitle", "permissiondenied",
		"permissions", "badaccess-groups", "readapidenied", "mustbeloggedin",
		"noedit", "nodelete", "writeapidenied":
		return &AuthorizationError{Code: code, Message: info}
	case "missingtitle", "nosuchpageid", "invalidtitle":
		return &ItemNotFoundError{Title: info}
	default:
		return &APIError{Code: code, Message: info, HTTPStatus: status}
	}
}

func isTokenErrorCode(code string) bool {
	switch strings.ToLower(code) {
	case "badtoken", "notoken", "needtoken", "wrongtoken":
		return true
	default:
		return false
	}
}
