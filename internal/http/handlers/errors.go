// Package handlers defines the HTTP-layer error codes used across the ops
// API. Codes are lowercase snake_case and mirror common HTTP status
// semantics; clients branch on the code rather than parsing the message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
)
