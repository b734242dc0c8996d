package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited")

	// ErrFetchFailed matches every *FetchError under errors.Is. Use
	// FetchErrorKindOf or errors.As to tell the kinds apart.
	ErrFetchFailed = errors.New("fetch failed")
)

// FetchErrorKind identifies why a fetch failed.
type FetchErrorKind string

const (
	FetchErrorMalformedURL FetchErrorKind = "malformed_url"
	FetchErrorNetwork      FetchErrorKind = "network"
	FetchErrorParser       FetchErrorKind = "parser"
)

// FetchError is returned by every fetcher operation that fails. URL is empty
// for FetchErrorMalformedURL since no URL could be built.
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	URL     string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *FetchError) Unwrap() error { return e.Cause }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

func NewMalformedURLError(cause error) *FetchError {
	return &FetchError{
		Kind:    FetchErrorMalformedURL,
		Message: "search URI crafted from complex search query is malformed",
		Cause:   cause,
	}
}

func NewNetworkError(url string, cause error) *FetchError {
	return &FetchError{
		Kind:    FetchErrorNetwork,
		Message: "a network error occurred while fetching from " + url,
		URL:     url,
		Cause:   cause,
	}
}

func NewParserError(url string, cause error) *FetchError {
	return &FetchError{
		Kind:    FetchErrorParser,
		Message: "an internal parser error occurred while fetching from " + url,
		URL:     url,
		Cause:   cause,
	}
}

// FetchErrorKindOf returns the kind of the first FetchError in err's chain.
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// ParseError is raised by the PICA-XML and BibTeX parsers on malformed input.
type ParseError struct {
	Format  string
	Message string
	Cause   error
}

func NewParseError(format, message string, cause error) *ParseError {
	return &ParseError{Format: format, Message: message, Cause: cause}
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Format + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError reports a rejected input field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names the missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RateLimitError is returned when a catalog answers 429. It matches ErrRateLimited.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s is throttling requests, retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError is a non-2xx response from a catalog.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Cause }
