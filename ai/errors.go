package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass buckets provider failures for retry and HTTP mapping
type ErrorClass string

const (
	ClassRateLimited     ErrorClass = "rate_limited"
	ClassPaymentRequired ErrorClass = "payment_required"
	ClassSchemaViolation ErrorClass = "schema_violation"
	ClassOther           ErrorClass = "other"
)

var (
	ErrRateLimited     = errors.New("provider rate limited")
	ErrPaymentRequired = errors.New("provider requires payment")
	ErrSchemaViolation = errors.New("provider response violates schema")
	ErrProviderFailed  = errors.New("provider call failed")

	// caller errors, rejected before any provider call
	ErrNoStyleSelected = errors.New("no enhancement style selected")
	ErrUnknownStyle    = errors.New("unknown enhancement style")
	ErrBatchTooLarge   = errors.New("batch exceeds maximum size")
)

// ProviderError is a classified failure from a remote model
type ProviderError struct {
	Class      ErrorClass
	StatusCode int
	Provider   string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Class, e.Message)
}

func (e *ProviderError) Unwrap() error {
	switch e.Class {
	case ClassRateLimited:
		return ErrRateLimited
	case ClassPaymentRequired:
		return ErrPaymentRequired
	case ClassSchemaViolation:
		return ErrSchemaViolation
	}
	return ErrProviderFailed
}

// ClassifyStatus maps an HTTP status code onto an error class
func ClassifyStatus(code int) ErrorClass {
	switch code {
	case http.StatusTooManyRequests:
		return ClassRateLimited
	case http.StatusPaymentRequired:
		return ClassPaymentRequired
	}
	return ClassOther
}

// NewStatusError builds a ProviderError from a non-2xx response body
func NewStatusError(provider string, code int, body []byte) *ProviderError {
	return &ProviderError{
		Class:      ClassifyStatus(code),
		StatusCode: code,
		Provider:   provider,
		Message:    errorMessage(body, code),
	}
}

func schemaError(provider, format string, args ...interface{}) *ProviderError {
	return &ProviderError{Class: ClassSchemaViolation, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

func otherError(provider string, err error) *ProviderError {
	return &ProviderError{Class: ClassOther, Provider: provider, Message: err.Error()}
}

// errorMessage pulls a human message out of the common error body shapes:
// {"error":"..."} and {"error":{"message":"..."}}
func errorMessage(body []byte, code int) string {
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return http.StatusText(code)
	}
	return text
}
