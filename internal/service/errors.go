package service

import (
	"errors"
	"net/http"
)

// invalidInputError reports a request that can never succeed as sent.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

// StatusCode maps to 400 for the HTTP layer.
func (e invalidInputError) StatusCode() int { return http.StatusBadRequest }

// IsInvalidInput reports whether err rejects the request itself.
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e)
}

// errConversationsDisabled is returned when no store is configured.
var errConversationsDisabled = conversationsDisabledError{}

type conversationsDisabledError struct{}

func (conversationsDisabledError) Error() string { return "conversations are disabled" }

func (conversationsDisabledError) StatusCode() int { return http.StatusNotImplemented }
