// Package core provides the data repository and caching engine.
//
// # Error Codes Reference
//
// Errors returned by the cache and query engine are mapped to user-friendly
// messages with a code for support reference.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Malformed source: a dataset file could not be parsed
//	         Action: Check the source file layout (delimiter, columns, years)
//	         Match: *MalformedSourceError
//
//	SRC002 - Encoding error: a dataset file is not valid text
//	         Action: Configure SOURCE_ENCODING to match the files
//	         Match: ErrInvalidUTF8
//
//	SRC003 - Source unavailable: a dataset stream could not be opened
//	         Action: Check SOURCE_DIR or SOURCE_BASE_URL
//	         Patterns: "open source"
//
// # Integrity Errors (INT001-INT099)
//
//	INT001 - Integrity conflict: contradictory rows within one dataset
//	         Action: Review the reported line of the source file
//	         Match: *IntegrityConflictError
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Load failed: the cache kept its previous contents
//	          Action: Fix the reported dataset and reload
//	          Match: *LoadError
//
//	LOAD002 - Unknown dataset: no definition is registered for the dataset
//	          Action: Verify the dataset name
//	          Match: ErrUnknownDataset
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	         Patterns: "context canceled"
//
//	REQ002 - Request timeout
//	         Patterns: "context deadline exceeded"
//
//	RATE001 - Rate limited
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// technical error.
//
// Typed errors are matched first with errors.As, in the order listed above;
// string patterns are matched case-insensitively afterwards and the first
// match wins.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgMalformed = UserMessage{
		Message: "A source file could not be parsed",
		Action:  "Check the source file layout (delimiter, columns, years)",
		Code:    "SRC001",
	}
	msgIntegrity = UserMessage{
		Message: "A source file contains contradictory rows",
		Action:  "Review the reported line of the source file",
		Code:    "INT001",
	}
	msgLoad = UserMessage{
		Message: "Loading the datasets failed; the cache kept its previous contents",
		Action:  "Fix the reported dataset and reload",
		Code:    "LOAD001",
	}
	msgEncoding = UserMessage{
		Message: "A source file contains invalid characters",
		Action:  "Configure SOURCE_ENCODING to match the files",
		Code:    "SRC002",
	}
	msgUnknownDataset = UserMessage{
		Message: "Unknown dataset",
		Action:  "Verify the dataset name",
		Code:    "LOAD002",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. More specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "open source",
		msg: UserMessage{
			Message: "A source file could not be opened",
			Action:  "Check SOURCE_DIR or SOURCE_BASE_URL",
			Code:    "SRC003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var malformed *MalformedSourceError
	var integrity *IntegrityConflictError
	var loadErr *LoadError

	switch {
	case errors.Is(err, ErrInvalidUTF8):
		return msgEncoding
	case errors.As(err, &malformed):
		return msgMalformed
	case errors.As(err, &integrity):
		return msgIntegrity
	case errors.Is(err, ErrUnknownDataset):
		return msgUnknownDataset
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.As(err, &loadErr) {
		return msgLoad
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
