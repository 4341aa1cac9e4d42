package core

// error_messages.go maps technical errors to messages a caller can act on.
//
// Typed errors from internal/apperrors carry their own code and are looked
// up by code. Anything else (driver errors, I/O errors) is matched against a
// pattern table, case-insensitively, first match wins. Codes:
//
//	SCH001-SCH004  schema: target, column, creation, row
//	IMP001-IMP005  import: session, parse, write, format, backend
//	IMG001         image payload decode
//	DB001-DB005    raw driver errors
//	FILE001-002    upload size and emptiness
//	IMP010         import limiter saturated
//	REQ001-002     request cancelled or timed out
//	RATE001        request throttled
//	ERR000         fallback; check the logs for the technical error

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
)

// UserMessage is the user-facing form of an error.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var codedMessages = map[string]UserMessage{
	apperrors.CodeTargetNotFound: {
		Message: "Table or collection not found",
		Action:  "Check the target name, or import the file again",
	},
	apperrors.CodeColumnNotFound: {
		Message: "Column not found",
		Action:  "Use a column listed by the headers endpoint",
	},
	apperrors.CodeCreateFailed: {
		Message: "The target could not be created",
		Action:  "Check the database permissions and try again",
	},
	apperrors.CodeRowNotFound: {
		Message: "Row not found",
		Action:  "Reload the data; the row may have been deleted",
	},
	apperrors.CodeSessionNotFound: {
		Message: "Preview session not found",
		Action:  "The preview was committed, cancelled or expired. Upload the file again",
	},
	apperrors.CodeParseFailed: {
		Message: "The file could not be read",
		Action:  "Check that the file is a valid spreadsheet or CSV",
	},
	apperrors.CodeWriteFailed: {
		Message: "Writing rows failed",
		Action:  "Rows written before the failure were kept. Fix the data and import again",
	},
	apperrors.CodeUnsupportedFormat: {
		Message: "Unsupported file format",
		Action:  "Upload a .csv, .xlsx or .xlsm file",
	},
	apperrors.CodeBackendUnconfigured: {
		Message: "That store is not configured",
		Action:  "Choose a configured target or set its connection settings",
	},
	apperrors.CodeImageDecode: {
		Message: "Image data could not be decoded",
		Action:  "Send images as base64 data URIs",
	},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers untyped errors. Specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Check the file for duplicate rows", "DB001"}},
	{"data too long", UserMessage{"A value is too long for its column", "Long text in later rows does not widen a text column; shorten the value", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"server selection timeout", UserMessage{"Unable to reach the document store", "Please try again in a few moments", "DB005"}},
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a file with a header row", "FILE002"}},
	{"reserved table name", UserMessage{"That table name is reserved", "Choose another table name", "IMP011"}},
	{"too many imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP010"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "REQ002"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts err to a UserMessage. nil maps to the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if code := apperrors.Code(err); code != "" {
		if msg, ok := codedMessages[code]; ok {
			msg.Code = code
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something better than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
