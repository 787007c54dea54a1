package core

// error_messages.go maps technical errors to user-friendly messages with codes
// for support reference. When users encounter errors, they can quote the
// error code to support staff for faster diagnosis.
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Export busy: Another export is in progress
//	         Action: Please try again in a moment
//	         Sentinel: ErrExportBusy
//
//	EXP002 - Export failed: The spreadsheet could not be written
//	         Action: The previous export is unchanged. Contact support if this persists
//	         Sentinel: ErrExportFailed
//
//	EXP003 - No export: Nothing has been exported yet
//	         Action: Run an export first
//	         Sentinel: ErrNoExport
//
// # Entry Errors (ENT001-ENT099)
//
//	ENT001 - Duplicate entry: An entry for this PIZ and date already exists
//	         Action: Edit the existing entry instead
//	         Sentinel: ErrDuplicateEntry
//
//	ENT002 - Not found: The entry does not exist
//	         Action: Reload the list and try again
//	         Sentinel: ErrEntryNotFound
//
//	ENT003 - Invalid entry: One or more fields are invalid
//	         Action: Check PIZ, examination date and measurements
//	         Sentinel: ErrInvalidEntry
//
//	ENT004 - Forbidden: Only staff or the creator may edit an entry
//	         Action: Ask a staff member to make the change
//	         Sentinel: ErrForbidden
//
// # Instruction Errors (INS001-INS099)
//
//	INS001 - Invalid instruction: Missing title, not a PDF or too large
//	         Sentinel: ErrInvalidInstruction
//
//	INS002 - Not found: The instruction or its file does not exist
//	         Sentinel: ErrInstructionNotFound
//
//	INS003 - Staff only: Only staff may upload instructions
//	         Sentinel: ErrStaffOnly
//
// # Database Errors (DB001-DB099)
//
// Matched on the error text because drivers do not share sentinels:
//
//	DB001 - Duplicate key              Patterns: "duplicate key", "unique constraint"
//	DB004 - Connection refused         Patterns: "connection refused"
//	DB005 - Connection reset           Patterns: "connection reset"
//	DB006 - Timeout                    Patterns: "timeout", "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Returned when nothing matches. Support staff should check application logs
// for the original technical error when users report ERR000.

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

// sentinelMessages is checked first, in order, with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrExportBusy, UserMessage{
		Message: "Export in progress, try again later",
		Action:  "Please try again in a moment",
		Code:    "EXP001",
	}},
	{ErrExportFailed, UserMessage{
		Message: "The export could not be written",
		Action:  "The previous export is unchanged. Contact support if this persists",
		Code:    "EXP002",
	}},
	{ErrNoExport, UserMessage{
		Message: "Nothing has been exported yet",
		Action:  "Run an export first",
		Code:    "EXP003",
	}},
	{ErrDuplicateEntry, UserMessage{
		Message: "An entry for this PIZ and examination date already exists",
		Action:  "Edit the existing entry instead",
		Code:    "ENT001",
	}},
	{ErrEntryNotFound, UserMessage{
		Message: "The entry does not exist",
		Action:  "Reload the list and try again",
		Code:    "ENT002",
	}},
	{ErrInvalidEntry, UserMessage{
		Message: "One or more fields are invalid",
		Action:  "Check PIZ, examination date and measurements",
		Code:    "ENT003",
	}},
	{ErrForbidden, UserMessage{
		Message: "You are not allowed to edit this entry",
		Action:  "Ask a staff member to make the change",
		Code:    "ENT004",
	}},
	{ErrInvalidInstruction, UserMessage{
		Message: "The instruction could not be accepted",
		Action:  "Upload a PDF file with a title",
		Code:    "INS001",
	}},
	{ErrInstructionNotFound, UserMessage{
		Message: "The instruction does not exist",
		Action:  "Reload the instruction list and try again",
		Code:    "INS002",
	}},
	{ErrStaffOnly, UserMessage{
		Message: "Only staff can upload instructions",
		Action:  "Ask a staff member to upload the file",
		Code:    "INS003",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Edit the existing record instead",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Edit the existing record instead",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinels are matched with errors.Is, then the error text is searched
// for known driver patterns. If nothing matches, the ERR000 fallback is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("run export: %w", ErrExportBusy))
//	// msg.Code == "EXP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
