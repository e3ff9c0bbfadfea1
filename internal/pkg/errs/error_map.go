/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, socket error events and internal error handling.
*/
package errs

import "net/http"

// Kind classifies a failure independently of its specific code.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindStoreUnavailable Kind = "store_unavailable"
	KindTransport        Kind = "transport"
	KindUnauthorized     Kind = "unauthorized"
	KindInternal         Kind = "internal"
)

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the kind, user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Kind: KindValidation, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Kind: KindValidation, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Kind: KindValidation, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Kind: KindValidation, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Kind: KindValidation, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:     {Code: ErrUnsupportedEvent, Kind: KindValidation, Message: "Unsupported event type %q."},

	// 2xxx: Messaging and Group Errors
	ErrInvalidDestination:    {Code: ErrInvalidDestination, Kind: KindValidation, Message: "A message needs exactly one of receiver or group."},
	ErrEmptyMessage:          {Code: ErrEmptyMessage, Kind: KindValidation, Message: "A message needs a body or an attachment."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Kind: KindValidation, Message: "Message is too long."},
	ErrSenderMismatch:        {Code: ErrSenderMismatch, Kind: KindValidation, Message: "You can only send messages as yourself.", Status: http.StatusForbidden},
	ErrNotRecipient:          {Code: ErrNotRecipient, Kind: KindValidation, Message: "This message is not addressed to you.", Status: http.StatusForbidden},
	ErrMessageNotFound:       {Code: ErrMessageNotFound, Kind: KindNotFound, Message: "Message not found.", Status: http.StatusNotFound},
	ErrStatusConflict:        {Code: ErrStatusConflict, Kind: KindConflict, Message: "Message status can only move forward.", Status: http.StatusConflict},
	ErrGroupTooSmall:         {Code: ErrGroupTooSmall, Kind: KindValidation, Message: "A group needs at least %d members."},
	ErrGroupNotFound:         {Code: ErrGroupNotFound, Kind: KindNotFound, Message: "Group not found.", Status: http.StatusNotFound},
	ErrNotGroupMember:        {Code: ErrNotGroupMember, Kind: KindValidation, Message: "You are not a member of this group.", Status: http.StatusForbidden},
	ErrInvalidGroupName:      {Code: ErrInvalidGroupName, Kind: KindValidation, Message: "A group name must be between 1 and %d characters."},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Kind: KindValidation, Message: "File is too large."},
	ErrAttachmentKeyInvalid:  {Code: ErrAttachmentKeyInvalid, Kind: KindValidation, Message: "Invalid attachment.", Status: http.StatusForbidden},
	ErrAttachmentNotFound:    {Code: ErrAttachmentNotFound, Kind: KindNotFound, Message: "File not found.", Status: http.StatusNotFound},

	// 3xxx: User, Session, and Security Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Kind: KindUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrUserNotFound: {Code: ErrUserNotFound, Kind: KindNotFound, Message: "User not found.", Status: http.StatusNotFound},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Kind: KindInternal, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStoreUnavailable:  {Code: ErrStoreUnavailable, Kind: KindStoreUnavailable, Message: "Storage is temporarily unavailable. Please retry.", Status: http.StatusServiceUnavailable},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Kind: KindInternal, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
