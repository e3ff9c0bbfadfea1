/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates that a socket client sent an event type the server does not handle.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Messaging and Group Errors
const (
	// ErrInvalidDestination indicates a message with neither or both of receiver and group set.
	ErrInvalidDestination = 2101

	// ErrEmptyMessage indicates a message with no body and no attachment.
	ErrEmptyMessage = 2102

	// ErrMessageContentTooLong indicates that the message body exceeded the maximum length limit.
	ErrMessageContentTooLong = 2103

	// ErrSenderMismatch indicates a send whose declared sender is not the authenticated user.
	ErrSenderMismatch = 2104

	// ErrNotRecipient indicates a status change attempted by someone the message is not addressed to.
	ErrNotRecipient = 2105

	// ErrMessageNotFound indicates that the referenced message id does not exist.
	ErrMessageNotFound = 2201

	// ErrStatusConflict indicates a status advance that is backward or to the same state.
	ErrStatusConflict = 2301

	// ErrGroupTooSmall indicates a group created with fewer than two members.
	ErrGroupTooSmall = 2401

	// ErrGroupNotFound indicates that the referenced group id does not exist.
	ErrGroupNotFound = 2402

	// ErrNotGroupMember indicates an operation on a group the caller does not belong to.
	ErrNotGroupMember = 2403

	// ErrInvalidGroupName indicates a group name that is empty or too long.
	ErrInvalidGroupName = 2404

	// ErrFileSizeTooLarge indicates that an attachment exceeds the upload size limit.
	ErrFileSizeTooLarge = 2501

	// ErrAttachmentKeyInvalid indicates an attachment key outside the caller's scope.
	ErrAttachmentKeyInvalid = 2502

	// ErrAttachmentNotFound indicates that no object exists under an attachment key.
	ErrAttachmentNotFound = 2503
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a request without a valid identity token.
	ErrUnauthorized = 3001

	// ErrUserNotFound indicates that the referenced user id does not exist.
	ErrUserNotFound = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStoreUnavailable indicates the persistent store was unreachable or timed out.
	ErrStoreUnavailable = 5001

	// ErrFileStorageFailed indicates a failure talking to the attachment object store.
	ErrFileStorageFailed = 5002
)
