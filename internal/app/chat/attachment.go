package chat

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/randx"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// MaxAttachmentRefLength bounds the opaque reference a message may carry.
	MaxAttachmentRefLength = 512

	// PresignedURLDuration is the fixed duration for which the upload URL is valid (5 minutes).
	PresignedURLDuration = 5 * time.Minute

	// AttachmentKeyRoot prefixes every object key minted by this service.
	AttachmentKeyRoot = "attachments/"
)

// ExtToMIME maps the permitted file extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the extension of fileName is allowed and agrees with mimeType.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// attachmentPrefix is the key space owned by userID.
func attachmentPrefix(userID string) string {
	return AttachmentKeyRoot + url.PathEscape(userID) + "/"
}

// NewAttachmentKey mints an object key for an upload by userID.
func NewAttachmentKey(userID, fileName, mimeType string, fileSize int64) (string, *errs.CustomError) {
	if err := ValidateFileSize(fileSize); err != nil {
		return "", err
	}
	if err := ValidateFileType(fileName, mimeType); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	return attachmentPrefix(userID) + randx.MessageID() + ext, nil
}

// ValidateAttachmentRef checks the reference carried by a message from sender.
// References are opaque, except that keys in this service's own key space
// must belong to the sender.
func ValidateAttachmentRef(sender, ref string) *errs.CustomError {
	if ref == "" {
		return nil
	}
	if len(ref) > MaxAttachmentRefLength {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}
	if strings.HasPrefix(ref, AttachmentKeyRoot) && !strings.HasPrefix(ref, attachmentPrefix(sender)) {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}
	return nil
}

// CanReadAttachment reports whether a key lies in this service's key space;
// only such keys are presigned for download.
func CanReadAttachment(key string) bool {
	return strings.HasPrefix(key, AttachmentKeyRoot) && !strings.Contains(key, "..")
}
