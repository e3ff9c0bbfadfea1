package handler

import (
	"errors"
	"net/http"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/app/storage"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/req"
	"chatrelay/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	FileName string `json:"file_name" validate:"required,max=255"`
	MimeType string `json:"mime_type" validate:"required"`
	FileSize int64  `json:"file_size" validate:"gt=0"`
}

// HandlePresignUploadURL creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for an attachment upload under the caller's key space.
func HandlePresignUploadURL(storageService storage.StorageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey, customErr := chat.NewAttachmentKey(callerID(r), input.FileName, input.MimeType, input.FileSize)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := storageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			chat.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrFileStorageFailed, err))
			return
		}

		data := map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandlePresignDownloadURL creates an HTTP HandlerFunc that redirects to a
// time-limited, pre-signed download URL for an attachment key.
func HandlePresignDownloadURL(storageService storage.StorageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileKey := r.URL.Query().Get("k")
		if fileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if !chat.CanReadAttachment(fileKey) {
			resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentKeyInvalid))
			return
		}

		if _, err := storageService.Stat(r.Context(), fileKey); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentNotFound))
				return
			}
			logx.Warn("Attachment metadata lookup failed, presigning anyway", "key", fileKey, "error", err.Error())
		}

		url, err := storageService.PresignDownload(
			r.Context(),
			fileKey,
			chat.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrFileStorageFailed, err))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}
