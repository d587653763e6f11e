package handlers

import (
	"net/http"
	"strings"

	"eventmitra/backend/internal/integrations"
)

type presignRequest struct {
	FileName    string `json:"fileName" validate:"required,max=200"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

var presignContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// PresignMedia hands out a short-lived direct upload URL for organizer
// artwork. Uploaded objects are not resized; use UploadBanner for that.
func (h *Handler) PresignMedia(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req presignRequest
	if !h.decodeJSON(w, r, "presign_media", &req) {
		return
	}
	if req.SizeBytes > integrations.MaxBannerBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	if _, ok := presignContentTypes[strings.ToLower(req.ContentType)]; !ok {
		writeError(w, http.StatusBadRequest, "invalid content type")
		return
	}
	if h.s3 == nil {
		writeError(w, http.StatusServiceUnavailable, "media not configured")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	uploadURL, fileURL, err := h.s3.PresignPutObject(ctx, req.FileName, strings.ToLower(req.ContentType))
	if err != nil {
		logger.Error("presign_media", "status", "s3_error", "error", err)
		writeError(w, http.StatusInternalServerError, "presign failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploadUrl": uploadURL,
		"fileUrl":   fileURL,
	})
}
