package handlers

import (
	"net/http"

	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/uploads"
	"github.com/gin-gonic/gin"
)

// UploadHandler turns multipart form uploads into the Attachment
// descriptors the rest of the API deals in. Resolve and comment
// payloads reference files by descriptor rather than carrying the bytes
// themselves, so every attachment round-trips through here first.
type UploadHandler struct {
	store *uploads.Store
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(store *uploads.Store) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload handles POST /uploads: saves every file under the "files" form
// field and returns their descriptors. The caller attaches the gap the
// upload belongs to only once it references these descriptors in a
// create/resolve/comment request, so existing is always 0 here — the
// per-gap count cap is enforced again by GapHandler when the descriptors
// are actually attached.
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Invalid("expected a multipart/form-data request"))
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		apperrors.AbortWithError(c, apperrors.Invalid("no files provided under the \"files\" field"))
		return
	}

	attachments, err := h.store.Save(0, headers)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachments": attachments})
}
