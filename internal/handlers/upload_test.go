package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gapopshub/api/internal/config"
	"github.com/gapopshub/api/internal/models"
	"github.com/gapopshub/api/internal/uploads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartUploadRequest(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadHandler_Upload_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := uploads.New(config.UploadConfig{
		Dir: t.TempDir(), MaxFileSizeMB: 1, MaxFilesPerGap: 3,
		ZipMaxSizeMB: 1, ZipMaxFileCount: 3,
	})
	require.NoError(t, err)
	h := NewUploadHandler(store)

	body, contentType := multipartUploadRequest(t, "files", "evidence.png", []byte("binary-ish"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/uploads", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Upload(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Attachments []models.Attachment `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Attachments, 1)
	assert.Equal(t, "evidence.png", resp.Attachments[0].OriginalName)
}

func TestUploadHandler_Upload_NoFilesProvided(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := uploads.New(config.UploadConfig{
		Dir: t.TempDir(), MaxFileSizeMB: 1, MaxFilesPerGap: 3,
		ZipMaxSizeMB: 1, ZipMaxFileCount: 3,
	})
	require.NoError(t, err)
	h := NewUploadHandler(store)

	body, contentType := multipartUploadRequest(t, "not-files", "evidence.png", []byte("binary-ish"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/uploads", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Upload(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
