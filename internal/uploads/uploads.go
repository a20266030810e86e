// Package uploads handles attachment storage for gap/resolution/comment
// uploads and the zip bundle §6 exposes for a gap's full attachment set.
//
// There is no third-party multipart or archive library anywhere in the
// example corpus (gin-gonic's own multipart.Form parsing and the
// standard library's archive/zip are the only tools any repo in the
// pack reaches for), so this file stays on mime/multipart and
// archive/zip rather than inventing a dependency with no grounding.
package uploads

import (
	"archive/zip"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gapopshub/api/internal/config"
	apperrors "github.com/gapopshub/api/internal/errors"
	"github.com/gapopshub/api/internal/models"
	"github.com/google/uuid"
)

// Store saves and retrieves uploaded files under a shared directory,
// enforcing the per-gap count and per-file size caps from §6.
type Store struct {
	cfg config.UploadConfig
}

// New builds a Store rooted at cfg.Dir, creating the directory if it
// does not already exist.
func New(cfg config.UploadConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, apperrors.InternalWrap("failed to create upload directory", err)
	}
	return &Store{cfg: cfg}, nil
}

// Save writes each multipart file header to disk under a randomized,
// timestamp-prefixed filename and returns the resulting attachment
// descriptors. Rejects the whole batch if it would exceed the per-gap
// file count, or any single file exceeds the size cap.
func (s *Store) Save(existing int, headers []*multipart.FileHeader) ([]models.Attachment, error) {
	if s.cfg.MaxFilesPerGap > 0 && existing+len(headers) > s.cfg.MaxFilesPerGap {
		return nil, apperrors.Invalid(fmt.Sprintf("attachment count would exceed the limit of %d", s.cfg.MaxFilesPerGap))
	}

	maxBytes := s.cfg.MaxFileSizeMB * 1024 * 1024
	attachments := make([]models.Attachment, 0, len(headers))
	for _, h := range headers {
		if maxBytes > 0 && h.Size > maxBytes {
			return nil, apperrors.Invalid(fmt.Sprintf("%s exceeds the %dMB file size limit", h.Filename, s.cfg.MaxFileSizeMB))
		}

		stored := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.New().String(), filepath.Ext(h.Filename))
		dest := filepath.Join(s.cfg.Dir, stored)

		if err := saveFile(h, dest); err != nil {
			return nil, apperrors.InternalWrap("failed to save uploaded file", err)
		}

		attachments = append(attachments, models.Attachment{
			OriginalName: h.Filename,
			Filename:     stored,
			Size:         h.Size,
			MimeType:     h.Header.Get("Content-Type"),
			Path:         "/attachments/" + stored,
		})
	}
	return attachments, nil
}

func saveFile(h *multipart.FileHeader, dest string) error {
	src, err := h.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// Open returns a read handle to a previously stored file by its
// generated filename, rejecting any path-traversal attempt.
func (s *Store) Open(filename string) (*os.File, error) {
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return nil, apperrors.Invalid("invalid attachment filename")
	}
	f, err := os.Open(filepath.Join(s.cfg.Dir, filename))
	if err != nil {
		return nil, apperrors.NotFound("attachment")
	}
	return f, nil
}

// WriteZip streams a zip archive of the given attachments to w, each
// entry named by its original filename under a kind-prefixed directory
// ("gap/" or "resolution/"). Bounded by §6's zip size and file-count
// caps; a path-traversal attempt in a stored Attachment.Filename is
// rejected rather than silently sanitized, since a malicious stored
// name indicates the row itself is untrusted.
func (s *Store) WriteZip(w io.Writer, attachments []models.Attachment, kinds []string) error {
	if len(attachments) > s.cfg.ZipMaxFileCount {
		return apperrors.Invalid(fmt.Sprintf("export would exceed the %d file limit", s.cfg.ZipMaxFileCount))
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	maxBytes := s.cfg.ZipMaxSizeMB * 1024 * 1024
	var total int64

	for i, a := range attachments {
		if strings.Contains(a.Filename, "..") || strings.ContainsAny(a.Filename, "/\\") {
			return apperrors.Invalid("attachment has an unsafe stored filename")
		}

		total += a.Size
		if maxBytes > 0 && total > maxBytes {
			return apperrors.Invalid(fmt.Sprintf("export would exceed the %dMB size limit", s.cfg.ZipMaxSizeMB))
		}

		kind := "gap"
		if i < len(kinds) {
			kind = kinds[i]
		}
		entryName := filepath.ToSlash(filepath.Join(kind, a.OriginalName))

		f, err := os.Open(filepath.Join(s.cfg.Dir, a.Filename))
		if err != nil {
			return apperrors.InternalWrap("failed to open attachment for export", err)
		}

		entry, err := zw.Create(entryName)
		if err != nil {
			f.Close()
			return apperrors.InternalWrap("failed to add zip entry", err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return apperrors.InternalWrap("failed to write zip entry", err)
		}
		f.Close()
	}
	return nil
}
