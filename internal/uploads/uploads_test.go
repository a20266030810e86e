package uploads

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/gapopshub/api/internal/config"
	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.UploadConfig{
		Dir:             dir,
		MaxFileSizeMB:   1,
		MaxFilesPerGap:  3,
		ZipMaxSizeMB:    1,
		ZipMaxFileCount: 3,
	})
	require.NoError(t, err)
	return s
}

func buildMultipartHeader(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := multipart.NewReader(&buf, w.Boundary())
	form, err := r.ReadForm(10 << 20)
	require.NoError(t, err)
	return form.File[field][0]
}

func TestStore_SaveWritesFileAndReturnsAttachment(t *testing.T) {
	s := newTestStore(t)
	h := buildMultipartHeader(t, "file", "report.pdf", []byte("hello gap"))

	attachments, err := s.Save(0, []*multipart.FileHeader{h})
	require.NoError(t, err)
	require.Len(t, attachments, 1)

	assert.Equal(t, "report.pdf", attachments[0].OriginalName)
	assert.NotEqual(t, "report.pdf", attachments[0].Filename)
	assert.Equal(t, int64(len("hello gap")), attachments[0].Size)

	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, attachments[0].Filename))
	require.NoError(t, err)
	assert.Equal(t, "hello gap", string(data))
}

func TestStore_SaveRejectsWhenOverFileCountLimit(t *testing.T) {
	s := newTestStore(t)
	h := buildMultipartHeader(t, "file", "a.txt", []byte("x"))

	_, err := s.Save(3, []*multipart.FileHeader{h})
	require.Error(t, err)
}

func TestStore_OpenRejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Open("../../etc/passwd")
	require.Error(t, err)
}

func TestStore_WriteZipBundlesAttachmentsByKind(t *testing.T) {
	s := newTestStore(t)
	h1 := buildMultipartHeader(t, "file", "one.txt", []byte("gap file"))
	h2 := buildMultipartHeader(t, "file", "two.txt", []byte("resolution file"))

	saved, err := s.Save(0, []*multipart.FileHeader{h1, h2})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = s.WriteZip(&buf, saved, []string{"gap", "resolution"})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["gap/one.txt"])
	assert.True(t, names["resolution/two.txt"])
}

func TestStore_WriteZipRejectsUnsafeStoredFilename(t *testing.T) {
	s := newTestStore(t)
	unsafe := []models.Attachment{{OriginalName: "x.txt", Filename: "../evil.txt", Size: 1}}

	var buf bytes.Buffer
	err := s.WriteZip(&buf, unsafe, []string{"gap"})
	require.Error(t, err)
}

func TestStore_WriteZipRejectsOverFileCountLimit(t *testing.T) {
	s := newTestStore(t)
	many := make([]models.Attachment, 5)
	for i := range many {
		many[i] = models.Attachment{OriginalName: "f.txt", Filename: "f.txt", Size: 1}
	}

	var buf bytes.Buffer
	err := s.WriteZip(&buf, many, nil)
	require.Error(t, err)
}
