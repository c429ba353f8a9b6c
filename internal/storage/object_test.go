package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalObjectsUploadAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	objects, err := NewLocalObjects(filepath.Join(dir, "uploads"), filepath.Join(dir, "resumes"))
	require.NoError(t, err)

	key, md5Hex, err := objects.UploadBatchFile(ctx, "upload-1", "../../batch.zip", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "batch/upload-1/batch.zip", key)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", md5Hex)

	data, err := os.ReadFile(filepath.Join(dir, "uploads", "batch", "upload-1", "batch.zip"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, objects.DeleteBatchFile(ctx, key))
	require.NoError(t, objects.DeleteBatchFile(ctx, key), "重复删除不报错")
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection reset")
}

func TestLocalObjectsUploadRemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	objects, err := NewLocalObjects(filepath.Join(dir, "uploads"), filepath.Join(dir, "resumes"))
	require.NoError(t, err)

	key, md5Hex, err := objects.UploadBatchFile(ctx, "upload-2", "batch.zip", &failingReader{}, 1024)
	require.Error(t, err)
	assert.Empty(t, key)
	assert.Empty(t, md5Hex)
	assert.NoFileExists(t, filepath.Join(dir, "uploads", "batch", "upload-2", "batch.zip"))
}

func TestLocalObjectsOpenResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jane.pdf"), []byte("%PDF-1.4"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.pdf"), 0755))

	objects, err := NewLocalObjects("", dir)
	require.NoError(t, err)

	rc, size, err := objects.OpenResume(ctx, "jane.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, int64(8), size)
	assert.Equal(t, "%PDF-1.4", string(body))

	// 路径穿越只取文件名
	rc2, _, err := objects.OpenResume(ctx, "../../"+filepath.Base(dir)+"/jane.pdf")
	require.NoError(t, err)
	rc2.Close()

	_, _, err = objects.OpenResume(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, _, err = objects.OpenResume(ctx, "folder.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/zip", getContentType(".ZIP"))
	assert.Equal(t, "application/pdf", getContentType(".pdf"))
	assert.Equal(t, "application/octet-stream", getContentType(".bin"))
}
