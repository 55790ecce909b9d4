package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shridhar/dispatch-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="part_images"; filename="`+filename+`"`)
	h.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(int64(len(content)) + 1024)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	require.Len(t, form.File["part_images"], 1)
	return form.File["part_images"][0]
}

func TestLocalImageService_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	svc := NewLocalImageService(dir)
	ctx := context.Background()

	ref, err := svc.UploadImage(ctx, createFileHeader(t, "valve.png", []byte("png")), "booking-7")
	require.NoError(t, err)
	assert.Contains(t, ref, "booking-7_")
	assert.FileExists(t, filepath.Join(dir, ref))

	url, err := svc.GetImageURL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, utils.GetImageURL(ref), url)

	require.NoError(t, svc.DeleteImage(ctx, ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, svc.DeleteImage(ctx, ref), "deleting twice is fine")
}

func TestLocalImageService_RejectsNonImages(t *testing.T) {
	svc := NewLocalImageService(t.TempDir())

	_, err := svc.UploadImage(context.Background(), createFileHeader(t, "notes.txt", []byte("hi")), "booking-1")
	var uploadErr *utils.FileUploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "INVALID_FILE_FORMAT", uploadErr.Code)
}

func TestLocalImageService_ExternalRefsPassThrough(t *testing.T) {
	svc := NewLocalImageService(t.TempDir())

	url, err := svc.GetImageURL(context.Background(), "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
	assert.NoError(t, svc.DeleteImage(context.Background(), "../../etc/passwd"))
}

func TestS3ImageService_WithMockBackend(t *testing.T) {
	mockS3 := NewMockS3Service()
	svc := NewS3ImageService(mockS3)
	ctx := context.Background()

	key, err := svc.UploadImage(ctx, createFileHeader(t, "meter.jpg", []byte("jpg")), "booking-3")
	require.NoError(t, err)
	assert.Equal(t, "evidence/booking-3/mock_meter.jpg", key)
	assert.True(t, mockS3.FileExists(key))

	url, err := svc.GetImageURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, url, key)

	url, err = svc.GetImageURL(ctx, "http://elsewhere/x.png")
	require.NoError(t, err)
	assert.Equal(t, "http://elsewhere/x.png", url)

	require.NoError(t, svc.DeleteImage(ctx, key))
	assert.False(t, mockS3.FileExists(key))

	_, err = svc.GetImageURL(ctx, key)
	assert.Error(t, err)
}

func TestMockImageService(t *testing.T) {
	svc := NewMockImageService()
	ctx := context.Background()

	key, err := svc.UploadImage(ctx, createFileHeader(t, "a.png", []byte("png")), "booking-1")
	require.NoError(t, err)
	assert.Len(t, svc.GetUploadedImages(), 1)

	url, err := svc.GetImageURL(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, url, "mock=true")

	require.NoError(t, svc.DeleteImage(ctx, key))
	assert.Empty(t, svc.GetUploadedImages())
}

func TestEvidenceKey(t *testing.T) {
	now := time.Unix(0, 1700000000000000000)
	assert.Equal(t, "evidence/booking-9/1700000000000000000_leak.png", evidenceKey("booking-9", "../../leak.png", now))
}
