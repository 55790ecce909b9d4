package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/shridhar/dispatch-api/utils"
)

// ImageService stores work-proof images and turns stored refs back into URLs
type ImageService interface {
	// UploadImage validates and stores an image, returning its storage ref
	UploadImage(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error)

	// GetImageURL generates a URL for accessing a stored image
	GetImageURL(ctx context.Context, ref string) (string, error)

	// DeleteImage removes an image from storage
	DeleteImage(ctx context.Context, ref string) error
}

// S3ImageService implements ImageService using AWS S3 for storage
type S3ImageService struct {
	s3Service S3Interface
}

// NewS3ImageService creates an image service with an S3 backend
func NewS3ImageService(s3Service S3Interface) *S3ImageService {
	return &S3ImageService{s3Service: s3Service}
}

// UploadImage validates and uploads an image file to S3
func (s *S3ImageService) UploadImage(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	key, err := s.s3Service.UploadFile(ctx, fileHeader, folder)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, nil
}

// GetImageURL generates a presigned URL for accessing an image
func (s *S3ImageService) GetImageURL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if isExternalRef(ref) {
		return ref, nil
	}

	url, err := s.s3Service.GetPresignedURL(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}
	return url, nil
}

// DeleteImage deletes an image from S3
func (s *S3ImageService) DeleteImage(ctx context.Context, ref string) error {
	if ref == "" || isExternalRef(ref) {
		return nil
	}
	if err := s.s3Service.DeleteFile(ctx, ref); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// LocalImageService keeps images on local disk; used when no bucket is configured
type LocalImageService struct {
	dir string
}

// NewLocalImageService stores images under dir
func NewLocalImageService(dir string) *LocalImageService {
	return &LocalImageService{dir: dir}
}

// UploadImage validates and writes the image to disk
func (s *LocalImageService) UploadImage(_ context.Context, fileHeader *multipart.FileHeader, folder string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}
	filename, err := utils.SaveUploadedFile(fileHeader, s.dir, folder)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return filename, nil
}

// GetImageURL returns the API path serving the file
func (s *LocalImageService) GetImageURL(_ context.Context, ref string) (string, error) {
	if isExternalRef(ref) {
		return ref, nil
	}
	return utils.GetImageURL(ref), nil
}

// DeleteImage removes the file; missing files are not an error
func (s *LocalImageService) DeleteImage(_ context.Context, ref string) error {
	if !utils.SafeFilename(ref) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// isExternalRef reports whether a work-proof ref is already a URL
func isExternalRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
