package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/shridhar/dispatch-api/config"
	"github.com/shridhar/dispatch-api/utils"
	"go.uber.org/zap"
)

// S3Interface defines the interface for S3 operations
type S3Interface interface {
	UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error)
	GetPresignedURL(ctx context.Context, s3Key string) (string, error)
	DeleteFile(ctx context.Context, s3Key string) error
}

// S3Service stores evidence images in a private bucket
type S3Service struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// NewS3Service creates an S3 client from the application configuration
func NewS3Service(ctx context.Context, cfg *appConfig.Config, log *zap.Logger) (*S3Service, error) {
	// Static credentials from the environment; the region picks the endpoint
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Service{
		client: s3.NewFromConfig(awsConfig),
		bucket: cfg.AWSS3Bucket,
		log:    log,
	}, nil
}

// UploadFile streams the file to S3 under evidence/{folder}/ and returns its key
func (s *S3Service) UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, folder string) (string, error) {
	// Open the uploaded part
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Generate a unique key inside the booking or customer folder
	// Format: evidence/{folder}/{nanos}_{filename}
	s3Key := evidenceKey(folder, fileHeader.Filename, time.Now())

	// Validation already restricted the extension, so the lookup succeeds
	contentType, _ := utils.ImageContentType(fileHeader.Filename)

	// Stream to S3; the bucket stays private and reads go through presigned URLs
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s3Key),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.log.Debug("evidence uploaded", zap.String("key", s3Key), zap.Int64("size", fileHeader.Size))
	return s3Key, nil
}

// GetPresignedURL generates a presigned URL for a private object, valid for one hour
func (s *S3Service) GetPresignedURL(ctx context.Context, s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}

	// Sign a GET for the object
	request, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = time.Hour
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return request.URL, nil
}

// DeleteFile deletes a file from S3
func (s *S3Service) DeleteFile(ctx context.Context, s3Key string) error {
	if s3Key == "" {
		return nil
	}

	// Deleting a missing key succeeds in S3, which keeps discards idempotent
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// evidenceKey builds the object key for an uploaded image
func evidenceKey(folder, filename string, now time.Time) string {
	return fmt.Sprintf("evidence/%s/%d_%s", folder, now.UnixNano(), filepath.Base(filename))
}
